package security

import "testing"

func TestCategorize(t *testing.T) {
	cases := map[string]Category{
		"ethers":        CategoryWallet, // wallet wins over web3
		"wagmi":         CategoryWeb3,
		"openai":        CategoryAI,
		"langchain":     CategoryAI,
		"sharp":         CategoryNativeBinary,
		"firebase":      CategoryNetworkHeavy,
		"lodash":        CategoryStandard,
		"@metamask/sdk": CategoryWallet,
	}
	for name, want := range cases {
		if got := Categorize(name); got != want {
			t.Errorf("Categorize(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestSecurityLevels(t *testing.T) {
	cases := map[string]Level{
		"ethers": LevelCritical,
		"wagmi":  LevelHigh,
		"sharp":  LevelHigh,
		"openai": LevelElevated,
		"lodash": LevelStandard,
	}
	for name, want := range cases {
		if got := SecurityLevel(name); got != want {
			t.Errorf("SecurityLevel(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestRequiresScriptConfirmation(t *testing.T) {
	if !RequiresScriptConfirmation("ethers") {
		t.Error("critical packages require confirmation")
	}
	if !RequiresScriptConfirmation("esbuild") {
		t.Error("native binary packages require confirmation")
	}
	if RequiresScriptConfirmation("lodash") {
		t.Error("standard packages do not require confirmation")
	}
}

func TestSecurityWarning(t *testing.T) {
	if SecurityWarning("lodash") != "" {
		t.Error("standard packages have no warning")
	}
	if SecurityWarning("ethers") == "" {
		t.Error("wallet packages should warn")
	}
}
