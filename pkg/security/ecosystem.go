package security

import (
	"fmt"
	"strings"
)

// Category classifies a package by the ecosystem it belongs to. The
// classification is separate from supply-chain risk: it drives the script
// policy, not the install gate.
type Category int

const (
	// CategoryStandard covers ordinary JavaScript/TypeScript packages.
	CategoryStandard Category = iota
	// CategoryWeb3 covers blockchain SDKs and tooling.
	CategoryWeb3
	// CategoryAI covers AI/ML SDKs and frameworks.
	CategoryAI
	// CategoryWallet covers wallet and key-handling packages.
	CategoryWallet
	// CategoryNativeBinary covers packages that ship or build native code.
	CategoryNativeBinary
	// CategoryNetworkHeavy covers SDKs that phone home by design.
	CategoryNetworkHeavy
)

// Level grades how much caution a package category warrants when deciding
// whether its lifecycle scripts may run.
type Level int

const (
	// LevelStandard allows a normal install.
	LevelStandard Level = iota
	// LevelElevated warns on install.
	LevelElevated
	// LevelHigh requires explicit confirmation.
	LevelHigh
	// LevelCritical denies scripts by default.
	LevelCritical
)

var web3Packages = newSet(
	// Ethereum/EVM
	"ethers", "web3", "viem", "wagmi", "rainbowkit",
	"hardhat", "@nomiclabs/hardhat-ethers", "@nomiclabs/hardhat-waffle",
	"@openzeppelin/contracts", "@openzeppelin/hardhat-upgrades",
	"thirdweb", "@thirdweb-dev/sdk", "@thirdweb-dev/react",
	"typechain", "@typechain/ethers-v6", "@typechain/hardhat",
	"abitype", "permissionless", "siwe",
	// Solana
	"@solana/web3.js", "@solana/spl-token", "@solana/wallet-adapter-base",
	"@solana/wallet-adapter-react", "@solana/wallet-adapter-wallets",
	"@project-serum/anchor", "@metaplex-foundation/js",
	"@coral-xyz/anchor",
	// Other chains
	"@polkadot/api", "@polkadot/util", "@polkadot/keyring",
	"near-api-js", "@near-js/providers",
	"@cosmjs/stargate", "@cosmjs/proto-signing",
	"aptos", "@aptos-labs/ts-sdk",
	"@mysten/sui.js",
	"algosdk",
	// Wallet adapters
	"@rainbow-me/rainbowkit", "@web3modal/ethereum",
	"@walletconnect/web3-provider", "@metamask/sdk",
)

var aiPackages = newSet(
	// AI SDKs
	"openai", "@anthropic-ai/sdk", "cohere-ai", "@mistralai/mistralai",
	"groq-sdk", "replicate", "@huggingface/inference",
	"@google/generative-ai", "google-generativeai",
	// Frameworks
	"langchain", "@langchain/core", "@langchain/openai", "@langchain/anthropic",
	"llamaindex", "crewai",
	// Vector DBs
	"@pinecone-database/pinecone", "weaviate-ts-client",
	"@qdrant/js-client-rest", "chromadb",
	// AI Frontend
	"ai", "@vercel/ai", "@ai-sdk/openai", "@ai-sdk/anthropic",
	// Embeddings
	"@tensorflow/tfjs", "onnxruntime-node", "transformers",
)

var walletPackages = newSet(
	"@metamask/sdk", "@walletconnect/web3-provider",
	"@solana/wallet-adapter-base", "@rainbow-me/rainbowkit",
	"ethers", "web3", "@solana/web3.js",
	"@openzeppelin/contracts", "hardhat",
)

var nativeBinaryPackages = newSet(
	// Database
	"prisma", "@prisma/client", "better-sqlite3", "sqlite3",
	// Crypto
	"argon2", "bcrypt", "node-argon2",
	// Image/Media
	"sharp", "canvas", "node-canvas",
	// System
	"node-gyp", "node-pre-gyp", "prebuild",
	// AI/ML
	"@tensorflow/tfjs-node", "onnxruntime-node",
	// Build tools
	"esbuild", "swc", "@swc/core", "lightningcss",
)

var networkHeavyPackages = newSet(
	"openai", "@anthropic-ai/sdk", "replicate",
	"@pinecone-database/pinecone", "weaviate-ts-client",
	"firebase", "@firebase/app", "supabase",
	"@aws-sdk/client-s3", "aws-sdk",
)

func newSet(names ...string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}

// Categorize classifies a package name. Wallet membership wins over Web3
// since wallet packages need the stricter policy.
func Categorize(name string) Category {
	normalized := strings.ToLower(name)
	switch {
	case walletPackages[normalized]:
		return CategoryWallet
	case web3Packages[normalized]:
		return CategoryWeb3
	case aiPackages[normalized]:
		return CategoryAI
	case nativeBinaryPackages[normalized]:
		return CategoryNativeBinary
	case networkHeavyPackages[normalized]:
		return CategoryNetworkHeavy
	default:
		return CategoryStandard
	}
}

// SecurityLevel maps a package's category to the caution level used by the
// install-script policy.
func SecurityLevel(name string) Level {
	switch Categorize(name) {
	case CategoryWallet:
		return LevelCritical
	case CategoryWeb3, CategoryNativeBinary:
		return LevelHigh
	case CategoryAI, CategoryNetworkHeavy:
		return LevelElevated
	default:
		return LevelStandard
	}
}

// RequiresScriptConfirmation reports whether lifecycle scripts for the
// package need explicit user confirmation.
func RequiresScriptConfirmation(name string) bool {
	l := SecurityLevel(name)
	return l == LevelHigh || l == LevelCritical
}

// SecurityWarning returns a user-facing warning for sensitive categories,
// or an empty string for standard packages.
func SecurityWarning(name string) string {
	switch Categorize(name) {
	case CategoryWallet:
		return fmt.Sprintf("%s is a wallet-related package. Verify source before use.", name)
	case CategoryWeb3:
		return fmt.Sprintf("%s is a Web3 package. Scripts are disabled by default.", name)
	case CategoryAI:
		return fmt.Sprintf("%s is an AI package. May make network requests.", name)
	case CategoryNativeBinary:
		return fmt.Sprintf("%s contains native binaries. Requires build tools.", name)
	case CategoryNetworkHeavy:
		return fmt.Sprintf("%s is network-heavy. Configure API keys securely.", name)
	default:
		return ""
	}
}
