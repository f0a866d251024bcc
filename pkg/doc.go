// Package pkg provides the core libraries for the bolt package manager.
//
// # Overview
//
// Bolt installs JavaScript dependencies deterministically. The pkg
// directory contains the reusable libraries, organized into four areas:
//
//  1. Resolution ([semver], [registry], [resolver])
//  2. Storage ([cache], [lockfile])
//  3. Trust ([security])
//  4. Materialization ([installer], [manifest], [workspace])
//
// # Architecture
//
// The typical data flow through bolt:
//
//	package.json
//	     ↓
//	[resolver] (pick a version for every transitive dependency)
//	     ↓
//	[lockfile] (pin the result, tamper-evident)
//	     ↓
//	[installer] (fetch → verify → extract → link, via [cache])
//	     ↓
//	node_modules/
//
// [engine] wires these together for one project; [config] and [errors]
// are shared by everything.
package pkg
