package main

import "devtester/internal/loader"

// testPackageRegistrars holds the init-time registration hooks of every
// test package this binary is built with: a test package's init appends
// its own registrar here (via a blank import of this binary's build
// target), and RegisterTestCases runs them all against the shared
// Registry before a run's selection is resolved.
var testPackageRegistrars []func(*loader.Registry)

// RegisterTestCases runs every registered test package's registrar
// against reg.
func RegisterTestCases(reg *loader.Registry) {
	for _, register := range testPackageRegistrars {
		register(reg)
	}
}
