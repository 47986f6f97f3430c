//go:build mage
// +build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const serverBinary = "bin/support-server"

// Build compiles the server binary.
func Build() error {
	fmt.Println("[Build] compiling", serverBinary)
	return sh.RunV("go", "build", "-o", serverBinary, "./cmd/support-server")
}

// Test runs the whole suite with the race detector.
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Run builds and starts the server.
func Run() error {
	mg.Deps(Build)
	return sh.RunV(serverBinary)
}

// Vet runs static checks.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}
