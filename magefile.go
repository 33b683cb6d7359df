//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

func Build() error {
	mg.Deps(BuildEvtBuilder)
	fmt.Println("Compilation finished")
	return nil
}

// The HDF5 writer needs cgo, CGO_CFLAGS and CGO_LDFLAGS are forwarded.
func BuildEvtBuilder() error {
	fmt.Println("Building evtbuilder executable...")
	return goCommand(true, "build", "-o", "./bin/evtbuilder", "./evtbuilder")
}

// Test runs the library tests with the race detector. The library has no
// cgo dependency, so the HDF5 flags are not forwarded.
func Test() error {
	fmt.Println("Running tests...")
	return goCommand(false, "test", "-race", "./pkg/...")
}

func goCommand(cgo bool, args ...string) error {
	cmd := exec.Command("go", args...)
	cmd.Env = os.Environ()
	if cgo {
		cmd.Env = append(cmd.Env,
			"CGO_ENABLED=1",
			fmt.Sprintf("CGO_LDFLAGS=%s", os.Getenv("CGO_LDFLAGS")),
			fmt.Sprintf("CGO_CFLAGS=%s", os.Getenv("CGO_CFLAGS")))
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
