//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the library and the Vulkan backend.
func (Build) Lib() error {
	if _, err := executeCmd("go", withArgs("build", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

// Compiles the example binaries into bin/.
func (Build) Examples() error {
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/producer", "./examples/producer"), withStream()); err != nil {
		return err
	}
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/viewer", "./examples/viewer"), withStream()); err != nil {
		return err
	}
	return nil
}

type Test mg.Namespace

// Runs the GPU-free test suite.
func (Test) Unit() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the test suite under the race detector.
func (Test) Race() error {
	if _, err := executeCmd("go", withArgs("test", "-race", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
