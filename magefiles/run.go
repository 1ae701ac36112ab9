//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Allocates a dumb buffer on the first DRM render node and imports it.
func (Run) Producer() error {
	fmt.Println("Run producer demo...")
	if _, err := executeCmd("go", withArgs("run", "./examples/producer"), withStream()); err != nil {
		return err
	}
	return nil
}

// Opens a window and imports a buffer as a render target.
func (Run) Viewer() error {
	fmt.Println("Run viewer demo...")
	if _, err := executeCmd("go", withArgs("run", "./examples/viewer"), withStream()); err != nil {
		return err
	}
	return nil
}
