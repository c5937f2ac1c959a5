//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles the GLSL sources to SPIR-V.
func (Build) Shaders() error {
	if _, err := executeCmd("glslc", withArgs("shaders/shader.vert", "-o", "shaders/shader.vert.spv"), withStream()); err != nil {
		return err
	}
	if _, err := executeCmd("glslc", withArgs("shaders/shader.frag", "-o", "shaders/shader.frag.spv"), withStream()); err != nil {
		return err
	}
	return nil
}

// Builds the engine binary.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/kiln", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the test suite.
func (Build) Test() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
