//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

var shaderSources = []string{
	"assets/shaders/depth_prepass.vert",
	"assets/shaders/forward.vert",
	"assets/shaders/forward.frag",
	"assets/shaders/shadow_rays.lib",
	"assets/shaders/shadow_blur.comp",
	"assets/shaders/overlay.vert",
	"assets/shaders/overlay.frag",
}

// Compiles every pipeline shader to SPIR-V next to its source.
func (Build) Shaders() error {
	return buildShaders()
}

// Keeps go.mod and generated files current.
func (Build) Tidy() error {
	if _, err := executeCmd("go", withArgs("mod", "tidy")); err != nil {
		return err
	}
	_, err := executeCmd("go", withArgs("generate", "./..."))
	return err
}

func buildShaders() error {
	for _, src := range shaderSources {
		args := []string{src, "-o", src + ".spv"}
		// The ray tracing stages live in one library blob; glslc needs
		// the target environment spelled out for those.
		if src == "assets/shaders/shadow_rays.lib" {
			args = append([]string{"--target-env=vulkan1.1"}, args...)
		}
		if _, err := executeCmd("glslc", withArgs(args...), withStream()); err != nil {
			return err
		}
	}
	return nil
}
