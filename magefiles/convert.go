//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Convert runs the built CLI over $MD2JSON_INPUT_DIR, writing JSON next to
// each source unless $MD2JSON_OUTPUT_DIR is set.
func Convert() error {
	mg.Deps(Build)

	input := os.Getenv("MD2JSON_INPUT_DIR")
	if input == "" {
		return fmt.Errorf("MD2JSON_INPUT_DIR is not set")
	}
	args := []string{"convert", "--input-dir", input}
	if out := os.Getenv("MD2JSON_OUTPUT_DIR"); out != "" {
		args = append(args, "--output-dir", out)
	}
	return sh.RunV("./"+binDir+"/"+binName, args...)
}

// Report prints the summary of the most recent conversion run.
func Report() error {
	mg.Deps(Build)

	args := []string{"report"}
	if input := os.Getenv("MD2JSON_INPUT_DIR"); input != "" {
		args = append(args, "--input-dir", input)
	}
	return sh.RunV("./"+binDir+"/"+binName, args...)
}
