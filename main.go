// Package main is the entry point for the datasender CLI application.
// It runs one export-and-handoff cycle per invocation and is meant to be
// started by an external scheduler.
package main

import (
	"datasender/cli/cmd"
)

// main is the entry point for the datasender CLI application.
func main() {
	cmd.Execute()
}
