// The main package for the edison-gateway executable.
package main

import (
	"github.com/JakeFAU/edison-gateway/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
