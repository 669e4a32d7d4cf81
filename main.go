// ./main.go
package main

import (
	"github.com/yhl48/proxy-lite/cmd"
)

// main is the entry point for the Proxy Lite CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
