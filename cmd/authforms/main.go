// Command authforms renders, validates and serves the account forms.
package main

import (
	"fmt"
	"os"

	"github.com/gookit/color"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		color.Red.Println("Error: " + err.Error())
		os.Exit(exitCode(err))
	}
}
