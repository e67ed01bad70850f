// Package cmd is the thin Execute() entrypoint the binary's main calls,
// mirroring the donor's cmd/cmd split between the package that builds
// the cobra tree (cmd/handlers) and the package main imports.
package cmd

import (
	"fmt"
	"os"

	"newscast/cmd/handlers"
)

// Execute runs the root command and exits non-zero on error.
func Execute() {
	if err := handlers.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
