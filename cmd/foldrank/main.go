// Package main provides the entry point for the foldrank CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/foldrank/cmd/foldrank/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
