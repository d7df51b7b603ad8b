// Package main provides the entry point for the embedsearch CLI.
package main

import (
	"os"

	"github.com/embedsearch/embedsearch/cmd/embedsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
