// Package main provides the qsp-cli command line interface.
package main

import (
	"fmt"
	"os"

	"github.com/BackendStack21/qsp-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
