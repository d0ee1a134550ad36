// Package main provides the entry point for the ragload CLI.
package main

import (
	"os"

	"github.com/seongho-dev/ragload/cmd/ragload/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
