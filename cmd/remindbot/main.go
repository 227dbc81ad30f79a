// Package main is the entry point for the remindbot binary.
package main

import (
	"os"

	"remindbot/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
