// Package main provides the testide command.
package main

import (
	"os"

	"github.com/leapstack-labs/testide/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
