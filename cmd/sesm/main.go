package main

import (
	"os"

	"github.com/sesm/sesm/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
