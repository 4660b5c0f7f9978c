package main

import (
	"os"

	"github.com/dimitrije/teamboard/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
