package main

import (
	"os"

	"github.com/evolvekit/kb-evolve/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
