package main

import (
	"os"

	"github.com/freddiev4/rune/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
