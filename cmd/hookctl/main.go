package main

import (
	"os"

	"github.com/hookline/hookline/cmd/hookctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
