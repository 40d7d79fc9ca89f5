package main

import (
	"os"

	"github.com/Iron-Ham/collabd/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
