package main

import (
	"os"

	"github.com/jmgilman/docker-tags/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
