package main

import (
	"os"

	"github.com/notegraph/notegraph/cmd/notegraph/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
