package main

import (
	"os"

	"github.com/conneroisu/volt/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
