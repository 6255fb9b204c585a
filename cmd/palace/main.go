package main

import (
	"os"

	"github.com/palace-sh/palace/pkg/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
