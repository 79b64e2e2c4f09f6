package main

import (
	"os"

	"github.com/majorcontext/gitcred/cmd/gitcred/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
