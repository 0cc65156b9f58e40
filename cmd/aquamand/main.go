package main

import (
	"os"

	"github.com/tech4242/aquaman/cmd/aquamand/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
