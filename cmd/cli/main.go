// Package main is the entry point for the ledgerctl CLI binary.
package main

import (
	"os"

	cli "accessledger/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
