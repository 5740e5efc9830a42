package main

import (
	"os"

	"github.com/roach88/triage/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
