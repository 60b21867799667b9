package main

import (
	"os"

	"cinefm/backend/cli"
)

var version = "0.0.0"

func main() {
	cli.Version = version
	os.Exit(cli.Execute())
}
