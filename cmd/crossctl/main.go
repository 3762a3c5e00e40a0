package main

import (
	"os"

	"github.com/autopeer-io/crossway/cmd/crossctl/app"
)

func main() {
	if err := app.NewCrossctlCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
