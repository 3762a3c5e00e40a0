package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/crossway/cmd/crossway-agent/app"
)

func main() {
	app.NewApp().Run()
}
