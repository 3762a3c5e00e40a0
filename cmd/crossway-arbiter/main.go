package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/crossway/cmd/crossway-arbiter/app"
)

func main() {
	app.NewApp().Run()
}
