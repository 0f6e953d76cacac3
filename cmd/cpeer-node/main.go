package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/sensornode/cmd/cpeer-node/app"
)

func main() {
	app.NewApp().Run()
}
