package main

import (
	"log"
	"os"

	"rc-timing/api"
	"rc-timing/bootstrap/config"
	"rc-timing/bootstrap/mode"
	"rc-timing/bootstrap/server"
	"rc-timing/logger"
	_ "rc-timing/migrations"
)

func main() {
	flags := config.ParseFlags()
	logger.Configure(flags.LogLevel)

	app := config.NewPocketBaseApp(flags)
	wiring := mode.Build(app, flags)

	api.RegisterRoutes(app, wiring.Service, wiring.Builder, wiring.Plans, wiring.Manager)
	server.RegisterServe(app, wiring, flags)

	os.Args = append(os.Args[:1], config.PreparePocketBaseArgs(flags)...)
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}
