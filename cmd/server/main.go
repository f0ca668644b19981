package main

import (
	"os"
	"os/signal"
	"syscall"

	"vidgen/config"
	"vidgen/internal/mediator"

	"github.com/TypeTerrors/gonfig"
	"github.com/charmbracelet/log"
)

func main() {

	cfg, err := gonfig.Load[config.Config](
		gonfig.WithConfigFile("config/config.yaml"),
		gonfig.WithDotenv(".env"), // ignored if missing
		gonfig.WithStrict(),       // fail if ${VAR} has no value/default
	)
	if err != nil {
		log.Fatal(err)
	}

	app, err := mediator.NewApp(cfg)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("shutting down")
		app.Shutdown()
	}()

	log.Info("vidgen starting", "port", cfg.Api.Port, "rpcPort", cfg.Rpc.Port, "media", cfg.Media.Backend)
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}
