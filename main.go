package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/kiln-engine/kiln/engine"
	"github.com/kiln-engine/kiln/engine/config"
)

func main() {
	cfg, err := config.Load("kiln.toml")
	if err != nil {
		panic(err)
	}

	e, err := engine.New(cfg)
	if err != nil {
		panic(err)
	}
	if err := e.Initialize(); err != nil {
		panic(err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		_ = e.Shutdown()
		os.Exit(0)
	}()

	if err := e.Run(); err != nil {
		panic(err)
	}
	if err := e.Shutdown(); err != nil {
		panic(err)
	}
}
