/*
This is an example application that drives the engine package: it
loads a small scene, flies a camera around it and draws the debug
overlay on top.
*/
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/prism-engine/prism/engine"
	"github.com/prism-engine/prism/testbed"
)

func main() {
	tb, err := testbed.NewTestGame()
	if err != nil {
		panic(err)
	}

	app, err := engine.New(tb.Game)
	if err != nil {
		panic(err)
	}

	if err := app.Initialize(); err != nil {
		panic(err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	go func() {
		<-sigCh
		_ = app.Shutdown()
	}()

	if err := app.Run(); err != nil {
		panic(err)
	}
}
