package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/exp/slog"

	"github.com/alovak/cardflow-bridge/gateway"
)

var flagConfig = flag.String("config", "", "path to a YAML config file")

func main() {
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := gateway.LoadConfig(*flagConfig)
	if err != nil {
		fail("loading config: %v", err)
	}

	app := gateway.NewApp(logger, cfg)
	if err := app.Start(); err != nil {
		fail("starting gateway: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	app.Shutdown()
}

func fail(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
