package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/oscline/oscline/config"
	"github.com/oscline/oscline/pkg/transport"
)

var App = &cli.App{
	Name:     "oscline",
	Usage:    "OSC transport adapters: listen, send and bridge OSC over UDP and WebSocket",
	Version:  "0.1.0",
	Commands: []*cli.Command{},
}

var onlyOneSignalHandler = make(chan struct{})

// SetupSignalHandler registers for SIGTERM and SIGINT. A context is returned
// which is canceled on one of these signals. If a second signal is caught, the program
// is terminated with exit code 1.
func SetupSignalHandler() context.Context {
	close(onlyOneSignalHandler) // panics when called twice

	ctx, cancel := context.WithCancel(context.Background())

	c := make(chan os.Signal, 2)
	signal.Notify(c, shutdownSignals...)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1) // second signal. Exit directly.
	}()

	return ctx
}

var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM, syscall.SIGINT}

// applyConfig loads the optional config file and layers command line flags
// over it.
func applyConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := &config.Config{}
	if ctx.String("config") != "" {
		loaded, err := config.Load(ctx.String("config"))
		if err == nil {
			cfg = loaded
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	if ctx.IsSet("loglevel") || cfg.Loglevel == "" {
		cfg.Loglevel = ctx.String("loglevel")
	}

	return cfg, nil
}

// flagOptions turns the shared host/port flags into a per-call options layer.
func flagOptions(ctx *cli.Context) *transport.Options {
	o := &transport.Options{}
	if ctx.IsSet("host") {
		o.Open = &transport.OpenOptions{Host: transport.String(ctx.String("host"))}
	}
	if ctx.IsSet("port") {
		if o.Open == nil {
			o.Open = &transport.OpenOptions{}
		}
		o.Open.Port = transport.Int(ctx.Int("port"))
	}
	if ctx.IsSet("sendHost") {
		o.Send = &transport.SendOptions{Host: transport.String(ctx.String("sendHost"))}
	}
	if ctx.IsSet("sendPort") {
		if o.Send == nil {
			o.Send = &transport.SendOptions{}
		}
		o.Send.Port = transport.Int(ctx.Int("sendPort"))
	}
	return o
}

var commonFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "config file path",
		Value:   "config.yaml",
	},
	&cli.StringFlag{
		Name:    "loglevel",
		Aliases: []string{"ll"},
		Usage:   "log level (debug info warn error dpanic panic fatal)",
		Value:   "info",
	},
}
