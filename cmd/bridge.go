package cmd

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/oscline/oscline/pkg/bridge"
	"github.com/oscline/oscline/pkg/log"
	"github.com/oscline/oscline/pkg/transport"
)

func init() {
	App.Commands = append(App.Commands, Bridge)
}

var Bridge = &cli.Command{
	Name:  "bridge",
	Usage: "relay OSC payloads between a UDP socket and WebSocket peers",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "host",
			Usage: "local host the UDP socket binds",
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "local port the UDP socket binds",
		},
		&cli.StringFlag{
			Name:  "sendHost",
			Usage: "destination host for payloads arriving from WebSocket peers",
		},
		&cli.IntFlag{
			Name:  "sendPort",
			Usage: "destination port for payloads arriving from WebSocket peers",
		},
		&cli.IntFlag{
			Name:    "wsPort",
			Aliases: []string{"w"},
			Usage:   "port the WebSocket server listens on",
			Value:   8080,
		},
	}, commonFlags...),
	Action: runBridge,
}

func runBridge(ctx *cli.Context) error {
	c, err := applyConfig(ctx)
	if err != nil {
		return err
	}

	logger, err := log.SetupLogger(c.Loglevel)
	if err != nil {
		return err
	}

	var opts bridge.Options
	if err := c.Transport.DecodeSpec(&opts); err != nil {
		return err
	}
	opts.UDP = mergeFlagLayer(opts.UDP, flagOptions(ctx))
	if ctx.IsSet("wsPort") {
		opts.WebSocket = mergeFlagLayer(opts.WebSocket, &transport.Options{
			Open: &transport.OpenOptions{Port: transport.Int(ctx.Int("wsPort"))},
		})
	}

	b, err := bridge.New(logger, opts)
	if err != nil {
		return err
	}

	b.RegisterNotify(func(ev transport.Event) {
		switch ev.Kind {
		case transport.EventMessage:
			logger.Debug("relayed",
				zap.Stringer("from", ev.From), zap.Int("bytes", len(ev.Payload)))
		case transport.EventError:
			logger.Error("bridge error", zap.Error(ev.Err))
		}
	})

	if err := b.Open(nil); err != nil {
		return err
	}
	logger.Info("bridge running")

	<-SetupSignalHandler().Done()
	return b.Close()
}

// mergeFlagLayer folds the flag layer into a file-config layer so flags win.
func mergeFlagLayer(base, flags *transport.Options) *transport.Options {
	if base == nil {
		return flags
	}
	if flags == nil {
		return base
	}
	if flags.Open != nil {
		if base.Open == nil {
			base.Open = flags.Open
		} else {
			if flags.Open.Host != nil {
				base.Open.Host = flags.Open.Host
			}
			if flags.Open.Port != nil {
				base.Open.Port = flags.Open.Port
			}
		}
	}
	if flags.Send != nil {
		if base.Send == nil {
			base.Send = flags.Send
		} else {
			if flags.Send.Host != nil {
				base.Send.Host = flags.Send.Host
			}
			if flags.Send.Port != nil {
				base.Send.Port = flags.Send.Port
			}
		}
	}
	return base
}
