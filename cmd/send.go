package cmd

import (
	"fmt"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/oscline/oscline/pkg/log"
	"github.com/oscline/oscline/pkg/transport"
	"github.com/oscline/oscline/pkg/transport/udp"
)

func init() {
	App.Commands = append(App.Commands, Send)
}

var Send = &cli.Command{
	Name:  "send",
	Usage: "send one OSC message over UDP",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:    "address",
			Aliases: []string{"a"},
			Usage:   "OSC address pattern",
			Value:   "/oscline",
		},
		&cli.StringFlag{
			Name:  "sendHost",
			Usage: "destination host",
		},
		&cli.IntFlag{
			Name:  "sendPort",
			Usage: "destination port",
		},
		&cli.IntSliceFlag{
			Name:  "int",
			Usage: "int32 argument (repeatable)",
		},
		&cli.Float64SliceFlag{
			Name:  "float",
			Usage: "float32 argument (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "string",
			Usage: "string argument (repeatable)",
		},
	}, commonFlags...),
	Action: runSend,
}

func runSend(ctx *cli.Context) error {
	c, err := applyConfig(ctx)
	if err != nil {
		return err
	}

	logger, err := log.SetupLogger(c.Loglevel)
	if err != nil {
		return err
	}

	opts, err := c.Transport.TransportOptions()
	if err != nil {
		return err
	}

	msg := osc.NewMessage(ctx.String("address"))
	for _, v := range ctx.IntSlice("int") {
		msg.Append(int32(v))
	}
	for _, v := range ctx.Float64Slice("float") {
		msg.Append(float32(v))
	}
	for _, v := range ctx.StringSlice("string") {
		msg.Append(v)
	}

	data, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	// Bind an ephemeral local port; the configured open port may be in use
	// by a listener on the same machine.
	t, err := udp.New(logger, opts, &transport.Options{
		Open: &transport.OpenOptions{Host: transport.String("localhost"), Port: transport.Int(0)},
	})
	if err != nil {
		return err
	}

	opened := make(chan struct{})
	t.RegisterNotify(func(ev transport.Event) {
		switch ev.Kind {
		case transport.EventOpen:
			close(opened)
		case transport.EventError:
			logger.Error("transport error", zap.Error(ev.Err))
		}
	})

	if err := t.Open(nil); err != nil {
		return err
	}
	select {
	case <-opened:
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timed out waiting for socket")
	}

	if err := t.Send(data, flagOptions(ctx)); err != nil {
		return err
	}
	logger.Info("sent",
		zap.String("address", ctx.String("address")),
		zap.Int("bytes", len(data)))

	return t.Close()
}
