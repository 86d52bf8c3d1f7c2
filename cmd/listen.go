package cmd

import (
	"net"

	"github.com/hypebeast/go-osc/osc"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/oscline/oscline/pkg/log"
	"github.com/oscline/oscline/pkg/transport"
	"github.com/oscline/oscline/pkg/transport/udp"
)

func init() {
	App.Commands = append(App.Commands, Listen)
}

var Listen = &cli.Command{
	Name:  "listen",
	Usage: "receive OSC messages over UDP and print them",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "host",
			Usage: "local host to bind",
		},
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "local port to bind",
		},
	}, commonFlags...),
	Action: runListen,
}

func runListen(ctx *cli.Context) error {
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

	t, err := udp.New(logger, opts, flagOptions(ctx))
	if err != nil {
		return err
	}

	t.RegisterNotify(func(ev transport.Event) {
		switch ev.Kind {
		case transport.EventOpen:
			logger.Info("listening", zap.Stringer("laddr", t.LocalAddr()))
		case transport.EventMessage:
			pkt, err := osc.ParsePacket(string(ev.Payload))
			if err != nil {
				logger.Warn("undecodable datagram",
					zap.Stringer("from", ev.From), zap.Int("bytes", len(ev.Payload)), zap.Error(err))
				return
			}
			logPacket(logger, pkt, ev.From)
		case transport.EventError:
			logger.Error("transport error", zap.Error(ev.Err))
		case transport.EventClose:
			logger.Info("closed")
		}
	})

	if err := t.Open(nil); err != nil {
		return err
	}

	<-SetupSignalHandler().Done()
	return t.Close()
}

func logPacket(logger *zap.Logger, pkt osc.Packet, from net.Addr) {
	switch p := pkt.(type) {
	case *osc.Message:
		logger.Info("message",
			zap.Stringer("from", from),
			zap.String("address", p.Address),
			zap.Any("arguments", p.Arguments))
	case *osc.Bundle:
		logger.Info("bundle",
			zap.Stringer("from", from),
			zap.Int("messages", len(p.Messages)))
		for _, m := range p.Messages {
			logPacket(logger, m, from)
		}
	default:
		logger.Warn("unknown packet type", zap.Stringer("from", from))
	}
}
