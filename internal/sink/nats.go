package sink

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/phuslu/log"
)

type NATSConfig struct {
	URL     string
	Subject string
	Name    string
}

type NATS struct {
	cfg NATSConfig
	nc  *nats.Conn
	log log.Logger
}

func NewNATS(cfg NATSConfig, logger log.Logger) (*NATS, error) {
	n := &NATS{cfg: cfg, log: logger}
	n.log.Context = log.NewContext(nil).Str("module", "nats_sink").Value()
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.log.Warn().Err(err).Msg("nats disconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	n.nc = nc
	n.log.Info().Str("url", cfg.URL).Str("subject", cfg.Subject).Msg("connected")
	return n, nil
}

// Publish is buffered by the nats client; ctx is unused.
func (n *NATS) Publish(ctx context.Context, payload []byte) error {
	return n.nc.Publish(n.cfg.Subject, payload)
}

func (n *NATS) Close() {
	if err := n.nc.Drain(); err != nil {
		n.nc.Close()
	}
}
