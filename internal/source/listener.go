package source

import (
	"context"
	"errors"
	"net"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	proxyproto "github.com/pires/go-proxyproto"

	"github.com/cradlepoint/sdk-samples-sub000/internal/conn"
)

const (
	NEW_CONNECTION    string = "new_connection"
	CONNECTION_CLOSED string = "connection_closed"
)

type ListenerConfig struct {
	Addr          string
	ProxyProtocol bool
	Reader        ReaderConfig
}

// Listener accepts GPS clients one at a time. Further clients wait in the
// accept backlog until the current one disconnects.
type Listener struct {
	cfg ListenerConfig
	log log.Logger
}

func NewListener(cfg ListenerConfig, logger log.Logger) *Listener {
	l := &Listener{cfg: cfg, log: logger}
	l.log.Context = log.NewContext(nil).Str("module", "gps-listener").Value()
	return l
}

func (l *Listener) Run(ctx context.Context, h BurstHandler) error {
	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return err
	}
	return l.Serve(ctx, ln, h)
}

// Serve takes ownership of ln and closes it on return.
func (l *Listener) Serve(ctx context.Context, ln net.Listener, h BurstHandler) error {
	if l.cfg.ProxyProtocol {
		ln = &proxyproto.Listener{Listener: ln}
	}
	defer ln.Close()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	l.log.Info().Str("addr", ln.Addr().String()).Bool("proxy_protocol", l.cfg.ProxyProtocol).Msg("accepting gps clients")
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c := conn.New(nc, uuid.NewString())
		l.log.Info().Str("event", NEW_CONNECTION).EmbedObject(c).Msg("")
		err = l.serveConn(ctx, c, h)
		var he *HandlerError
		if errors.As(err, &he) {
			return he.Err
		}
		l.log.Info().Str("event", CONNECTION_CLOSED).EmbedObject(c).AnErr("reason", err).Msg("")
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (l *Listener) serveConn(ctx context.Context, c *conn.Conn, h BurstHandler) error {
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()
	return ReadBursts(ctx, c, l.cfg.Reader, h)
}
