package gpsgate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/conn"
	"github.com/cradlepoint/sdk-samples-sub000/internal/nmea"
)

type ClientConfig struct {
	Addr              string
	DialTimeout       time.Duration
	RecvTimeout       time.Duration
	HandshakeAttempts int
}

// Client runs a Session over a TCP connection.
type Client struct {
	c       *conn.Conn
	cfg     ClientConfig
	session *Session
	log     log.Logger
	// pending holds a frame cut by the receive timeout
	pending []byte
}

// Dial connects to cfg.Addr. The core does not retry.
func Dial(ctx context.Context, cfg ClientConfig, id string, session *Session, logger log.Logger) (*Client, error) {
	d := net.Dialer{Timeout: cfg.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial gpsgate %s: %w", cfg.Addr, err)
	}
	return NewClient(conn.New(nc, id), cfg, session, logger), nil
}

func NewClient(c *conn.Conn, cfg ClientConfig, session *Session, logger log.Logger) *Client {
	if cfg.HandshakeAttempts <= 0 {
		cfg.HandshakeAttempts = 5
	}
	cl := &Client{c: c, cfg: cfg, session: session, log: logger}
	cl.log.Context = log.NewContext(nil).Str("module", "gpsgate_client").Value()
	return cl
}

func (cl *Client) Session() *Session { return cl.session }

// Handshake drives the session until it is forwarding. Each outbound frame
// is followed by reads until RecvTimeout expires with nothing queued. A
// frame that does not move the session forward counts as one failed attempt.
func (cl *Client) Handshake(ctx context.Context) error {
	failed := 0
	for cl.session.State() != Forwarding {
		if err := ctx.Err(); err != nil {
			return err
		}
		before := cl.session.State()
		frame := cl.session.NextClientToServer()
		if _, err := cl.c.WriteTimeout(frame, cl.cfg.RecvTimeout); err != nil {
			return fmt.Errorf("write %q: %w", strings.TrimSpace(string(frame)), err)
		}
		cl.log.Debug().EmbedObject(cl.c).Bytes("frame", frame).Msg("sent")
		if cl.session.State() == Forwarding {
			// FRWDT has no reply
			return nil
		}
		if err := cl.drain(); err != nil {
			return err
		}
		if cl.session.State() <= before || cl.session.State().waiting() {
			failed++
			if failed >= cl.cfg.HandshakeAttempts {
				return fmt.Errorf("%w: stuck in %s after %d attempts", ErrHandshake, cl.session.State(), failed)
			}
			continue
		}
		failed = 0
	}
	return nil
}

// drain parses complete server lines until the receive timeout expires. A
// line cut by the timeout is completed by the next drain.
func (cl *Client) drain() error {
	for {
		line, err := cl.c.ReadLineTimeout(cl.cfg.RecvTimeout)
		cl.pending = append(cl.pending, line...)
		if err == nil {
			cl.log.Debug().EmbedObject(cl.c).Bytes("reply", cl.pending).Msg("received")
			perr := cl.session.Parse(cl.pending)
			cl.pending = cl.pending[:0]
			if errors.Is(perr, ErrServer) {
				return perr
			}
			continue
		}
		if conn.IsTimeout(err) {
			return nil
		}
		return fmt.Errorf("read gpsgate: %w", err)
	}
}

// Forward writes sentences, adding '$', checksum and CRLF where missing.
func (cl *Client) Forward(ctx context.Context, sentences []string) error {
	if cl.session.State() != Forwarding {
		return ErrNotForwarding
	}
	var b strings.Builder
	for _, s := range sentences {
		s = strings.TrimRight(s, "\r\n")
		if s == "" {
			continue
		}
		if !strings.HasPrefix(s, "$") {
			s = nmea.WrapSentence(s)
		} else {
			s += "\r\n"
		}
		b.WriteString(s)
	}
	if b.Len() == 0 {
		return nil
	}
	timeout := cl.cfg.RecvTimeout
	if dl, ok := ctx.Deadline(); ok {
		if timeout = time.Until(dl); timeout <= 0 {
			return context.DeadlineExceeded
		}
	}
	_, err := cl.c.WriteTimeout([]byte(b.String()), timeout)
	return err
}

func (cl *Client) Close() error {
	cl.log.Info().EmbedObject(cl.c).Str("event", "connection_closed").Msg("closing upstream")
	return cl.c.Close()
}
