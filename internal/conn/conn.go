// Package conn wraps a net.Conn with a buffered reader and a log identity.
package conn

import (
	"bufio"
	"errors"
	"net"
	"os"
	"time"

	"github.com/phuslu/log"
)

type Conn struct {
	id    string
	tuple []string
	r     *bufio.Reader
	net.Conn
}

// New wraps c. id is only used for logging; callers typically pass a uuid.
func New(c net.Conn, id string) *Conn {
	return &Conn{id, addrTuple(c), bufio.NewReader(c), c}
}

func addrTuple(c net.Conn) []string {
	tuple := make([]string, 0, 4)
	for _, a := range []net.Addr{c.RemoteAddr(), c.LocalAddr()} {
		if a == nil {
			tuple = append(tuple, "", "")
			continue
		}
		host, port, err := net.SplitHostPort(a.String())
		if err != nil {
			host, port = a.String(), ""
		}
		tuple = append(tuple, host, port)
	}
	return tuple
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Peek(n int) ([]byte, error) {
	return c.r.Peek(n)
}

func (c *Conn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

// ReadLineTimeout reads up to and including '\n' within d. On error the
// bytes read so far are returned with it.
func (c *Conn) ReadLineTimeout(d time.Duration) ([]byte, error) {
	if d > 0 {
		if err := c.SetReadDeadline(time.Now().Add(d)); err != nil {
			return nil, err
		}
		defer c.SetReadDeadline(time.Time{})
	}
	return c.r.ReadBytes('\n')
}

// ReadTimeout reads whatever is available within d. A zero d blocks.
func (c *Conn) ReadTimeout(p []byte, d time.Duration) (int, error) {
	if d > 0 {
		if err := c.SetReadDeadline(time.Now().Add(d)); err != nil {
			return 0, err
		}
		defer c.SetReadDeadline(time.Time{})
	}
	return c.r.Read(p)
}

// WriteTimeout writes p with a deadline of d. A zero d blocks.
func (c *Conn) WriteTimeout(p []byte, d time.Duration) (int, error) {
	if d > 0 {
		if err := c.SetWriteDeadline(time.Now().Add(d)); err != nil {
			return 0, err
		}
		defer c.SetWriteDeadline(time.Time{})
	}
	return c.Conn.Write(p)
}

func (c *Conn) MarshalObject(e *log.Entry) {
	e.Str("cid", c.id).Strs("socket", c.tuple)
}

// IsTimeout reports whether err is a deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
