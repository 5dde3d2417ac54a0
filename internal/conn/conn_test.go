package conn

import (
	"net"
	"testing"
	"time"
)

func TestReadTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	c := New(a, "test")

	buf := make([]byte, 16)
	_, err := c.ReadTimeout(buf, 20*time.Millisecond)
	if !IsTimeout(err) {
		t.Fatalf("err=%v, want timeout", err)
	}

	go b.Write([]byte("$FRSES,1*00\r\n"))
	n, err := c.ReadTimeout(buf, time.Second)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "$FRSES,1*00\r\n" {
		t.Fatalf("got %q", buf[:n])
	}
}

func TestReadLineTimeoutKeepsPartial(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	c := New(a, "test")

	go b.Write([]byte("$FRVAL,DistanceFilter,50"))
	part, err := c.ReadLineTimeout(50 * time.Millisecond)
	if !IsTimeout(err) || string(part) != "$FRVAL,DistanceFilter,50" {
		t.Fatalf("got %q err=%v", part, err)
	}

	go b.Write([]byte("0.0*67\r\n"))
	rest, err := c.ReadLineTimeout(time.Second)
	if err != nil || string(rest) != "0.0*67\r\n" {
		t.Fatalf("got %q err=%v", rest, err)
	}
}

func TestPeekDoesNotConsume(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	c := New(a, "test")
	go b.Write([]byte("$GP"))

	p, err := c.Peek(1)
	if err != nil || p[0] != '$' {
		t.Fatalf("peek %q %v", p, err)
	}
	buf := make([]byte, 3)
	n, _ := c.Read(buf)
	if string(buf[:n]) != "$GP" {
		t.Fatalf("read %q", buf[:n])
	}
}

func TestAddrTuple(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
	}()
	nc, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer nc.Close()
	c := New(nc, "x")
	if len(c.tuple) != 4 || c.tuple[0] != "127.0.0.1" || c.tuple[2] != "127.0.0.1" {
		t.Fatalf("tuple %v", c.tuple)
	}
}
