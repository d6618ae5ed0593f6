package host

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"
)

func listen(t *testing.T) (net.Listener, netip.AddrPort) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	return ln, netip.MustParseAddrPort(ln.Addr().String())
}

func TestTransport_DialEcho(t *testing.T) {
	ln, addr := listen(t)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_, _ = io.Copy(c, c)
	}()

	conn, err := await(t, NewTransport().Dial(context.Background(), addr, time.Second))
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(buf) != "ping" {
		t.Errorf("echo = %q, want %q", buf, "ping")
	}
}

func TestTransport_DialRefused(t *testing.T) {
	ln, addr := listen(t)
	ln.Close()

	_, err := await(t, NewTransport().Dial(context.Background(), addr, time.Second))
	if !errors.Is(err, ErrDial) {
		t.Errorf("Dial() error = %v, want ErrDial", err)
	}
}

func TestTransport_IdleTimeoutAfterWrite(t *testing.T) {
	ln, addr := listen(t)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		// Read and never answer.
		_, _ = io.Copy(io.Discard, c)
	}()

	conn, err := await(t, NewTransport().Dial(context.Background(), addr, 50*time.Millisecond))
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("request")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	start := time.Now()
	_, err = conn.Read(make([]byte, 1))
	var ne net.Error
	if !errors.As(err, &ne) || !ne.Timeout() {
		t.Fatalf("Read() error = %v, want timeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout after %v, want about 50ms", elapsed)
	}
}

func TestTransport_ReadClearsDeadline(t *testing.T) {
	ln, addr := listen(t)
	release := make(chan struct{})
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 1)
		_, _ = c.Read(buf)
		_, _ = c.Write([]byte("a"))
		<-release
		_, _ = c.Write([]byte("b"))
	}()

	conn, err := await(t, NewTransport().Dial(context.Background(), addr, 30*time.Millisecond))
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	defer conn.Close()

	_, _ = conn.Write([]byte("x"))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("first Read() error: %v", err)
	}

	// Idle well past the timeout with nothing owed.
	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()
	if _, err := conn.Read(buf); err != nil {
		t.Fatalf("second Read() error = %v, want data after idle period", err)
	}
	if string(buf) != "b" {
		t.Errorf("second Read() = %q, want %q", buf, "b")
	}
}
