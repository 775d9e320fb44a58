package services

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/txthinking/socks5"
)

// serveUserPass answers one username/password negotiation per connection.
func serveUserPass(t *testing.T, user, pass string) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				if _, err := socks5.NewNegotiationRequestFrom(c); err != nil {
					return
				}
				if _, err := socks5.NewNegotiationReply(socks5.MethodUsernamePassword).WriteTo(c); err != nil {
					return
				}
				urq, err := socks5.NewUserPassNegotiationRequestFrom(c)
				if err != nil {
					return
				}
				status := socks5.UserPassStatusSuccess
				if string(urq.Uname) != user || string(urq.Passwd) != pass {
					status = socks5.UserPassStatusFailure
				}
				socks5.NewUserPassNegotiationReply(status).WriteTo(c)
			}(c)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestProbeSOCKS5(t *testing.T) {
	port := serveUserPass(t, "user1234", "Abcdefgh12345678")
	if err := ProbeSOCKS5(context.Background(), port, "user1234", "Abcdefgh12345678", time.Second); err != nil {
		t.Fatalf("ProbeSOCKS5() error: %v", err)
	}
	if err := ProbeSOCKS5(context.Background(), port, "user1234", "wrong", time.Second); !errors.Is(err, ErrProbeAuth) {
		t.Fatalf("expected ErrProbeAuth, got %v", err)
	}
}

func TestProbeSOCKS5NoListener(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skip(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	if err := ProbeSOCKS5(context.Background(), port, "u", "p", 200*time.Millisecond); err == nil {
		t.Fatal("expected dial error")
	}
}
