package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/txthinking/socks5"
)

var ErrProbeAuth = errors.New("proxy rejected credentials")

/**
 * Check that the proxy on 127.0.0.1:port accepts the credentials
 * @param {context.Context} ctx - Context
 * @param {int} port - Proxy port
 * @param {string} username - Username
 * @param {string} password - Password
 * @param {time.Duration} timeout - Dial and negotiation deadline
 * @returns {error} nil when username/password negotiation succeeds
 */
func ProbeSOCKS5(ctx context.Context, port int, username, password string, timeout time.Duration) error {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("dial proxy: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	methods := []byte{socks5.MethodUsernamePassword}
	if _, err := socks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}
	neg, err := socks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}
	if neg.Method != socks5.MethodUsernamePassword {
		return fmt.Errorf("proxy selected method %d instead of username/password", neg.Method)
	}

	if _, err := socks5.NewUserPassNegotiationRequest([]byte(username), []byte(password)).WriteTo(conn); err != nil {
		return fmt.Errorf("write userpass: %w", err)
	}
	rep, err := socks5.NewUserPassNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read userpass: %w", err)
	}
	if rep.Status != socks5.UserPassStatusSuccess {
		return ErrProbeAuth
	}
	return nil
}
