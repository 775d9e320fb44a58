package server

import (
	"net"
	"os"
	"path/filepath"

	"s5-keeper/internal/logger"
)

type ListenAddr struct {
	Network string
	Address string
}

/**
 * Build the listen addresses of the management API
 * @param {string} address - TCP address, empty disables TCP
 * @param {string} socket - Unix socket path, empty disables the socket
 * @returns {[]ListenAddr} Addresses to listen on
 */
func ListenAddrs(address, socket string) []ListenAddr {
	var addrs []ListenAddr
	if address != "" {
		addrs = append(addrs, ListenAddr{Network: "tcp", Address: address})
	}
	if socket != "" {
		addrs = append(addrs, ListenAddr{Network: "unix", Address: socket})
	}
	return addrs
}

/**
 * Create TCP and Unix socket listeners
 * @param {[]ListenAddr} addrs - Listener Address
 * @returns {([]net.Listener, error)} Created listeners and the last creation error
 * @description
 * - Removes a stale socket file before listening on it
 * - Socket files are restricted to root (0600)
 * - A failing address is logged and skipped
 */
func CreateListeners(addrs []ListenAddr) ([]net.Listener, error) {
	var listeners []net.Listener

	var lastErr error
	for _, addr := range addrs {
		if addr.Network == "unix" {
			if err := os.MkdirAll(filepath.Dir(addr.Address), 0755); err != nil {
				logger.Errorf("Failed to create socket directory: %v", err)
				lastErr = err
				continue
			}
			if err := os.Remove(addr.Address); err != nil && !os.IsNotExist(err) {
				logger.Errorf("Failed to remove existing socket file: %v", err)
				lastErr = err
				continue
			}
		}
		l, err := net.Listen(addr.Network, addr.Address)
		if err != nil {
			logger.Errorf("Failed to create listener on %s://%s: %v", addr.Network, addr.Address, err)
			lastErr = err
			continue
		}
		if addr.Network == "unix" {
			// 接口可触发服务启停, 仅允许 root 访问
			_ = os.Chmod(addr.Address, 0600)
		}
		listeners = append(listeners, l)
	}
	return listeners, lastErr
}
