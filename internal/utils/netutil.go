package utils

import (
	"net"
	"strconv"
	"time"
)

// CheckPortConnectable reports whether something accepts TCP connections on localhost:port.
func CheckPortConnectable(port int) bool {
	timeout := time.Second
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

/**
 * Check whether a local listener already holds the TCP port
 * @param {int} port - Port to check
 * @returns {bool} True if the port cannot be bound or already accepts connections
 * @description
 * - Binding is checked first since it is cheap and catches wildcard and loopback listeners
 * - A refused connect after a successful bind means the port is free
 */
func IsPortInUse(port int) bool {
	if !CheckPortListenable(port) {
		return true
	}
	return CheckPortConnectable(port)
}
