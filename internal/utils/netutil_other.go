//go:build !unix

package utils

import (
	"fmt"
	"net"
)

// CheckPortListenable checks if a port is listenable
func CheckPortListenable(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	defer l.Close()
	return true
}
