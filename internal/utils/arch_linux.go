//go:build linux

package utils

import (
	"golang.org/x/sys/unix"
)

// MachineName returns the kernel machine hardware name (uname -m).
func MachineName() (string, error) {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "", err
	}
	return unix.ByteSliceToString(u.Machine[:]), nil
}
