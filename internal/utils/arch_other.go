//go:build !linux

package utils

import "runtime"

// MachineName falls back to the architecture this binary was built for.
func MachineName() (string, error) {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64", nil
	case "arm64":
		return "aarch64", nil
	}
	return runtime.GOARCH, nil
}
