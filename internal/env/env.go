package env

import (
	"os"
)

// Daemon is true while running as `s5 server`.
var Daemon bool = false

// ConfigFile is the --config flag value; empty means search the default locations.
var ConfigFile string = ""

// (default: /etc/s5, overridable by S5_HOME)
var S5Dir string = GetS5Dir()

/**
 * Get s5 base directory path
 * @returns {string} Returns s5 directory path
 */
func GetS5Dir() string {
	if dir := os.Getenv("S5_HOME"); dir != "" {
		return dir
	}
	return "/etc/s5"
}

/**
 * Check whether the current process runs with root privileges
 * @returns {bool} Returns true if effective uid is 0
 */
func IsRoot() bool {
	return os.Geteuid() == 0
}
