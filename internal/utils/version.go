package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hashicorp/go-version"
)

var versionPattern = regexp.MustCompile(`v?(\d+\.\d+(?:\.\d+)?)`)

/**
 * Extract the version number from a program's self-reported version output
 * @param {string} output - Output of e.g. `gost -V` ("gost 2.11.5 (go1.17 linux/amd64)")
 * @returns {(string, error)} Version without leading "v"
 * @example
 * ver, _ := ParseVersionOutput("gost 2.11.5 (go1.17.6 linux/amd64)") // "2.11.5"
 */
func ParseVersionOutput(output string) (string, error) {
	m := versionPattern.FindStringSubmatch(strings.TrimSpace(output))
	if m == nil {
		return "", fmt.Errorf("no version found in %q", strings.TrimSpace(output))
	}
	return m[1], nil
}

// NormalizeTag strips a leading "v" and validates the remainder as a version.
func NormalizeTag(tag string) (string, error) {
	tag = strings.TrimSpace(tag)
	v, err := version.NewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return "", fmt.Errorf("invalid version tag '%s': %w", tag, err)
	}
	return v.Original(), nil
}

/**
 * Compare two versions
 * @returns {(int, error)} -1 if local < remote, 0 if equal, 1 if local > remote
 */
func CompareVersion(local, remote string) (int, error) {
	lv, err := version.NewVersion(local)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", local, err)
	}
	rv, err := version.NewVersion(remote)
	if err != nil {
		return 0, fmt.Errorf("invalid version '%s': %w", remote, err)
	}
	return lv.Compare(rv), nil
}
