package services

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"s5-keeper/internal/config"
	"s5-keeper/internal/errs"
	"s5-keeper/internal/logger"
	"s5-keeper/internal/models"
	"s5-keeper/internal/utils"
)

// PortProbe reports whether a local listener already holds a TCP port.
type PortProbe interface {
	InUse(port int) bool
}

type PortProbeFunc func(port int) bool

func (f PortProbeFunc) InUse(port int) bool {
	return f(port)
}

// LocalPortProbe checks the local listener table by binding and connecting.
var LocalPortProbe PortProbe = PortProbeFunc(utils.IsPortInUse)

type PortAllocator struct {
	cfg   config.PortConfig
	probe PortProbe
	intn  func(n int) int
}

func NewPortAllocator(cfg config.PortConfig, probe PortProbe) *PortAllocator {
	if probe == nil {
		probe = LocalPortProbe
	}
	return &PortAllocator{cfg: cfg, probe: probe, intn: rand.Intn}
}

/**
 * Select the SOCKS5 listening port
 * @param {models.PortMode} mode - random or manual
 * @param {string} manual - Operator supplied port, used in manual mode only
 * @returns {(int, error)} Selected port
 * @description
 * - random: samples [min,max] uniformly, at most cfg.Attempts times
 * - manual: decimal in [1,65535] that no local listener holds
 * @throws
 * - errs.ErrInvalidPort, errs.ErrPortInUse, errs.ErrExhaustedRange
 */
func (pa *PortAllocator) Allocate(mode models.PortMode, manual string) (int, error) {
	switch mode {
	case models.PortModeManual:
		return pa.allocateManual(manual)
	case models.PortModeRandom, "":
		return pa.allocateRandom()
	}
	return 0, fmt.Errorf("unknown port mode '%s'", mode)
}

func ParsePort(s string) (int, error) {
	s = strings.TrimSpace(s)
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("'%s' is not a number: %w", s, errs.ErrInvalidPort)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%d is outside [1,65535]: %w", port, errs.ErrInvalidPort)
	}
	return port, nil
}

func (pa *PortAllocator) allocateManual(s string) (int, error) {
	port, err := ParsePort(s)
	if err != nil {
		return 0, err
	}
	if pa.probe.InUse(port) {
		return 0, fmt.Errorf("port %d: %w", port, errs.ErrPortInUse)
	}
	return port, nil
}

func (pa *PortAllocator) allocateRandom() (int, error) {
	span := pa.cfg.Max - pa.cfg.Min + 1
	if span <= 0 {
		return 0, fmt.Errorf("empty range [%d,%d]: %w", pa.cfg.Min, pa.cfg.Max, errs.ErrExhaustedRange)
	}
	attempts := pa.cfg.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		port := pa.cfg.Min + pa.intn(span)
		if !pa.probe.InUse(port) {
			logger.Debugf("port %d selected after %d attempt(s)", port, i+1)
			return port, nil
		}
	}
	return 0, fmt.Errorf("%d attempts in [%d,%d]: %w", attempts, pa.cfg.Min, pa.cfg.Max, errs.ErrExhaustedRange)
}
