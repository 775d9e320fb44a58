package services

import (
	"context"
	"fmt"

	"s5-keeper/internal/errs"
	"s5-keeper/internal/logger"
	"s5-keeper/internal/utils"
)

/**
 * One host firewall control utility
 * @property {string} Name - Backend name used in logs
 * @property {func} Detect - Reports whether the tool is installed
 * @property {func} OpenPort - Adds a TCP allow rule and reloads
 */
type FirewallBackend interface {
	Name() string
	Detect() bool
	OpenPort(ctx context.Context, port int) error
}

type commandBackend struct {
	name   string
	tool   string
	runner utils.Runner
	steps  func(port int) [][]string
}

func (b *commandBackend) Name() string {
	return b.name
}

func (b *commandBackend) Detect() bool {
	_, err := b.runner.LookPath(b.tool)
	return err == nil
}

func (b *commandBackend) OpenPort(ctx context.Context, port int) error {
	for _, args := range b.steps(port) {
		if _, err := b.runner.Run(ctx, b.tool, args...); err != nil {
			return fmt.Errorf("%s: %w: %v", b.name, errs.ErrFirewallFailed, err)
		}
	}
	return nil
}

// Firewalld adds a permanent rule and reloads.
func Firewalld(runner utils.Runner) FirewallBackend {
	return &commandBackend{
		name:   "firewalld",
		tool:   "firewall-cmd",
		runner: runner,
		steps: func(port int) [][]string {
			return [][]string{
				{"--permanent", fmt.Sprintf("--add-port=%d/tcp", port)},
				{"--reload"},
			}
		},
	}
}

func UFW(runner utils.Runner) FirewallBackend {
	return &commandBackend{
		name:   "ufw",
		tool:   "ufw",
		runner: runner,
		steps: func(port int) [][]string {
			return [][]string{
				{"allow", fmt.Sprintf("%d/tcp", port)},
				{"reload"},
			}
		},
	}
}

type FirewallConfigurator struct {
	backends []FirewallBackend
}

// NewFirewallConfigurator tries backends in the given order.
func NewFirewallConfigurator(backends ...FirewallBackend) *FirewallConfigurator {
	return &FirewallConfigurator{backends: backends}
}

// DefaultFirewallConfigurator checks firewalld before ufw.
func DefaultFirewallConfigurator(runner utils.Runner) *FirewallConfigurator {
	return NewFirewallConfigurator(Firewalld(runner), UFW(runner))
}

/**
 * Open a TCP port on the first detected firewall backend
 * @param {context.Context} ctx - Context for firewall commands
 * @param {int} port - Port to allow
 * @returns {(string, error)} Name of the backend acted on, "" when none was found
 * @description
 * - Only the first detected backend is configured
 * - No backend is a warning, not an error
 */
func (fc *FirewallConfigurator) Open(ctx context.Context, port int) (string, error) {
	for _, b := range fc.backends {
		if !b.Detect() {
			continue
		}
		if err := b.OpenPort(ctx, port); err != nil {
			return b.Name(), err
		}
		logger.Infof("port %d/tcp opened with %s", port, b.Name())
		return b.Name(), nil
	}
	logger.Warnf("no supported firewall found, configure the firewall manually to allow %d/tcp", port)
	return "", nil
}
