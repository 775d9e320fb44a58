package services

import (
	"context"
	"fmt"
	"strings"

	"s5-keeper/internal/errs"
	"s5-keeper/internal/logger"
	"s5-keeper/internal/models"
	"s5-keeper/internal/utils"
)

/**
 * Control surface of the host process supervisor
 * @description
 * - Every query re-reads supervisor state, nothing is cached
 * - Action failures wrap errs.ErrSupervisorAction
 */
type Supervisor interface {
	Reload(ctx context.Context) error
	Enable(ctx context.Context, name string) error
	Disable(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Restart(ctx context.Context, name string) error
	State(ctx context.Context, name string) models.ServiceState
	// Status returns the supervisor's native status text
	Status(ctx context.Context, name string) (string, error)
}

type Systemd struct {
	runner utils.Runner
}

func NewSystemd(runner utils.Runner) *Systemd {
	if runner == nil {
		runner = utils.ExecRunner{}
	}
	return &Systemd{runner: runner}
}

func unitName(name string) string {
	if strings.HasSuffix(name, ".service") {
		return name
	}
	return name + ".service"
}

func (s *Systemd) systemctl(ctx context.Context, action string, args ...string) error {
	if _, err := s.runner.Run(ctx, "systemctl", append([]string{action}, args...)...); err != nil {
		recordSupervisorAction(action, false)
		return fmt.Errorf("systemctl %s: %w: %v", action, errs.ErrSupervisorAction, err)
	}
	recordSupervisorAction(action, true)
	logger.Debugf("systemctl %s %s ok", action, strings.Join(args, " "))
	return nil
}

func (s *Systemd) Reload(ctx context.Context) error {
	return s.systemctl(ctx, "daemon-reload")
}

func (s *Systemd) Enable(ctx context.Context, name string) error {
	return s.systemctl(ctx, "enable", unitName(name))
}

func (s *Systemd) Disable(ctx context.Context, name string) error {
	return s.systemctl(ctx, "disable", unitName(name))
}

func (s *Systemd) Start(ctx context.Context, name string) error {
	return s.systemctl(ctx, "start", unitName(name))
}

func (s *Systemd) Stop(ctx context.Context, name string) error {
	return s.systemctl(ctx, "stop", unitName(name))
}

func (s *Systemd) Restart(ctx context.Context, name string) error {
	return s.systemctl(ctx, "restart", unitName(name))
}

// State maps `systemctl is-active`; a non-zero exit with output is still a valid answer.
func (s *Systemd) State(ctx context.Context, name string) models.ServiceState {
	out, err := s.runner.Run(ctx, "systemctl", "is-active", unitName(name))
	state := strings.TrimSpace(string(out))
	switch {
	case state == "active":
		return models.StateActive
	case state == "":
		if err != nil {
			logger.Warnf("systemctl is-active %s: %v", name, err)
		}
		return models.StateUnknown
	}
	return models.StateInactive
}

func (s *Systemd) Status(ctx context.Context, name string) (string, error) {
	out, err := s.runner.Run(ctx, "systemctl", "status", unitName(name), "--no-pager")
	if len(out) > 0 {
		// 非运行状态时 systemctl status 返回 3, 输出仍然有效
		return string(out), nil
	}
	if err != nil {
		return "", fmt.Errorf("systemctl status: %w: %v", errs.ErrSupervisorAction, err)
	}
	return "", nil
}

// JournalHint is the command operators run to inspect a failed unit.
func JournalHint(name string) string {
	return fmt.Sprintf("journalctl -u %s --no-pager -n 50", name)
}
