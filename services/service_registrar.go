package services

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"s5-keeper/internal/config"
	"s5-keeper/internal/errs"
	"s5-keeper/internal/logger"
	"s5-keeper/internal/models"
	"s5-keeper/internal/utils"

	"github.com/spf13/afero"
	"gopkg.in/ini.v1"
)

func init() {
	// systemd 要求 Key=Value 形式, 不允许对齐空格
	ini.PrettyFormat = false
	ini.PrettyEqual = false
}

/**
 * Parsed view of an installed unit file
 * @property {string} description - [Unit] Description
 * @property {string} execStart - [Service] ExecStart
 * @property {string} restart - [Service] Restart
 */
type UnitInfo struct {
	Path        string `json:"path"`
	Description string `json:"description"`
	ExecStart   string `json:"execStart"`
	Restart     string `json:"restart"`
	RestartSec  int    `json:"restartSec"`
}

type ServiceRegistrar struct {
	cfg        config.ServiceConfig
	fs         afero.Fs
	supervisor Supervisor
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewServiceRegistrar(cfg config.ServiceConfig, fs afero.Fs, supervisor Supervisor) *ServiceRegistrar {
	return &ServiceRegistrar{cfg: cfg, fs: fs, supervisor: supervisor, sleep: sleepContext}
}

// sleepContext waits d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// UnitPath is where the unit of the named service is written.
func (r *ServiceRegistrar) UnitPath(name string) string {
	return filepath.Join(r.cfg.UnitDir, unitName(name))
}

// ini.v1 会给含这些字符的值加反引号, systemd 不认
const unitUnsafeChars = "#;`\r\n"

func quoteArg(arg string) string {
	if strings.ContainsAny(arg, " \t\"") {
		return strconv.Quote(arg)
	}
	return arg
}

/**
 * Render the systemd unit for a provisioning config
 * @param {models.ProvisioningConfig} pc - Provisioning config
 * @returns {([]byte, error)} Unit file content
 * @description
 * - ExecStart is service.command + service.args rendered with pc
 * - Restart=always with RestartSec from config
 * - A rendered command or argument containing '#', ';', '`' or a line break is rejected
 */
func (r *ServiceRegistrar) RenderUnit(pc models.ProvisioningConfig) ([]byte, error) {
	command, args, err := utils.GetCommandLine(r.cfg.Command, r.cfg.Args, pc)
	if err != nil {
		return nil, err
	}
	execStart := make([]string, 0, len(args)+1)
	for _, arg := range append([]string{command}, args...) {
		if strings.ContainsAny(arg, unitUnsafeChars) {
			return nil, fmt.Errorf("ExecStart argument %q contains one of '#', ';', '`' or a line break", arg)
		}
		execStart = append(execStart, quoteArg(arg))
	}

	f := ini.Empty()
	unit, _ := f.NewSection("Unit")
	unit.Key("Description").SetValue(r.cfg.Description)
	unit.Key("After").SetValue("network-online.target")
	unit.Key("Wants").SetValue("network-online.target")

	svc, _ := f.NewSection("Service")
	svc.Key("Type").SetValue("simple")
	svc.Key("ExecStart").SetValue(strings.Join(execStart, " "))
	svc.Key("Restart").SetValue("always")
	svc.Key("RestartSec").SetValue(strconv.Itoa(r.cfg.RestartSec))
	svc.Key("LimitNOFILE").SetValue("1048576")

	install, _ := f.NewSection("Install")
	install.Key("WantedBy").SetValue("multi-user.target")

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render unit: %w", err)
	}
	return buf.Bytes(), nil
}

/**
 * Write the unit, then reload, enable and (re)start it
 * @param {context.Context} ctx - Context for supervisor commands
 * @param {models.ProvisioningConfig} pc - Provisioning config
 * @returns {error} Write or supervisor failure
 */
func (r *ServiceRegistrar) Register(ctx context.Context, pc models.ProvisioningConfig) error {
	data, err := r.RenderUnit(pc)
	if err != nil {
		return err
	}
	path := r.UnitPath(pc.ServiceName)
	// 单元文件权限与 systemd 目录保持一致
	if err := utils.WriteFileAtomic(r.fs, path, data, 0644); err != nil {
		return fmt.Errorf("write unit '%s': %w", path, err)
	}
	logger.Infof("unit file written to %s", path)

	if err := r.supervisor.Reload(ctx); err != nil {
		return err
	}
	if err := r.supervisor.Enable(ctx, pc.ServiceName); err != nil {
		return err
	}
	return r.supervisor.Restart(ctx, pc.ServiceName)
}

/**
 * Poll the supervisor until the service is active or timeout expires
 * @param {context.Context} ctx - Context
 * @param {string} name - Service name
 * @param {time.Duration} timeout - Upper bound of the wait, <=0 uses service.verify_timeout
 * @returns {(bool, error)} true when active; errs.ErrServiceStartFailed with a journalctl hint otherwise
 */
func (r *ServiceRegistrar) VerifyActive(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = r.cfg.VerifyTimeout
	}
	interval := r.cfg.PollInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	polls := int(timeout / interval)
	state := models.StateUnknown
	for i := 0; ; i++ {
		state = r.supervisor.State(ctx, name)
		if state == models.StateActive {
			return true, nil
		}
		if i >= polls {
			break
		}
		if err := r.sleep(ctx, interval); err != nil {
			return false, fmt.Errorf("wait for service %s: %w: %w", name, errs.ErrServiceStartFailed, err)
		}
	}
	return false, fmt.Errorf("service %s is %s after %s, inspect logs with '%s': %w",
		name, state, timeout, JournalHint(name), errs.ErrServiceStartFailed)
}

/**
 * Parse the installed unit file back
 * @param {string} name - Service name
 * @returns {(*UnitInfo, error)} errs.ErrNotProvisioned when the unit file is absent
 */
func (r *ServiceRegistrar) ReadUnit(name string) (*UnitInfo, error) {
	path := r.UnitPath(name)
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read unit '%s': %w", path, errs.ErrNotProvisioned)
	}
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true, KeyValueDelimiters: "="}, data)
	if err != nil {
		return nil, fmt.Errorf("parse unit '%s': %w", path, err)
	}
	info := &UnitInfo{
		Path:        path,
		Description: f.Section("Unit").Key("Description").String(),
		ExecStart:   f.Section("Service").Key("ExecStart").String(),
		Restart:     f.Section("Service").Key("Restart").String(),
		RestartSec:  f.Section("Service").Key("RestartSec").MustInt(0),
	}
	return info, nil
}

/**
 * Stop, disable and remove the unit (best effort, first error returned)
 */
func (r *ServiceRegistrar) Unregister(ctx context.Context, name string) error {
	var firstErr error
	keep := func(err error) {
		if err != nil {
			logger.Warnf("unregister %s: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	keep(r.supervisor.Stop(ctx, name))
	keep(r.supervisor.Disable(ctx, name))
	if err := r.fs.Remove(r.UnitPath(name)); err != nil && !isNotExist(err) {
		keep(err)
	}
	keep(r.supervisor.Reload(ctx))
	return firstErr
}
