package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"s5-keeper/internal/errs"
	"s5-keeper/internal/logger"
	"s5-keeper/internal/models"
)

// requireProvisioned fails with errs.ErrNotProvisioned when no unit file exists.
func (k *Keeper) requireProvisioned() error {
	if _, err := k.fs.Stat(k.Registrar.UnitPath(k.ServiceName())); err != nil {
		return fmt.Errorf("unit of service %s not found: %w", k.ServiceName(), errs.ErrNotProvisioned)
	}
	return nil
}

func (k *Keeper) Start(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.requireProvisioned(); err != nil {
		return err
	}
	if err := k.Supervisor.Start(ctx, k.ServiceName()); err != nil {
		return err
	}
	_, err := k.Registrar.VerifyActive(ctx, k.ServiceName(), 0)
	setServiceActive(err == nil)
	return err
}

func (k *Keeper) Stop(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.requireProvisioned(); err != nil {
		return err
	}
	if err := k.Supervisor.Stop(ctx, k.ServiceName()); err != nil {
		return err
	}
	setServiceActive(false)
	return nil
}

func (k *Keeper) Restart(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.requireProvisioned(); err != nil {
		return err
	}
	if err := k.Supervisor.Restart(ctx, k.ServiceName()); err != nil {
		return err
	}
	_, err := k.Registrar.VerifyActive(ctx, k.ServiceName(), 0)
	setServiceActive(err == nil)
	return err
}

/**
 * Read the service state from the supervisor
 * @returns {(models.ServiceStatus, string, error)} Parsed state, native status text
 */
func (k *Keeper) Status(ctx context.Context) (models.ServiceStatus, string, error) {
	status := models.ServiceStatus{Name: k.ServiceName()}
	status.State = k.Supervisor.State(ctx, k.ServiceName())
	setServiceActive(status.State == models.StateActive)
	if v, err := k.Binary.InstalledVersion(ctx); err == nil {
		status.Version = v
	}
	text, err := k.Supervisor.Status(ctx, k.ServiceName())
	return status, text, err
}

func (k *Keeper) Info() (string, error) {
	return k.Reporter.ReadInfo()
}

/**
 * Upgrade the proxy binary and refresh the persisted version
 * @returns {(models.UpgradeResult, error)} Upgrade result
 */
func (k *Keeper) Update(ctx context.Context) (models.UpgradeResult, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	arch, err := k.detectArch()
	if err != nil {
		return models.UpgradeResult{}, err
	}
	result, err := k.Binary.Upgrade(ctx, arch, k.ServiceName(), k.Supervisor, k.Registrar)
	if err != nil {
		return result, err
	}
	if result.Upgraded {
		setServiceActive(true)
		if err := k.Reporter.UpdateVersion(result.To); err != nil && !errors.Is(err, errs.ErrNotProvisioned) {
			logger.Warnf("update info file version: %v", err)
		}
	}
	return result, nil
}

/**
 * Remove everything a provisioning run created (best effort)
 * @returns {error} First failure, every step is still attempted
 */
func (k *Keeper) Uninstall(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.isRoot() {
		return errs.ErrPrivilege
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	keep(k.Registrar.Unregister(ctx, k.ServiceName()))
	if err := k.fs.Remove(k.Binary.BinaryPath()); err != nil && !isNotExist(err) {
		keep(err)
	}
	keep(k.Reporter.Remove())
	setServiceActive(false)
	return firstErr
}

/**
 * Health summary for the management API
 * @param {string} version - s5 build version
 * @returns {models.HealthResponse} Health response
 */
func (k *Keeper) Health(ctx context.Context, version string) models.HealthResponse {
	state := k.Supervisor.State(ctx, k.ServiceName())
	return models.HealthResponse{
		Version:   version,
		StartTime: k.startTime.Format(time.RFC3339),
		Status:    "UP",
		Uptime:    time.Since(k.startTime).Round(time.Second).String(),
		Service:   state,
		Requests:  GetTotalRequestCount(),
		Errors:    GetTotalErrorCount(),
	}
}

// Logs returns the last lines of the service journal.
func (k *Keeper) Logs(ctx context.Context, lines int) (string, error) {
	if lines <= 0 {
		lines = 50
	}
	out, err := k.runner.Run(ctx, "journalctl", "-u", k.ServiceName(), "--no-pager", "-n", strconv.Itoa(lines))
	if err != nil && len(out) == 0 {
		return "", fmt.Errorf("journalctl: %w", err)
	}
	return string(out), nil
}
