package services

import (
	"context"
	"fmt"
	"time"

	"s5-keeper/internal/errs"
	"s5-keeper/internal/logger"
	"s5-keeper/internal/models"
)

const (
	StagePrivilege   = "privilege"
	StagePort        = "port"
	StageCredentials = "credentials"
	StageBinary      = "binary"
	StageService     = "service"
	StageFirewall    = "firewall"
	StageReport      = "report"
)

/**
 * Operator choices for one provisioning run
 * @property {models.PortMode} PortMode - random or manual
 * @property {string} Port - Manual port value
 * @property {string} Username - Preset username, generated when empty
 * @property {string} Password - Preset password, generated when empty
 */
type ProvisionOptions struct {
	PortMode models.PortMode
	Port     string
	Username string
	Password string
}

func runStage(stage string, fn func() error) error {
	start := time.Now()
	logger.Infof("stage %s started", stage)
	err := fn()
	recordStage(stage, start, err)
	if err != nil {
		logger.Errorf("stage %s failed: %v", stage, err)
		return errs.Stage(stage, err)
	}
	logger.Infof("stage %s done in %s", stage, time.Since(start).Round(time.Millisecond))
	return nil
}

/**
 * Run the provisioning workflow once
 * @param {context.Context} ctx - Context
 * @param {ProvisionOptions} opts - Operator choices
 * @returns {(models.InfoRecord, error)} Persisted connection record
 * @description
 * - Stages run in order: privilege, port, credentials, binary, service, firewall, report
 * - The first failing stage aborts the run, nothing is rolled back
 * - Info and state files are written only after the service is verified active
 * @throws
 * - *errs.StageError wrapping one of the errs sentinels
 */
func (k *Keeper) Provision(ctx context.Context, opts ProvisionOptions) (models.InfoRecord, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	defer func() {
		if err := PushMetrics(k.cfg.Metrics.Pushgateway, k.cfg.Metrics.Job); err != nil {
			logger.Warnf("%v", err)
		}
	}()

	var (
		rec     models.InfoRecord
		pc      models.ProvisioningConfig
		version string
	)

	if err := runStage(StagePrivilege, func() error {
		if !k.isRoot() {
			return errs.ErrPrivilege
		}
		return nil
	}); err != nil {
		return rec, err
	}

	if err := runStage(StagePort, func() error {
		mode := opts.PortMode
		if mode == "" {
			mode = models.PortModeRandom
		}
		port, err := k.Ports.Allocate(mode, opts.Port)
		pc.Port = port
		return err
	}); err != nil {
		return rec, err
	}

	if err := runStage(StageCredentials, func() error {
		username, password, err := k.Credentials.Generate()
		if err != nil {
			return err
		}
		if opts.Username != "" {
			username = opts.Username
		}
		if opts.Password != "" {
			password = opts.Password
		}
		pc.Username, pc.Password = username, password
		if err := pc.ValidateCredentials(); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrInvalidCredentials, err)
		}
		// 只记录用户名, 密码仅出现在最终报告中
		logger.Infof("proxy username %s", username)
		return nil
	}); err != nil {
		return rec, err
	}

	if err := runStage(StageBinary, func() error {
		arch, err := k.detectArch()
		if err != nil {
			return err
		}
		pc.Architecture = arch
		pc.BinaryPath = k.Binary.BinaryPath()
		pc.ServiceName = k.cfg.Service.Name
		if err := pc.Validate(); err != nil {
			return fmt.Errorf("invalid provisioning config: %w", err)
		}

		release, err := k.Binary.ResolveLatestRelease(ctx, arch)
		if err != nil {
			return err
		}
		archive, err := k.Binary.Download(ctx, release)
		if err != nil {
			return err
		}
		if err := k.Binary.Install(archive, pc.BinaryPath); err != nil {
			return err
		}
		version = release.Version
		if v, err := k.Binary.InstalledVersion(ctx); err == nil {
			version = v
		} else {
			logger.Warnf("read installed version: %v", err)
		}
		return nil
	}); err != nil {
		return rec, err
	}

	if err := runStage(StageService, func() error {
		if err := k.Registrar.Register(ctx, pc); err != nil {
			return err
		}
		_, err := k.Registrar.VerifyActive(ctx, pc.ServiceName, k.cfg.Service.VerifyTimeout)
		setServiceActive(err == nil)
		if err != nil {
			return err
		}
		if k.cfg.Report.Probe {
			if err := k.probe(ctx, pc.Port, pc.Username, pc.Password, 3*time.Second); err != nil {
				logger.Warnf("SOCKS5 probe on port %d failed: %v", pc.Port, err)
			}
		}
		return nil
	}); err != nil {
		return rec, err
	}

	if err := runStage(StageFirewall, func() error {
		if !k.cfg.Firewall.Enabled {
			logger.Infof("firewall configuration disabled, skipping")
			return nil
		}
		_, err := k.Firewall.Open(ctx, pc.Port)
		return err
	}); err != nil {
		return rec, err
	}

	if err := runStage(StageReport, func() error {
		var err error
		rec, err = k.Reporter.Report(ctx, pc, version)
		return err
	}); err != nil {
		return rec, err
	}
	return rec, nil
}
