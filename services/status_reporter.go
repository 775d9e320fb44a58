package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"s5-keeper/internal/config"
	"s5-keeper/internal/errs"
	"s5-keeper/internal/logger"
	"s5-keeper/internal/models"
	"s5-keeper/internal/utils"

	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"
)

const infoRule = "=================================================="

type StatusReporter struct {
	cfg    config.ReportConfig
	paths  config.PathsConfig
	fs     afero.Fs
	client *http.Client
	now    func() time.Time
}

func NewStatusReporter(cfg config.ReportConfig, paths config.PathsConfig, fs afero.Fs, client *http.Client) *StatusReporter {
	if client == nil {
		client = http.DefaultClient
	}
	return &StatusReporter{cfg: cfg, paths: paths, fs: fs, client: client, now: time.Now}
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

/**
 * Resolve the externally visible address of the host
 * @param {context.Context} ctx - Context
 * @returns {string} First valid IP returned by the echo endpoints, the placeholder otherwise
 */
func (sr *StatusReporter) PublicAddress(ctx context.Context) string {
	opts := utils.HTTPOptions{Client: sr.client, Timeout: sr.cfg.Timeout, Retries: 1, UserAgent: "curl/8"}
	for _, endpoint := range sr.cfg.IPEndpoints {
		body, err := utils.GetBytes(ctx, endpoint, opts)
		if err != nil {
			logger.Warnf("public address lookup via %s failed: %v", endpoint, err)
			continue
		}
		ip := strings.TrimSpace(string(body))
		if net.ParseIP(ip) == nil {
			logger.Warnf("public address lookup via %s returned '%s'", endpoint, ip)
			continue
		}
		return ip
	}
	return sr.cfg.Placeholder
}

/**
 * Format the connection block printed at the end of a run and stored in the info file
 * @param {models.InfoRecord} rec - Connection record
 * @returns {string} Fixed human readable block
 */
func FormatInfo(rec models.InfoRecord) string {
	var b strings.Builder
	fmt.Fprintln(&b, infoRule)
	fmt.Fprintln(&b, " SOCKS5 proxy connection info")
	fmt.Fprintln(&b, infoRule)
	fmt.Fprintf(&b, " Address  : %s\n", rec.Address)
	fmt.Fprintf(&b, " Port     : %d\n", rec.Port)
	fmt.Fprintf(&b, " Username : %s\n", rec.Username)
	fmt.Fprintf(&b, " Password : %s\n", rec.Password)
	fmt.Fprintf(&b, " URI      : %s\n", rec.URI())
	if rec.Version != "" {
		fmt.Fprintf(&b, " Version  : %s\n", rec.Version)
	}
	fmt.Fprintf(&b, " Service  : %s\n", rec.ServiceName)
	fmt.Fprintf(&b, " Created  : %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Fprintln(&b, infoRule)
	fmt.Fprintln(&b, " This block contains the proxy password, keep it private.")
	fmt.Fprintln(&b, infoRule)
	return b.String()
}

/**
 * Build, persist and return the connection record
 * @param {context.Context} ctx - Context
 * @param {models.ProvisioningConfig} pc - Provisioning config of the active service
 * @param {string} version - Installed proxy binary version
 * @returns {(models.InfoRecord, error)} Persisted record
 * @description
 * - Must only be called after the service was verified active
 * - Info file and state file are written 0600
 */
func (sr *StatusReporter) Report(ctx context.Context, pc models.ProvisioningConfig, version string) (models.InfoRecord, error) {
	rec := models.InfoRecord{
		Address:     sr.PublicAddress(ctx),
		Port:        pc.Port,
		Username:    pc.Username,
		Password:    pc.Password,
		Version:     version,
		ServiceName: pc.ServiceName,
		CreatedAt:   sr.now().UTC().Truncate(time.Second),
	}
	if err := utils.WriteFileAtomic(sr.fs, sr.paths.InfoFile, []byte(FormatInfo(rec)), 0600); err != nil {
		return rec, fmt.Errorf("write info file '%s': %w", sr.paths.InfoFile, err)
	}
	state, err := yaml.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("encode state: %w", err)
	}
	if err := utils.WriteFileAtomic(sr.fs, sr.paths.StateFile, state, 0600); err != nil {
		return rec, fmt.Errorf("write state file '%s': %w", sr.paths.StateFile, err)
	}
	logger.Infof("connection info written to %s", sr.paths.InfoFile)
	return rec, nil
}

// ReadInfo returns the persisted info block verbatim.
func (sr *StatusReporter) ReadInfo() (string, error) {
	data, err := afero.ReadFile(sr.fs, sr.paths.InfoFile)
	if err != nil {
		if isNotExist(err) {
			return "", fmt.Errorf("info file '%s' not found: %w", sr.paths.InfoFile, errs.ErrNotProvisioned)
		}
		return "", err
	}
	return string(data), nil
}

func (sr *StatusReporter) ReadState() (*models.InfoRecord, error) {
	data, err := afero.ReadFile(sr.fs, sr.paths.StateFile)
	if err != nil {
		if isNotExist(err) {
			return nil, fmt.Errorf("state file '%s' not found: %w", sr.paths.StateFile, errs.ErrNotProvisioned)
		}
		return nil, err
	}
	var rec models.InfoRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode state file '%s': %w", sr.paths.StateFile, err)
	}
	return &rec, nil
}

// UpdateVersion rewrites the persisted record after an upgrade.
func (sr *StatusReporter) UpdateVersion(version string) error {
	rec, err := sr.ReadState()
	if err != nil {
		return err
	}
	rec.Version = version
	if err := utils.WriteFileAtomic(sr.fs, sr.paths.InfoFile, []byte(FormatInfo(*rec)), 0600); err != nil {
		return err
	}
	state, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(sr.fs, sr.paths.StateFile, state, 0600)
}

// Remove deletes the info and state files, ignoring missing ones.
func (sr *StatusReporter) Remove() error {
	for _, p := range []string{sr.paths.InfoFile, sr.paths.StateFile} {
		if err := sr.fs.Remove(p); err != nil && !isNotExist(err) {
			return err
		}
	}
	return nil
}
