package services

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"s5-keeper/internal/config"
	"s5-keeper/internal/errs"
	"s5-keeper/internal/logger"
	"s5-keeper/internal/models"
	"s5-keeper/internal/utils"

	"github.com/spf13/afero"
)

// 发布包中的架构命名, 第一个用于渲染下载模板
var assetArchNames = map[models.Architecture][]string{
	models.ArchAMD64: {"amd64"},
	models.ArchARM64: {"armv8", "arm64"},
}

/**
 * Map a raw machine hardware name to a supported architecture
 * @param {string} raw - uname -m output (x86_64, aarch64, ...)
 * @returns {(models.Architecture, error)} errs.ErrUnsupportedArch for anything else
 */
func MapArchitecture(raw string) (models.Architecture, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "x86_64", "amd64":
		return models.ArchAMD64, nil
	case "aarch64", "arm64":
		return models.ArchARM64, nil
	}
	return "", fmt.Errorf("machine '%s': %w", raw, errs.ErrUnsupportedArch)
}

// DetectArchitecture reads the host machine name via uname(2).
func DetectArchitecture() (models.Architecture, error) {
	raw, err := utils.MachineName()
	if err != nil {
		return "", fmt.Errorf("uname: %w: %v", errs.ErrUnsupportedArch, err)
	}
	return MapArchitecture(raw)
}

type githubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

type githubRelease struct {
	TagName string        `json:"tag_name"`
	Assets  []githubAsset `json:"assets"`
}

// ActiveVerifier waits for a service to report active.
type ActiveVerifier interface {
	VerifyActive(ctx context.Context, name string, timeout time.Duration) (bool, error)
}

type BinaryProvisioner struct {
	cfg        config.ReleaseConfig
	binaryPath string
	fs         afero.Fs
	runner     utils.Runner
	client     *http.Client
}

func NewBinaryProvisioner(cfg config.ReleaseConfig, binaryPath string, fs afero.Fs, runner utils.Runner, client *http.Client) *BinaryProvisioner {
	if client == nil {
		client = http.DefaultClient
	}
	return &BinaryProvisioner{
		cfg:        cfg,
		binaryPath: binaryPath,
		fs:         fs,
		runner:     runner,
		client:     client,
	}
}

func (bp *BinaryProvisioner) BinaryPath() string {
	return bp.binaryPath
}

func (bp *BinaryProvisioner) httpOptions(timeout time.Duration) utils.HTTPOptions {
	return utils.HTTPOptions{
		Client:     bp.client,
		Timeout:    timeout,
		Retries:    bp.cfg.Retries,
		RetryDelay: bp.cfg.RetryDelay,
		UserAgent:  "s5-keeper",
	}
}

/**
 * Query the release endpoint for the newest tag and the artifact matching arch
 * @param {context.Context} ctx - Context
 * @param {models.Architecture} arch - Host architecture
 * @returns {(models.ReleaseInfo, error)} errs.ErrMetadataUnavailable when the tag cannot be obtained
 * @description
 * - Prefers the asset named like the rendered download template
 * - Falls back to any linux asset for the architecture, then to the template URL
 */
func (bp *BinaryProvisioner) ResolveLatestRelease(ctx context.Context, arch models.Architecture) (models.ReleaseInfo, error) {
	var info models.ReleaseInfo
	names, ok := assetArchNames[arch]
	if !ok {
		return info, fmt.Errorf("architecture '%s': %w", arch, errs.ErrUnsupportedArch)
	}

	body, err := utils.GetBytes(ctx, bp.cfg.MetadataURL, bp.httpOptions(bp.cfg.Timeout))
	if err != nil {
		return info, fmt.Errorf("%w: %v", errs.ErrMetadataUnavailable, err)
	}
	var rel githubRelease
	if err := json.Unmarshal(body, &rel); err != nil {
		return info, fmt.Errorf("%w: decode '%s': %v", errs.ErrMetadataUnavailable, bp.cfg.MetadataURL, err)
	}
	if rel.TagName == "" {
		return info, fmt.Errorf("%w: no tag_name in response of '%s'", errs.ErrMetadataUnavailable, bp.cfg.MetadataURL)
	}
	ver, err := utils.NormalizeTag(rel.TagName)
	if err != nil {
		return info, fmt.Errorf("%w: %v", errs.ErrMetadataUnavailable, err)
	}

	rendered, err := utils.RenderTemplate(bp.cfg.DownloadTemplate, map[string]string{
		"Tag":     rel.TagName,
		"Version": ver,
		"Arch":    names[0],
	})
	if err != nil {
		return info, fmt.Errorf("%w: %v", errs.ErrMetadataUnavailable, err)
	}

	info = models.ReleaseInfo{
		VersionTag:  rel.TagName,
		Version:     ver,
		DownloadURL: pickAsset(rel.Assets, rendered, names),
	}
	logger.Infof("latest release %s (%s)", info.VersionTag, info.DownloadURL)
	return info, nil
}

func pickAsset(assets []githubAsset, rendered string, archNames []string) string {
	want := path.Base(rendered)
	for _, a := range assets {
		if a.Name == want && a.BrowserDownloadURL != "" {
			return a.BrowserDownloadURL
		}
	}
	for _, name := range archNames {
		re := regexp.MustCompile(`linux[-_]` + regexp.QuoteMeta(name) + `[-_.].*\.(gz|tgz)$`)
		for _, a := range assets {
			if re.MatchString(a.Name) && a.BrowserDownloadURL != "" {
				return a.BrowserDownloadURL
			}
		}
	}
	return rendered
}

/**
 * Download the release artifact into the cache directory
 * @returns {(string, error)} Local archive path; errs.ErrDownloadFailed on any failure
 */
func (bp *BinaryProvisioner) Download(ctx context.Context, release models.ReleaseInfo) (string, error) {
	u, err := url.Parse(release.DownloadURL)
	if err != nil || u.Path == "" {
		return "", fmt.Errorf("%w: bad url '%s'", errs.ErrDownloadFailed, release.DownloadURL)
	}
	dst := filepath.Join(bp.cfg.CacheDir, path.Base(u.Path))
	if err := utils.GetFile(ctx, bp.fs, release.DownloadURL, dst, bp.httpOptions(bp.cfg.DownloadTimeout)); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrDownloadFailed, err)
	}
	logger.Infof("downloaded %s to %s", release.DownloadURL, dst)
	return dst, nil
}

/**
 * Decompress the archive and atomically replace the target binary
 * @param {string} archivePath - .gz or .tar.gz artifact (plain files are copied as is)
 * @param {string} targetPath - Installed binary path
 * @returns {error} errs.ErrDownloadFailed when the archive is unusable
 * @description
 * - Writes targetPath.tmp, chmod 0755, then renames over targetPath
 */
func (bp *BinaryProvisioner) Install(archivePath, targetPath string) error {
	f, err := bp.fs.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: open '%s': %v", errs.ErrDownloadFailed, archivePath, err)
	}
	defer f.Close()

	src, err := openBinaryStream(f, filepath.Base(targetPath))
	if err != nil {
		return fmt.Errorf("%w: '%s': %v", errs.ErrDownloadFailed, archivePath, err)
	}

	if err := bp.fs.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
		return err
	}
	tmp := targetPath + ".tmp"
	out, err := bp.fs.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0755)
	if err != nil {
		return fmt.Errorf("create '%s': %w", tmp, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		_ = bp.fs.Remove(tmp)
		return fmt.Errorf("%w: extract '%s': %v", errs.ErrDownloadFailed, archivePath, err)
	}
	if err := out.Close(); err != nil {
		_ = bp.fs.Remove(tmp)
		return err
	}
	if err := bp.fs.Chmod(tmp, 0755); err != nil {
		_ = bp.fs.Remove(tmp)
		return err
	}
	if err := bp.fs.Rename(tmp, targetPath); err != nil {
		_ = bp.fs.Remove(tmp)
		return fmt.Errorf("replace '%s': %w", targetPath, err)
	}
	logger.Infof("installed %s", targetPath)
	return nil
}

// openBinaryStream unwraps gzip and tar layers, detected by magic bytes.
func openBinaryStream(r io.Reader, binaryName string) (io.Reader, error) {
	br := bufio.NewReader(r)
	if magic, _ := br.Peek(2); bytes.Equal(magic, []byte{0x1f, 0x8b}) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		br = bufio.NewReader(zr)
	}
	if hdr, _ := br.Peek(262); len(hdr) == 262 && string(hdr[257:262]) == "ustar" {
		return findTarEntry(tar.NewReader(br), binaryName)
	}
	return br, nil
}

func findTarEntry(tr *tar.Reader, binaryName string) (io.Reader, error) {
	for {
		h, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("no '%s' entry in archive", binaryName)
		}
		if err != nil {
			return nil, err
		}
		if h.Typeflag != tar.TypeReg {
			continue
		}
		base := path.Base(h.Name)
		if base == binaryName || base == "gost" {
			return tr, nil
		}
	}
}

/**
 * Read the installed binary's self reported version
 * @returns {(string, error)} x.y.z; errs.ErrNotProvisioned when the binary is missing
 */
func (bp *BinaryProvisioner) InstalledVersion(ctx context.Context) (string, error) {
	if _, err := bp.fs.Stat(bp.binaryPath); err != nil {
		return "", fmt.Errorf("binary '%s': %w", bp.binaryPath, errs.ErrNotProvisioned)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	out, err := bp.runner.Run(ctx, bp.binaryPath, "-V")
	if err != nil && len(out) == 0 {
		return "", err
	}
	return utils.ParseVersionOutput(string(out))
}

/**
 * Upgrade the binary in place when a newer release exists
 * @param {context.Context} ctx - Context
 * @param {models.Architecture} arch - Host architecture
 * @param {string} serviceName - Supervised service running the binary
 * @param {Supervisor} sup - Supervisor used to stop and start the service
 * @param {ActiveVerifier} verifier - Post-start health check
 * @returns {(models.UpgradeResult, error)} Upgraded=false when installed >= latest
 * @description
 * - The artifact is downloaded before the service is stopped
 * - Failures after the stop wrap errs.ErrUpgradeFailed, the previous binary is not kept
 */
func (bp *BinaryProvisioner) Upgrade(ctx context.Context, arch models.Architecture, serviceName string, sup Supervisor, verifier ActiveVerifier) (models.UpgradeResult, error) {
	var result models.UpgradeResult
	installed, err := bp.InstalledVersion(ctx)
	if err != nil {
		return result, err
	}
	result.From = installed

	release, err := bp.ResolveLatestRelease(ctx, arch)
	if err != nil {
		return result, err
	}
	result.To = release.Version

	cmp, err := utils.CompareVersion(installed, release.Version)
	if err != nil {
		return result, fmt.Errorf("%w: %v", errs.ErrUpgradeFailed, err)
	}
	if cmp >= 0 {
		logger.Infof("installed %s is up to date (latest %s)", installed, release.Version)
		result.To = installed
		return result, nil
	}

	archive, err := bp.Download(ctx, release)
	if err != nil {
		return result, err
	}

	logger.Infof("upgrading %s from %s to %s", serviceName, installed, release.Version)
	if err := sup.Stop(ctx, serviceName); err != nil {
		return result, fmt.Errorf("%w: %w", errs.ErrUpgradeFailed, err)
	}
	if err := bp.Install(archive, bp.binaryPath); err != nil {
		return result, fmt.Errorf("%w: %w", errs.ErrUpgradeFailed, err)
	}
	if err := sup.Start(ctx, serviceName); err != nil {
		return result, fmt.Errorf("%w: %w", errs.ErrUpgradeFailed, err)
	}
	if _, err := verifier.VerifyActive(ctx, serviceName, 0); err != nil {
		return result, fmt.Errorf("%w: %w", errs.ErrUpgradeFailed, err)
	}
	result.Upgraded = true
	return result, nil
}
