package services

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"s5-keeper/internal/config"
	"s5-keeper/internal/errs"
	"s5-keeper/internal/models"

	"github.com/spf13/afero"
)

const testBinary = "/usr/local/bin/gost"

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func tarGzBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var tbuf bytes.Buffer
	tw := tar.NewWriter(&tbuf)
	for name, data := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0755, Size: int64(len(data)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	return gzipBytes(t, tbuf.Bytes())
}

// releaseServer serves a GitHub style latest-release document and its artifacts.
type releaseServer struct {
	*httptest.Server
	tag           atomic.Value
	artifact      []byte
	metaStatus    int
	metaCalls     atomic.Int32
	downloadCalls atomic.Int32
}

func newReleaseServer(t *testing.T, tag string, artifact []byte) *releaseServer {
	rs := &releaseServer{artifact: artifact, metaStatus: http.StatusOK}
	rs.tag.Store(tag)
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/latest":
			rs.metaCalls.Add(1)
			if rs.metaStatus != http.StatusOK {
				w.WriteHeader(rs.metaStatus)
				w.Write([]byte(`{"message":"API rate limit exceeded"}`))
				return
			}
			tag := rs.tag.Load().(string)
			ver := strings.TrimPrefix(tag, "v")
			doc := githubRelease{
				TagName: tag,
				Assets: []githubAsset{
					{Name: "gost-linux-amd64-" + ver + ".gz", BrowserDownloadURL: rs.URL + "/assets/gost-linux-amd64-" + ver + ".gz"},
					{Name: "gost-linux-armv8-" + ver + ".gz", BrowserDownloadURL: rs.URL + "/assets/gost-linux-armv8-" + ver + ".gz"},
					{Name: "gost-windows-amd64-" + ver + ".zip", BrowserDownloadURL: rs.URL + "/assets/gost-windows-amd64-" + ver + ".zip"},
				},
			}
			json.NewEncoder(w).Encode(doc)
		case strings.HasPrefix(r.URL.Path, "/assets/"):
			rs.downloadCalls.Add(1)
			if rs.artifact == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(rs.artifact)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(rs.Close)
	return rs
}

func testReleaseConfig(baseURL string) config.ReleaseConfig {
	return config.ReleaseConfig{
		MetadataURL:      baseURL + "/latest",
		DownloadTemplate: baseURL + "/assets/gost-linux-{{.Arch}}-{{.Version}}.gz",
		Timeout:          2 * time.Second,
		DownloadTimeout:  2 * time.Second,
		Retries:          2,
		RetryDelay:       time.Millisecond,
		CacheDir:         "/var/cache/s5",
	}
}

func TestMapArchitecture(t *testing.T) {
	cases := map[string]models.Architecture{
		"x86_64":  models.ArchAMD64,
		"amd64":   models.ArchAMD64,
		"aarch64": models.ArchARM64,
		"arm64":   models.ArchARM64,
	}
	for raw, want := range cases {
		got, err := MapArchitecture(raw)
		if err != nil || got != want {
			t.Errorf("MapArchitecture(%q) = %s, %v; want %s", raw, got, err, want)
		}
	}
	for _, raw := range []string{"", "i686", "armv7l", "mips64", "riscv64", "s390x"} {
		if _, err := MapArchitecture(raw); !errors.Is(err, errs.ErrUnsupportedArch) {
			t.Errorf("MapArchitecture(%q) error = %v, want ErrUnsupportedArch", raw, err)
		}
	}
}

func TestResolveLatestReleaseIdempotent(t *testing.T) {
	rs := newReleaseServer(t, "v2.11.5", nil)
	bp := NewBinaryProvisioner(testReleaseConfig(rs.URL), testBinary, afero.NewMemMapFs(), newFakeRunner(), rs.Client())

	first, err := bp.ResolveLatestRelease(context.Background(), models.ArchAMD64)
	if err != nil {
		t.Fatalf("ResolveLatestRelease() error: %v", err)
	}
	second, err := bp.ResolveLatestRelease(context.Background(), models.ArchAMD64)
	if err != nil {
		t.Fatalf("ResolveLatestRelease() error: %v", err)
	}
	if first != second {
		t.Errorf("two reads differ: %+v vs %+v", first, second)
	}
	if first.VersionTag != "v2.11.5" || first.Version != "2.11.5" {
		t.Errorf("release = %+v", first)
	}
	if first.DownloadURL != rs.URL+"/assets/gost-linux-amd64-2.11.5.gz" {
		t.Errorf("DownloadURL = %s", first.DownloadURL)
	}

	arm, err := bp.ResolveLatestRelease(context.Background(), models.ArchARM64)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(arm.DownloadURL, "gost-linux-armv8-2.11.5.gz") {
		t.Errorf("arm64 DownloadURL = %s", arm.DownloadURL)
	}
}

func TestResolveLatestReleaseUnavailable(t *testing.T) {
	rs := newReleaseServer(t, "v2.11.5", nil)
	rs.metaStatus = http.StatusForbidden
	bp := NewBinaryProvisioner(testReleaseConfig(rs.URL), testBinary, afero.NewMemMapFs(), newFakeRunner(), rs.Client())

	if _, err := bp.ResolveLatestRelease(context.Background(), models.ArchAMD64); !errors.Is(err, errs.ErrMetadataUnavailable) {
		t.Fatalf("expected ErrMetadataUnavailable, got %v", err)
	}
	if got := rs.metaCalls.Load(); got != 2 {
		t.Errorf("metadata requested %d times, want 2 (bounded retry)", got)
	}

	empty := newReleaseServer(t, "", nil)
	bp = NewBinaryProvisioner(testReleaseConfig(empty.URL), testBinary, afero.NewMemMapFs(), newFakeRunner(), empty.Client())
	if _, err := bp.ResolveLatestRelease(context.Background(), models.ArchAMD64); !errors.Is(err, errs.ErrMetadataUnavailable) {
		t.Fatalf("empty tag: expected ErrMetadataUnavailable, got %v", err)
	}
}

func TestResolveLatestReleaseTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()
	cfg := testReleaseConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond
	cfg.Retries = 1
	bp := NewBinaryProvisioner(cfg, testBinary, afero.NewMemMapFs(), newFakeRunner(), srv.Client())
	if _, err := bp.ResolveLatestRelease(context.Background(), models.ArchAMD64); !errors.Is(err, errs.ErrMetadataUnavailable) {
		t.Fatalf("expected ErrMetadataUnavailable on timeout, got %v", err)
	}
}

func TestDownloadAndInstallGzip(t *testing.T) {
	payload := []byte("#!/bin/sh\necho gost 2.11.5\n")
	rs := newReleaseServer(t, "v2.11.5", gzipBytes(t, payload))
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, testBinary, []byte("old binary"), 0755)
	bp := NewBinaryProvisioner(testReleaseConfig(rs.URL), testBinary, fs, newFakeRunner(), rs.Client())

	rel, err := bp.ResolveLatestRelease(context.Background(), models.ArchAMD64)
	if err != nil {
		t.Fatal(err)
	}
	archive, err := bp.Download(context.Background(), rel)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if archive != "/var/cache/s5/gost-linux-amd64-2.11.5.gz" {
		t.Errorf("archive path = %s", archive)
	}
	if err := bp.Install(archive, testBinary); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	got, _ := afero.ReadFile(fs, testBinary)
	if !bytes.Equal(got, payload) {
		t.Errorf("installed content = %q", got)
	}
	fi, err := fs.Stat(testBinary)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm() != 0755 {
		t.Errorf("mode = %v, want 0755", fi.Mode().Perm())
	}
	if ok, _ := afero.Exists(fs, testBinary+".tmp"); ok {
		t.Error("temporary file left behind")
	}
}

func TestInstallTarGz(t *testing.T) {
	fs := afero.NewMemMapFs()
	payload := []byte("gost binary from tarball")
	afero.WriteFile(fs, "/tmp/gost.tar.gz", tarGzBytes(t, map[string][]byte{
		"gost-linux-amd64/README.md": []byte("readme"),
		"gost-linux-amd64/gost":      payload,
	}), 0644)
	bp := NewBinaryProvisioner(config.ReleaseConfig{}, testBinary, fs, newFakeRunner(), nil)
	if err := bp.Install("/tmp/gost.tar.gz", testBinary); err != nil {
		t.Fatalf("Install() error: %v", err)
	}
	got, _ := afero.ReadFile(fs, testBinary)
	if !bytes.Equal(got, payload) {
		t.Errorf("installed content = %q", got)
	}
}

func TestDownloadFailed(t *testing.T) {
	rs := newReleaseServer(t, "v2.11.5", nil)
	bp := NewBinaryProvisioner(testReleaseConfig(rs.URL), testBinary, afero.NewMemMapFs(), newFakeRunner(), rs.Client())
	rel, err := bp.ResolveLatestRelease(context.Background(), models.ArchAMD64)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := bp.Download(context.Background(), rel); !errors.Is(err, errs.ErrDownloadFailed) {
		t.Fatalf("expected ErrDownloadFailed, got %v", err)
	}
	if got := rs.downloadCalls.Load(); got != 2 {
		t.Errorf("download attempted %d times, want 2", got)
	}
}

func TestInstalledVersion(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := newFakeRunner()
	bp := NewBinaryProvisioner(config.ReleaseConfig{}, testBinary, fs, runner, nil)
	if _, err := bp.InstalledVersion(context.Background()); !errors.Is(err, errs.ErrNotProvisioned) {
		t.Fatalf("missing binary: expected ErrNotProvisioned, got %v", err)
	}
	afero.WriteFile(fs, testBinary, []byte("bin"), 0755)
	runner.on(testBinary+" -V", "gost 2.11.5 (go1.17.6 linux/amd64)\n", nil)
	v, err := bp.InstalledVersion(context.Background())
	if err != nil || v != "2.11.5" {
		t.Fatalf("InstalledVersion() = %q, %v", v, err)
	}
}

func newUpgradeFixture(t *testing.T, installed, latest string) (*BinaryProvisioner, *fakeSupervisor, *ServiceRegistrar, afero.Fs, *releaseServer) {
	t.Helper()
	rs := newReleaseServer(t, latest, gzipBytes(t, []byte("new binary")))
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, testBinary, []byte("old binary"), 0755)
	runner := newFakeRunner()
	runner.on(testBinary+" -V", "gost "+installed+" (go1.17.6 linux/amd64)", nil)
	sup := newFakeSupervisor()
	sup.states["s5"] = models.StateActive
	reg := NewServiceRegistrar(testServiceConfig(), fs, sup)
	reg.sleep = func(context.Context, time.Duration) error { return nil }
	return NewBinaryProvisioner(testReleaseConfig(rs.URL), testBinary, fs, runner, rs.Client()), sup, reg, fs, rs
}

func TestUpgradeNoop(t *testing.T) {
	bp, sup, reg, fs, rs := newUpgradeFixture(t, "2.11.5", "v2.11.5")
	res, err := bp.Upgrade(context.Background(), models.ArchAMD64, "s5", sup, reg)
	if err != nil {
		t.Fatalf("Upgrade() error: %v", err)
	}
	if res.Upgraded {
		t.Error("Upgraded = true for equal versions")
	}
	if len(sup.actions) != 0 {
		t.Errorf("supervisor touched: %v", sup.actions)
	}
	if sup.State(context.Background(), "s5") != models.StateActive {
		t.Error("service no longer active")
	}
	got, _ := afero.ReadFile(fs, testBinary)
	if string(got) != "old binary" {
		t.Errorf("binary changed to %q", got)
	}
	if rs.downloadCalls.Load() != 0 {
		t.Error("artifact downloaded for a no-op upgrade")
	}
}

func TestUpgradeNewer(t *testing.T) {
	bp, sup, reg, fs, _ := newUpgradeFixture(t, "2.11.4", "v2.11.5")
	res, err := bp.Upgrade(context.Background(), models.ArchAMD64, "s5", sup, reg)
	if err != nil {
		t.Fatalf("Upgrade() error: %v", err)
	}
	if !res.Upgraded || res.From != "2.11.4" || res.To != "2.11.5" {
		t.Errorf("result = %+v", res)
	}
	got, _ := afero.ReadFile(fs, testBinary)
	if string(got) != "new binary" {
		t.Errorf("binary = %q", got)
	}
	if !sup.did("stop s5") || !sup.did("start s5") {
		t.Errorf("supervisor actions = %v", sup.actions)
	}
}

func TestUpgradeFailsWhenServiceDoesNotComeBack(t *testing.T) {
	bp, sup, reg, _, _ := newUpgradeFixture(t, "2.11.4", "v2.11.5")
	sup.failStart = true
	_, err := bp.Upgrade(context.Background(), models.ArchAMD64, "s5", sup, reg)
	if !errors.Is(err, errs.ErrUpgradeFailed) {
		t.Fatalf("expected ErrUpgradeFailed, got %v", err)
	}
	if errs.ExitCode(err) != errs.ExitUpgradeFailed {
		t.Errorf("exit code = %d", errs.ExitCode(err))
	}
}
