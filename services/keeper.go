package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"s5-keeper/internal/config"
	"s5-keeper/internal/env"
	"s5-keeper/internal/models"
	"s5-keeper/internal/utils"

	"github.com/spf13/afero"
)

/**
 * External collaborators of a Keeper, zero values select the host implementations
 * @property {afero.Fs} Fs - Filesystem for binary, unit, info and state files
 * @property {utils.Runner} Runner - Runs systemctl, firewall tools and the proxy binary
 * @property {*http.Client} Client - HTTP client for release metadata, downloads and IP echo
 * @property {PortProbe} PortProbe - Local listener check
 * @property {Supervisor} Supervisor - Process supervisor
 * @property {func} IsRoot - Privilege check
 * @property {func} DetectArch - Host architecture detection
 * @property {func} Probe - Post-start credential probe
 */
type Deps struct {
	Fs         afero.Fs
	Runner     utils.Runner
	Client     *http.Client
	PortProbe  PortProbe
	Supervisor Supervisor
	Firewall   *FirewallConfigurator
	IsRoot     func() bool
	DetectArch func() (models.Architecture, error)
	Probe      func(ctx context.Context, port int, username, password string, timeout time.Duration) error
}

/**
 * Keeper wires every provisioning component together
 * @description
 * - Supervisor actions are serialized by mu, the management API may call them concurrently
 */
type Keeper struct {
	cfg         *config.AppConfig
	fs          afero.Fs
	Ports       *PortAllocator
	Credentials *CredentialGenerator
	Binary      *BinaryProvisioner
	Registrar   *ServiceRegistrar
	Firewall    *FirewallConfigurator
	Reporter    *StatusReporter
	Supervisor  Supervisor
	runner      utils.Runner
	isRoot      func() bool
	detectArch  func() (models.Architecture, error)
	probe       func(ctx context.Context, port int, username, password string, timeout time.Duration) error
	startTime   time.Time
	mu          sync.Mutex
}

func NewKeeper(cfg *config.AppConfig, deps Deps) *Keeper {
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Runner == nil {
		deps.Runner = utils.ExecRunner{}
	}
	if deps.Client == nil {
		deps.Client = http.DefaultClient
	}
	if deps.Supervisor == nil {
		deps.Supervisor = NewSystemd(deps.Runner)
	}
	if deps.Firewall == nil {
		deps.Firewall = DefaultFirewallConfigurator(deps.Runner)
	}
	if deps.IsRoot == nil {
		deps.IsRoot = env.IsRoot
	}
	if deps.DetectArch == nil {
		deps.DetectArch = DetectArchitecture
	}
	if deps.Probe == nil {
		deps.Probe = ProbeSOCKS5
	}
	return &Keeper{
		cfg:         cfg,
		fs:          deps.Fs,
		Ports:       NewPortAllocator(cfg.Port, deps.PortProbe),
		Credentials: NewCredentialGenerator(cfg.Credential.UserPrefix),
		Binary:      NewBinaryProvisioner(cfg.Release, cfg.Paths.Binary, deps.Fs, deps.Runner, deps.Client),
		Registrar:   NewServiceRegistrar(cfg.Service, deps.Fs, deps.Supervisor),
		Firewall:    deps.Firewall,
		Reporter:    NewStatusReporter(cfg.Report, cfg.Paths, deps.Fs, deps.Client),
		Supervisor:  deps.Supervisor,
		runner:      deps.Runner,
		isRoot:      deps.IsRoot,
		detectArch:  deps.DetectArch,
		probe:       deps.Probe,
		startTime:   time.Now(),
	}
}

var keeper *Keeper
var keeperOnce sync.Once

/**
 * Get the process wide keeper built from the loaded configuration
 * @returns {*Keeper} Keeper using the host filesystem, systemd and the network
 */
func GetKeeper() *Keeper {
	keeperOnce.Do(func() {
		keeper = NewKeeper(config.Get(), Deps{})
	})
	return keeper
}

func (k *Keeper) Config() *config.AppConfig {
	return k.cfg
}

func (k *Keeper) ServiceName() string {
	return k.cfg.Service.Name
}
