package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"s5-keeper/internal/env"
	"s5-keeper/internal/models"

	"github.com/spf13/viper"
)

/**
 * Server configuration parameters
 * @property {string} address - Optional TCP listening address (e.g. "127.0.0.1:9090"), serves health, status and metrics only
 * @property {string} socket - Unix socket path (0600), the only listener serving info and service verbs
 * @property {string} mode - Gin mode (debug/release/test)
 */
type ServerConfig struct {
	Address string `mapstructure:"address"`
	Socket  string `mapstructure:"socket"`
	Mode    string `mapstructure:"mode"`
}

/**
 * Logging configuration
 * @property {string} level - Log level (debug/info/warn/error)
 * @property {string} path - Log file path, "console" writes to stderr
 */
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

/**
 * Metrics configuration
 * @property {string} pushgateway - Pushgateway address, empty disables pushing
 * @property {string} job - Job name used when pushing
 */
type MetricsConfig struct {
	Pushgateway string `mapstructure:"pushgateway"`
	Job         string `mapstructure:"job"`
}

/**
 * Proxy binary release configuration
 * @property {string} metadata_url - Release listing endpoint returning JSON with tag_name
 * @property {string} download_template - Artifact URL template ({{.Tag}} {{.Version}} {{.Arch}})
 * @property {duration} timeout - Timeout of the metadata request
 * @property {duration} download_timeout - Timeout of the artifact download
 * @property {int} retries - Attempts for metadata and download requests
 * @property {duration} retry_delay - Delay between attempts
 * @property {string} cache_dir - Directory holding downloaded archives
 */
type ReleaseConfig struct {
	MetadataURL      string        `mapstructure:"metadata_url"`
	DownloadTemplate string        `mapstructure:"download_template"`
	Timeout          time.Duration `mapstructure:"timeout"`
	DownloadTimeout  time.Duration `mapstructure:"download_timeout"`
	Retries          int           `mapstructure:"retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	CacheDir         string        `mapstructure:"cache_dir"`
}

type PortConfig struct {
	Min      int `mapstructure:"min"`
	Max      int `mapstructure:"max"`
	Attempts int `mapstructure:"attempts"`
}

type CredentialConfig struct {
	UserPrefix string `mapstructure:"user_prefix"`
}

/**
 * Supervised service configuration
 * @property {string} name - systemd unit name without suffix
 * @property {string} description - Unit description
 * @property {string} unit_dir - Directory the unit file is written to
 * @property {int} restart_sec - RestartSec of the unit
 * @property {string} command - ExecStart program template
 * @property {[]string} args - ExecStart argument templates
 * @property {duration} verify_timeout - How long to wait for the unit to become active
 * @property {duration} poll_interval - Interval between is-active checks
 */
type ServiceConfig struct {
	Name          string        `mapstructure:"name"`
	Description   string        `mapstructure:"description"`
	UnitDir       string        `mapstructure:"unit_dir"`
	RestartSec    int           `mapstructure:"restart_sec"`
	Command       string        `mapstructure:"command"`
	Args          []string      `mapstructure:"args"`
	VerifyTimeout time.Duration `mapstructure:"verify_timeout"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
}

type FirewallConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

/**
 * Status report configuration
 * @property {[]string} ip_endpoints - Public IP echo endpoints, tried in order
 * @property {string} placeholder - Address printed when every endpoint fails
 * @property {duration} timeout - Timeout of each echo request
 * @property {bool} probe - Run the SOCKS5 credential probe after start
 */
type ReportConfig struct {
	IPEndpoints []string      `mapstructure:"ip_endpoints"`
	Placeholder string        `mapstructure:"placeholder"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Probe       bool          `mapstructure:"probe"`
}

type PathsConfig struct {
	Binary    string `mapstructure:"binary"`
	InfoFile  string `mapstructure:"info_file"`
	StateFile string `mapstructure:"state_file"`
}

type AppConfig struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Release    ReleaseConfig    `mapstructure:"release"`
	Port       PortConfig       `mapstructure:"port"`
	Credential CredentialConfig `mapstructure:"credential"`
	Service    ServiceConfig    `mapstructure:"service"`
	Firewall   FirewallConfig   `mapstructure:"firewall"`
	Report     ReportConfig     `mapstructure:"report"`
	Paths      PathsConfig      `mapstructure:"paths"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "")
	v.SetDefault("server.socket", "/run/s5/s5.sock")
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "/var/log/s5/s5.log")

	v.SetDefault("metrics.pushgateway", "")
	v.SetDefault("metrics.job", "s5")

	v.SetDefault("release.metadata_url", "https://api.github.com/repos/ginuerzh/gost/releases/latest")
	v.SetDefault("release.download_template",
		"https://github.com/ginuerzh/gost/releases/download/{{.Tag}}/gost-linux-{{.Arch}}-{{.Version}}.gz")
	v.SetDefault("release.timeout", 10*time.Second)
	v.SetDefault("release.download_timeout", 60*time.Second)
	v.SetDefault("release.retries", 3)
	v.SetDefault("release.retry_delay", time.Second)
	v.SetDefault("release.cache_dir", "/var/cache/s5")

	v.SetDefault("port.min", 10000)
	v.SetDefault("port.max", 60000)
	v.SetDefault("port.attempts", 100)

	v.SetDefault("credential.user_prefix", "user")

	v.SetDefault("service.name", "s5")
	v.SetDefault("service.description", "s5 SOCKS5 proxy")
	v.SetDefault("service.unit_dir", "/etc/systemd/system")
	v.SetDefault("service.restart_sec", 5)
	v.SetDefault("service.command", "{{.BinaryPath}}")
	v.SetDefault("service.args", []string{"-L", "{{.ListenURI}}"})
	v.SetDefault("service.verify_timeout", 5*time.Second)
	v.SetDefault("service.poll_interval", 500*time.Millisecond)

	v.SetDefault("firewall.enabled", true)

	v.SetDefault("report.ip_endpoints", []string{"https://api.ipify.org", "https://ifconfig.me/ip"})
	v.SetDefault("report.placeholder", "YOUR_SERVER_IP")
	v.SetDefault("report.timeout", 10*time.Second)
	v.SetDefault("report.probe", true)

	v.SetDefault("paths.binary", "/usr/local/bin/gost")
	v.SetDefault("paths.info_file", filepath.Join(env.S5Dir, "info.txt"))
	v.SetDefault("paths.state_file", filepath.Join(env.S5Dir, "state.yaml"))
}

/**
 * Load application configuration from YAML file and S5_* environment variables
 * @param {string} path - Explicit config file, empty searches /etc/s5 and the working directory
 * @returns {(*AppConfig, error)} Loaded configuration
 * @description
 * - A missing config file is not an error when no explicit path is given
 * - Environment variables use the S5_ prefix with "." replaced by "_" (S5_PORT_MIN)
 * - credential.user_prefix may only contain letters, digits, "_", "." and "-"
 */
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("S5")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(env.S5Dir)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if !models.ValidUserPrefix(cfg.Credential.UserPrefix) {
		return nil, fmt.Errorf("credential.user_prefix %q: only letters, digits, '_', '.' and '-' are allowed", cfg.Credential.UserPrefix)
	}
	return collectConfig(&cfg), nil
}

/**
 * Build the built-in default configuration without touching disk or env
 * @returns {*AppConfig} Default configuration
 */
func Default() *AppConfig {
	v := viper.New()
	setDefaults(v)
	var cfg AppConfig
	_ = v.Unmarshal(&cfg)
	return collectConfig(&cfg)
}

var Config AppConfig
var loaded bool

func collectConfig(cfg *AppConfig) *AppConfig {
	if cfg.Port.Min < 1 {
		cfg.Port.Min = 1
	}
	if cfg.Port.Max > 65535 {
		cfg.Port.Max = 65535
	}
	if cfg.Port.Min > cfg.Port.Max {
		cfg.Port.Min, cfg.Port.Max = cfg.Port.Max, cfg.Port.Min
	}
	if cfg.Port.Attempts <= 0 {
		cfg.Port.Attempts = 100
	}
	if cfg.Release.Retries <= 0 {
		cfg.Release.Retries = 1
	}
	if cfg.Service.PollInterval <= 0 {
		cfg.Service.PollInterval = 500 * time.Millisecond
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = "s5"
	}
	return cfg
}

/**
 * Load the configuration into the package global
 * @param {string} path - Config file path, may be empty
 * @returns {error} Error from LoadConfig
 */
func Init(path string) error {
	cfg, err := LoadConfig(path)
	if err != nil {
		Config = *Default()
		loaded = true
		return err
	}
	Config = *cfg
	loaded = true
	return nil
}

// Get returns the loaded configuration, falling back to defaults.
func Get() *AppConfig {
	if !loaded {
		Config = *Default()
		loaded = true
	}
	return &Config
}
