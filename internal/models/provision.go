package models

import (
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

type Architecture string

const (
	ArchAMD64 Architecture = "amd64"
	ArchARM64 Architecture = "arm64"
)

/**
 * Everything a provisioning run decided, threaded through every stage
 * @property {int} port - SOCKS5 listening port
 * @property {string} username - Proxy client username
 * @property {string} password - Proxy client password
 * @property {Architecture} architecture - Host CPU architecture
 * @property {string} binaryPath - Installed proxy binary path
 * @property {string} serviceName - systemd unit name
 */
type ProvisioningConfig struct {
	Port         int          `json:"port" yaml:"port" validate:"min=1,max=65535"`
	Username     string       `json:"username" yaml:"username" validate:"required,max=64,proxyuser"`
	Password     string       `json:"password" yaml:"password" validate:"required,alphanum,min=8"`
	Architecture Architecture `json:"architecture" yaml:"architecture" validate:"oneof=amd64 arm64"`
	BinaryPath   string       `json:"binaryPath" yaml:"binaryPath" validate:"required"`
	ServiceName  string       `json:"serviceName" yaml:"serviceName" validate:"required"`
}

// 用户名出现在 -L 参数和 unit 文件中, 只允许 URI 非保留字符
var proxyUserPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("proxyuser", func(fl validator.FieldLevel) bool {
		return proxyUserPattern.MatchString(fl.Field().String())
	})
	return v
}

func (c ProvisioningConfig) Validate() error {
	return validate.Struct(c)
}

// ValidateCredentials checks only the username and password fields.
func (c ProvisioningConfig) ValidateCredentials() error {
	return validate.StructPartial(c, "Username", "Password")
}

// ValidUserPrefix reports whether generated usernames with this prefix pass validation.
func ValidUserPrefix(prefix string) bool {
	return prefix == "" || proxyUserPattern.MatchString(prefix)
}

// ListenURI is the -L argument of the proxy binary.
func (c ProvisioningConfig) ListenURI() string {
	return fmt.Sprintf("socks5://%s:%s@:%d", c.Username, c.Password, c.Port)
}

/**
 * Latest upstream release of the proxy binary
 * @property {string} versionTag - Tag as published (v2.11.5)
 * @property {string} version - Tag without the leading "v"
 * @property {string} downloadURL - Artifact URL for the host architecture
 */
type ReleaseInfo struct {
	VersionTag  string `json:"versionTag"`
	Version     string `json:"version"`
	DownloadURL string `json:"downloadURL"`
}

/**
 * Persisted connection record (info.txt / state.yaml)
 */
type InfoRecord struct {
	Address     string    `json:"address" yaml:"address"`
	Port        int       `json:"port" yaml:"port"`
	Username    string    `json:"username" yaml:"username"`
	Password    string    `json:"password" yaml:"password"`
	Version     string    `json:"version,omitempty" yaml:"version,omitempty"`
	ServiceName string    `json:"serviceName" yaml:"serviceName"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
}

// URI is the client connection string.
func (r InfoRecord) URI() string {
	return fmt.Sprintf("socks5://%s:%s@%s:%d", r.Username, r.Password, r.Address, r.Port)
}
