// Package errs holds the failure taxonomy of a provisioning run and the
// process exit code each failure maps to.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrPrivilege           = errors.New("must be run as root")
	ErrInvalidPort         = errors.New("invalid port")
	ErrPortInUse           = errors.New("port already in use")
	ErrExhaustedRange      = errors.New("no free port found in range")
	ErrUnsupportedArch     = errors.New("unsupported architecture")
	ErrMetadataUnavailable = errors.New("release metadata unavailable")
	ErrDownloadFailed      = errors.New("download failed")
	ErrServiceStartFailed  = errors.New("service failed to start")
	ErrUpgradeFailed       = errors.New("upgrade failed")
	ErrSupervisorAction    = errors.New("supervisor action failed")
	ErrFirewallFailed      = errors.New("firewall configuration failed")
	ErrNotProvisioned      = errors.New("proxy is not provisioned")
	ErrInvalidCredentials  = errors.New("invalid proxy credentials")
)

const (
	ExitOK = iota
	ExitGeneric
	ExitPrivilege
	ExitInvalidPort
	ExitPortInUse
	ExitExhaustedRange
	ExitUnsupportedArch
	ExitMetadataUnavailable
	ExitDownloadFailed
	ExitServiceStartFailed
	ExitUpgradeFailed
	ExitSupervisorAction
	ExitFirewallFailed
	ExitNotProvisioned
	ExitInvalidCredentials
)

// Order matters: an upgrade failure caused by a download failure reports as upgrade.
var exitCodes = []struct {
	err  error
	code int
}{
	{ErrPrivilege, ExitPrivilege},
	{ErrUpgradeFailed, ExitUpgradeFailed},
	{ErrInvalidPort, ExitInvalidPort},
	{ErrPortInUse, ExitPortInUse},
	{ErrExhaustedRange, ExitExhaustedRange},
	{ErrUnsupportedArch, ExitUnsupportedArch},
	{ErrMetadataUnavailable, ExitMetadataUnavailable},
	{ErrDownloadFailed, ExitDownloadFailed},
	{ErrServiceStartFailed, ExitServiceStartFailed},
	{ErrSupervisorAction, ExitSupervisorAction},
	{ErrFirewallFailed, ExitFirewallFailed},
	{ErrNotProvisioned, ExitNotProvisioned},
	{ErrInvalidCredentials, ExitInvalidCredentials},
}

// ExitCode maps an error to the process exit code of its failure kind.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	for _, e := range exitCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	return ExitGeneric
}

// StageError records which provisioning stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage '%s' failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func Stage(stage string, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// FailedStage returns the stage name carried by err, or "".
func FailedStage(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
