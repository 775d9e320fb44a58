package models

type ServiceState string

const (
	// 由 supervisor 报告为运行中
	StateActive ServiceState = "active"
	// 已停止、失败或未安装
	StateInactive ServiceState = "inactive"
	// supervisor 无法查询
	StateUnknown ServiceState = "unknown"
)

type PortMode string

const (
	PortModeRandom PortMode = "random"
	PortModeManual PortMode = "manual"
)

/**
 * Service state observed from the supervisor (never cached)
 * @property {string} name - Unit name
 * @property {ServiceState} state - active/inactive/unknown
 * @property {string} version - Installed proxy binary version
 */
type ServiceStatus struct {
	Name    string       `json:"name"`
	State   ServiceState `json:"state"`
	Version string       `json:"version,omitempty"`
}

type UpgradeResult struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Upgraded bool   `json:"upgraded"`
}
