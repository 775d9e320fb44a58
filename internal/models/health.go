package models

// HealthResponse 健康检查响应结构
// @Description 健康检查API响应数据结构
type HealthResponse struct {
	Version   string       `json:"version" example:"1.0.0" description:"s5 版本"`
	StartTime string       `json:"startTime" example:"2024-01-01T10:00:00Z" description:"启动时间"`
	Status    string       `json:"status" example:"UP" description:"健康状态"`
	Uptime    string       `json:"uptime" example:"1h30m45s" description:"运行时长"`
	Service   ServiceState `json:"service" example:"active" description:"代理服务状态"`
	Requests  int64        `json:"requests" example:"120" description:"管理接口请求总数"`
	Errors    int64        `json:"errors" example:"2" description:"管理接口失败请求数"`
}
