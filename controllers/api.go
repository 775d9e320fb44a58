package controllers

import (
	"s5-keeper/services"

	"github.com/gin-gonic/gin"
)

type APIController struct {
	keeper  *services.Keeper
	version string
}

/**
 * Create new API controller instance
 * @param {*services.Keeper} keeper - Keeper owning the proxy service
 * @param {string} version - s5 build version reported by /healthz
 * @returns {*APIController} New API controller instance
 * @example
 * controller := controllers.NewAPIController(services.GetKeeper(), "1.0.0")
 */
func NewAPIController(keeper *services.Keeper, version string) *APIController {
	return &APIController{
		keeper:  keeper,
		version: version,
	}
}

/**
 * Register health and metrics routes to Gin engine
 * @param {*gin.Engine} r - Gin router instance
 */
func (a *APIController) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", a.Healthz)
	r.GET("/metrics", gin.WrapH(services.MetricsHandler()))
}

// @Summary 业务就绪探针
// @Description 返回 s5 版本、启动时间、运行时长和代理服务状态
// @Tags System
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /healthz [get]
func (a *APIController) Healthz(c *gin.Context) {
	c.JSON(200, a.keeper.Health(c.Request.Context(), a.version))
}
