package controllers

import (
	"errors"
	"net/http"

	"s5-keeper/internal/errs"
	"s5-keeper/internal/middleware"
	"s5-keeper/internal/models"
	"s5-keeper/services"

	"github.com/gin-gonic/gin"
)

type ServiceController struct {
	keeper *services.Keeper
}

func NewServiceController(keeper *services.Keeper) *ServiceController {
	return &ServiceController{
		keeper: keeper,
	}
}

/**
 * Register proxy service routes
 * @param {*gin.Engine} r - Gin router instance
 * @description
 * - GET  /s5/api/v1/info           connection info
 * - GET  /s5/api/v1/status         supervisor state
 * - POST /s5/api/v1/service/:verb  start|stop|restart|update
 * - info and service verbs are served on the unix socket only
 */
func (s *ServiceController) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/s5/api/v1")
	api.GET("/info", middleware.SocketOnly(), s.GetInfo)
	api.GET("/status", s.GetStatus)
	api.POST("/service/:verb", middleware.SocketOnly(), s.ServiceAction)
}

func abortWithError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "service.failed"
	switch {
	case errors.Is(err, errs.ErrNotProvisioned):
		status, code = http.StatusNotFound, "service.not_provisioned"
	case errors.Is(err, errs.ErrPrivilege):
		status, code = http.StatusForbidden, "service.privilege"
	case errors.Is(err, errs.ErrUpgradeFailed):
		code = "service.upgrade_failed"
	case errors.Is(err, errs.ErrServiceStartFailed):
		code = "service.start_failed"
	}
	c.JSON(status, &models.ErrorResponse{Code: code, Error: err.Error()})
}

// GetInfo returns the persisted connection record
//
//	@Summary		Connection info
//	@Tags			Service
//	@Produce		json
//	@Success		200	{object}	models.InfoRecord
//	@Failure		404	{object}	models.ErrorResponse	"Proxy not provisioned"
//	@Router			/s5/api/v1/info [get]
func (s *ServiceController) GetInfo(c *gin.Context) {
	rec, err := s.keeper.Reporter.ReadState()
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(200, rec)
}

// GetStatus reads the service state from the supervisor
//
//	@Summary		Service status
//	@Tags			Service
//	@Produce		json
//	@Success		200	{object}	models.ServiceStatus
//	@Router			/s5/api/v1/status [get]
func (s *ServiceController) GetStatus(c *gin.Context) {
	status, _, err := s.keeper.Status(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(200, status)
}

// ServiceAction runs a management verb
//
//	@Summary		Service action
//	@Tags			Service
//	@Produce		json
//	@Param			verb	path		string	true	"start, stop, restart or update"
//	@Success		200		{object}	models.ServiceStatus
//	@Failure		400		{object}	models.ErrorResponse	"Unknown verb"
//	@Failure		500		{object}	models.ErrorResponse	"Supervisor action failed"
//	@Router			/s5/api/v1/service/{verb} [post]
func (s *ServiceController) ServiceAction(c *gin.Context) {
	ctx := c.Request.Context()
	verb := c.Param("verb")
	var err error
	switch verb {
	case "start":
		err = s.keeper.Start(ctx)
	case "stop":
		err = s.keeper.Stop(ctx)
	case "restart":
		err = s.keeper.Restart(ctx)
	case "update":
		result, uerr := s.keeper.Update(ctx)
		if uerr != nil {
			abortWithError(c, uerr)
			return
		}
		c.JSON(200, result)
		return
	default:
		c.JSON(400, &models.ErrorResponse{Code: "service.unknown_verb", Error: "unknown verb '" + verb + "'"})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	status, _, _ := s.keeper.Status(ctx)
	c.JSON(200, status)
}
