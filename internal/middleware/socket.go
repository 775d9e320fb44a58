package middleware

import (
	"net"
	"net/http"

	"s5-keeper/internal/models"

	"github.com/gin-gonic/gin"
)

/**
 * 仅允许经由 unix socket 到达的请求
 * @description
 * - socket 文件权限为 0600, 只有 root 能连接
 * - TCP 监听没有鉴权, 凭据和启停接口在 TCP 上一律拒绝
 * - 无法确定来源连接时按 TCP 处理
 */
func SocketOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr, ok := c.Request.Context().Value(http.LocalAddrContextKey).(net.Addr); ok && addr.Network() == "unix" {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, &models.ErrorResponse{
			Code:  "api.socket_only",
			Error: "this endpoint is only served on the unix socket",
		})
	}
}
