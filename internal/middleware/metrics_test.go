package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"s5-keeper/services"

	"github.com/gin-gonic/gin"
)

func TestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	requests, errors := services.GetTotalRequestCount(), services.GetTotalErrorCount()
	for _, p := range []string{"/ok", "/fail", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	if got := services.GetTotalRequestCount() - requests; got != 3 {
		t.Errorf("requests counted = %d, want 3", got)
	}
	// /fail 和 404 的 /missing
	if got := services.GetTotalErrorCount() - errors; got != 2 {
		t.Errorf("errors counted = %d, want 2", got)
	}
}
