package controllers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"s5-keeper/internal/config"
	"s5-keeper/internal/models"
	"s5-keeper/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
)

type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, exec.ErrNotFound
}

func (stubRunner) LookPath(name string) (string, error) {
	return "", exec.ErrNotFound
}

type memSupervisor struct {
	mu     sync.Mutex
	active bool
}

func (m *memSupervisor) Reload(ctx context.Context) error               { return nil }
func (m *memSupervisor) Enable(ctx context.Context, name string) error  { return nil }
func (m *memSupervisor) Disable(ctx context.Context, name string) error { return nil }

func (m *memSupervisor) set(active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = active
	return nil
}

func (m *memSupervisor) Start(ctx context.Context, name string) error   { return m.set(true) }
func (m *memSupervisor) Restart(ctx context.Context, name string) error { return m.set(true) }
func (m *memSupervisor) Stop(ctx context.Context, name string) error    { return m.set(false) }

func (m *memSupervisor) State(ctx context.Context, name string) models.ServiceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		return models.StateActive
	}
	return models.StateInactive
}

func (m *memSupervisor) Status(ctx context.Context, name string) (string, error) {
	return "Active: " + string(m.State(ctx, name)), nil
}

func newTestRouter(t *testing.T, provisioned bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	cfg.Report.IPEndpoints = nil
	cfg.Paths.InfoFile = "/etc/s5/info.txt"
	cfg.Paths.StateFile = "/etc/s5/state.yaml"
	fs := afero.NewMemMapFs()
	sup := &memSupervisor{}
	k := services.NewKeeper(cfg, services.Deps{
		Fs:         fs,
		Runner:     stubRunner{},
		Supervisor: sup,
		IsRoot:     func() bool { return true },
	})

	if provisioned {
		afero.WriteFile(fs, "/etc/systemd/system/s5.service", []byte("[Service]\nExecStart=/usr/local/bin/gost\n"), 0644)
		pc := models.ProvisioningConfig{Port: 18080, Username: "user1234", Password: "Abcdefgh12345678", ServiceName: "s5"}
		if _, err := k.Reporter.Report(context.Background(), pc, "2.11.5"); err != nil {
			t.Fatal(err)
		}
		sup.set(true)
	}

	r := gin.New()
	NewAPIController(k, "test").RegisterRoutes(r)
	NewServiceController(k).RegisterRoutes(r)
	return r
}

var socketAddr net.Addr = &net.UnixAddr{Name: "/run/s5/s5.sock", Net: "unix"}

// serveOn replays a request as if it arrived on a listener bound to local.
func serveOn(r *gin.Engine, local net.Addr, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	if local != nil {
		req = req.WithContext(context.WithValue(req.Context(), http.LocalAddrContextKey, local))
	}
	r.ServeHTTP(w, req)
	return w
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	return serveOn(r, socketAddr, method, path)
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, true)
	w := serve(r, http.MethodGet, "/healthz")
	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	var health models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "UP" || health.Version != "test" || health.Service != models.StateActive {
		t.Errorf("health = %+v", health)
	}
}

func TestInfoAndStatus(t *testing.T) {
	r := newTestRouter(t, true)
	w := serve(r, http.MethodGet, "/s5/api/v1/info")
	if w.Code != 200 {
		t.Fatalf("info status = %d: %s", w.Code, w.Body.String())
	}
	var rec models.InfoRecord
	json.Unmarshal(w.Body.Bytes(), &rec)
	if rec.Port != 18080 || rec.Username != "user1234" || rec.Address != "YOUR_SERVER_IP" {
		t.Errorf("info = %+v", rec)
	}

	w = serve(r, http.MethodPost, "/s5/api/v1/service/stop")
	if w.Code != 200 {
		t.Fatalf("stop status = %d: %s", w.Code, w.Body.String())
	}
	var st models.ServiceStatus
	json.Unmarshal(w.Body.Bytes(), &st)
	if st.State != models.StateInactive {
		t.Errorf("state after stop = %s", st.State)
	}

	w = serve(r, http.MethodGet, "/s5/api/v1/status")
	json.Unmarshal(w.Body.Bytes(), &st)
	if w.Code != 200 || st.State != models.StateInactive {
		t.Errorf("status = %d %+v", w.Code, st)
	}
}

func TestNotProvisioned(t *testing.T) {
	r := newTestRouter(t, false)
	for _, c := range []struct{ method, path string }{
		{http.MethodGet, "/s5/api/v1/info"},
		{http.MethodPost, "/s5/api/v1/service/start"},
	} {
		w := serve(r, c.method, c.path)
		if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), "service.not_provisioned") {
			t.Errorf("%s %s = %d %s", c.method, c.path, w.Code, w.Body.String())
		}
	}
}

func TestUnknownVerb(t *testing.T) {
	r := newTestRouter(t, true)
	w := serve(r, http.MethodPost, "/s5/api/v1/service/reboot")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(t, true)
	serve(r, http.MethodGet, "/healthz")
	w := serve(r, http.MethodGet, "/metrics")
	if w.Code != 200 || !strings.Contains(w.Body.String(), "s5_service_active") {
		t.Errorf("metrics = %d", w.Code)
	}
}

func TestSensitiveRoutesRefusedOverTCP(t *testing.T) {
	r := newTestRouter(t, true)
	tcp := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9090}
	for _, local := range []net.Addr{tcp, nil} {
		for _, c := range []struct{ method, path string }{
			{http.MethodGet, "/s5/api/v1/info"},
			{http.MethodPost, "/s5/api/v1/service/stop"},
			{http.MethodPost, "/s5/api/v1/service/update"},
		} {
			w := serveOn(r, local, c.method, c.path)
			if w.Code != http.StatusForbidden || strings.Contains(w.Body.String(), "Abcdefgh12345678") {
				t.Errorf("%v %s %s = %d %s", local, c.method, c.path, w.Code, w.Body.String())
			}
		}
	}

	// 服务未被停止
	w := serveOn(r, tcp, http.MethodGet, "/s5/api/v1/status")
	var st models.ServiceStatus
	json.Unmarshal(w.Body.Bytes(), &st)
	if w.Code != 200 || st.State != models.StateActive {
		t.Errorf("status over tcp = %d %+v", w.Code, st)
	}
	if w := serveOn(r, tcp, http.MethodGet, "/healthz"); w.Code != 200 {
		t.Errorf("healthz over tcp = %d", w.Code)
	}
}
