package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/2026musik-code/autoscrip/internal/api/http/dto"
	"github.com/2026musik-code/autoscrip/internal/remote"
	"github.com/2026musik-code/autoscrip/internal/remote/remotetest"
	"github.com/2026musik-code/autoscrip/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProvisioningRouter(h *ProvisioningHandler) *gin.Engine {
	r := gin.New()
	r.POST("/api/install", h.Install)
	r.POST("/api/rebuild", h.Rebuild)
	r.GET("/api/v1/rebuild/targets", h.RebuildTargets)
	return r
}

func TestInstallAccepted(t *testing.T) {
	env := newTestEnv(t, func(_ remote.Target, _ string) remotetest.Result {
		return remotetest.Succeed("Admin Pass: 0a1b-2c3d\n")
	})
	tok, err := env.ledger.Issue(context.Background(), 1, "")
	require.NoError(t, err)
	sub := env.sessions.Attach("sock-1")
	r := setupProvisioningRouter(NewProvisioningHandler(env.engine))

	w := doJSON(r, "POST", "/api/install", map[string]any{
		"ip":           "203.0.113.4",
		"port":         "2222",
		"username":     "root",
		"password":     "pw",
		"authType":     "password",
		"domain":       "vpn.example.com",
		"os":           "ubuntu22",
		"licenseToken": tok.Token,
	}, map[string]string{"X-Socket-ID": "sock-1"})

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var resp dto.AcceptedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, "sock-1", resp.SessionID)

	require.NoError(t, env.engine.Wait(context.Background()))
	var last session.Event
	for {
		ev, ok := sub.TryNext()
		if !ok {
			break
		}
		last = ev
	}
	assert.Equal(t, session.StatusSuccess, last.Status)
	assert.Equal(t, 2222, env.dialer.Dials()[0].Port)
}

func TestInstallValidationError(t *testing.T) {
	env := newTestEnv(t, nil)
	tok, err := env.ledger.Issue(context.Background(), 1, "")
	require.NoError(t, err)
	r := setupProvisioningRouter(NewProvisioningHandler(env.engine))

	w := doJSON(r, "POST", "/api/install", map[string]any{
		"ip":           "203.0.113.4",
		"username":     "root",
		"password":     "pw",
		"domain":       "x.com && reboot",
		"licenseToken": tok.Token,
		"sessionId":    "s",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "domain", body["field"])
	assert.Empty(t, env.dialer.Dials())
}

func TestInstallUnknownLicense(t *testing.T) {
	env := newTestEnv(t, nil)
	r := setupProvisioningRouter(NewProvisioningHandler(env.engine))

	w := doJSON(r, "POST", "/api/install", map[string]any{
		"ip":           "203.0.113.4",
		"username":     "root",
		"password":     "pw",
		"domain":       "ok.example.com",
		"licenseToken": "AS-NONE-NONE-NONE-NONE",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "licenseToken")
}

func TestInstallBadPort(t *testing.T) {
	env := newTestEnv(t, nil)
	r := setupProvisioningRouter(NewProvisioningHandler(env.engine))

	w := doJSON(r, "POST", "/api/install", map[string]any{"ip": "1.2.3.4", "port": "ssh"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInstallDuringShutdown(t *testing.T) {
	env := newTestEnv(t, nil)
	tok, err := env.ledger.Issue(context.Background(), 1, "")
	require.NoError(t, err)
	require.NoError(t, env.engine.Shutdown(context.Background()))
	r := setupProvisioningRouter(NewProvisioningHandler(env.engine))

	w := doJSON(r, "POST", "/api/install", map[string]any{
		"ip":           "203.0.113.4",
		"username":     "root",
		"password":     "pw",
		"domain":       "ok.example.com",
		"licenseToken": tok.Token,
	}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRebuildAccepted(t *testing.T) {
	env := newTestEnv(t, func(_ remote.Target, _ string) remotetest.Result {
		return remotetest.Succeed("rebuild_success\n")
	})
	sub := env.sessions.Attach("rb")
	r := setupProvisioningRouter(NewProvisioningHandler(env.engine))

	w := doJSON(r, "POST", "/api/rebuild", map[string]any{
		"ip":              "198.51.100.2",
		"username":        "root",
		"currentPassword": "old",
		"targetOS":        "ubuntu",
		"targetVersion":   "24.04",
		"newPassword":     "new",
	}, map[string]string{"X-Session-ID": "rb"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		ev, ok := sub.Next(ctx)
		require.True(t, ok)
		if ev.Type == session.EventStatus {
			assert.Equal(t, session.StatusRebuild, ev.Status)
			break
		}
	}
}

func TestRebuildUnsupportedOS(t *testing.T) {
	env := newTestEnv(t, nil)
	r := setupProvisioningRouter(NewProvisioningHandler(env.engine))

	w := doJSON(r, "POST", "/api/rebuild", map[string]any{
		"ip":              "198.51.100.2",
		"username":        "root",
		"currentPassword": "old",
		"targetOS":        "windows",
		"targetVersion":   "11",
		"newPassword":     "new",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "targetOS")
}

func TestRebuildTargets(t *testing.T) {
	env := newTestEnv(t, nil)
	r := setupProvisioningRouter(NewProvisioningHandler(env.engine))

	w := doJSON(r, "GET", "/api/v1/rebuild/targets", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.RebuildTargetsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"12", "11", "10", "9"}, resp.Targets["debian"])
}
