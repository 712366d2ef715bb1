package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/2026musik-code/autoscrip/internal/api/http/dto"
	"github.com/2026musik-code/autoscrip/internal/remote"
	"github.com/2026musik-code/autoscrip/internal/remote/remotetest"
	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAdminRouter(env *testEnv) *gin.Engine {
	h := NewAdminHandler(env.ledger, env.hostops, env.auth)
	servers := NewServerHandler(env.store)
	r := gin.New()
	r.POST("/api/v1/admin/login", h.Login)
	r.POST("/api/v1/admin/licenses", h.IssueLicense)
	r.GET("/api/v1/admin/licenses", h.ListLicenses)
	r.GET("/api/v1/admin/servers", servers.List)
	r.DELETE("/api/v1/admin/servers/:id", servers.Delete)
	r.POST("/api/v1/admin/servers/:id/diagnostics", h.Diagnose)
	r.GET("/api/v1/admin/servers/:id/access-tokens", h.ListAccessTokens)
	r.POST("/api/v1/admin/servers/:id/access-tokens", h.AddAccessToken)
	r.DELETE("/api/v1/admin/servers/:id/access-tokens/:token", h.RemoveAccessToken)
	return r
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t, nil)
	r := setupAdminRouter(env)

	w := doJSON(r, "POST", "/api/v1/admin/login", dto.LoginRequest{Secret: "admin-key"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	_, err := env.auth.Verify(resp.Token)
	assert.NoError(t, err)

	w = doJSON(r, "POST", "/api/v1/admin/login", dto.LoginRequest{Secret: "nope"}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, "POST", "/api/v1/admin/login", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIssueAndListLicenses(t *testing.T) {
	env := newTestEnv(t, nil)
	r := setupAdminRouter(env)

	w := doJSON(r, "POST", "/api/v1/admin/licenses", dto.IssueLicenseRequest{Months: 6, Note: "reseller"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var issued dto.LicenseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	assert.True(t, strings.HasPrefix(issued.Token, "AS-"))
	assert.Equal(t, 6, issued.Months)
	assert.False(t, issued.IsUsed)

	w = doJSON(r, "GET", "/api/v1/admin/licenses", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.ListLicensesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, "reseller", list.Licenses[0].Note)
}

func TestIssueLicenseInvalidMonths(t *testing.T) {
	env := newTestEnv(t, nil)
	r := setupAdminRouter(env)

	for _, months := range []int{0, 121, -3} {
		w := doJSON(r, "POST", "/api/v1/admin/licenses", map[string]int{"months": months}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "months=%d", months)
	}
}

func TestListServersOmitsCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addServer(t, "srv-1")
	r := setupAdminRouter(env)

	w := doJSON(r, "GET", "/api/v1/admin/servers", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "encrypted_password")
	assert.NotContains(t, w.Body.String(), "encrypted_private_key")

	var resp dto.ListServersResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "srv-1", resp.Servers[0].ID)
	assert.Equal(t, "10.0.0.5", resp.Servers[0].IP)
	assert.Equal(t, store.StatusActive, resp.Servers[0].Status)
}

func TestDeleteServer(t *testing.T) {
	env := newTestEnv(t, nil)
	env.addServer(t, "srv-1")
	r := setupAdminRouter(env)

	w := doJSON(r, "DELETE", "/api/v1/admin/servers/srv-1", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, "DELETE", "/api/v1/admin/servers/srv-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	doc, err := env.store.Read(context.Background())
	require.NoError(t, err)
	assert.Empty(t, doc.Servers)
}

func TestDiagnose(t *testing.T) {
	env := newTestEnv(t, func(_ remote.Target, command string) remotetest.Result {
		if strings.Contains(command, "speed_download") {
			return remotetest.Succeed("2500000")
		}
		return remotetest.Result{ExitCode: 1, Stderr: []string{"vnstat: not found\n"}}
	})
	env.addServer(t, "srv-1")
	r := setupAdminRouter(env)

	w := doJSON(r, "POST", "/api/v1/admin/servers/srv-1/diagnostics", dto.DiagnoseRequest{Kind: "speed"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report dto.DiagnoseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.NotNil(t, report.SpeedMbps)
	assert.InDelta(t, 20.0, *report.SpeedMbps, 0.001)

	w = doJSON(r, "POST", "/api/v1/admin/servers/srv-1/diagnostics", dto.DiagnoseRequest{Kind: "traffic"}, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = doJSON(r, "POST", "/api/v1/admin/servers/srv-1/diagnostics", map[string]string{"kind": "cpu"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(r, "POST", "/api/v1/admin/servers/missing/diagnostics", dto.DiagnoseRequest{Kind: "speed"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDiagnoseConnectFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.dialer.DialErr = remote.ErrConnect
	env.addServer(t, "srv-1")
	r := setupAdminRouter(env)

	w := doJSON(r, "POST", "/api/v1/admin/servers/srv-1/diagnostics", dto.DiagnoseRequest{Kind: "speed"}, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestDiagnoseUndecryptableCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.store.Mutate(context.Background(), func(doc *store.Document) error {
		doc.Servers = append(doc.Servers, store.ServerRecord{
			ID: "bad", Host: "10.0.0.6", AuthType: store.AuthPassword, EncryptedPassword: "garbage", Status: store.StatusActive,
		})
		return nil
	}))
	r := setupAdminRouter(env)

	w := doJSON(r, "POST", "/api/v1/admin/servers/bad/diagnostics", dto.DiagnoseRequest{Kind: "speed"}, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "cannot be decrypted")
	assert.Empty(t, env.dialer.Dials())
}

func TestAccessTokenEndpoints(t *testing.T) {
	const file = "/etc/autoscrip/access_tokens.json"
	var env *testEnv
	env = newTestEnv(t, func(_ remote.Target, command string) remotetest.Result {
		switch {
		case strings.Contains(command, "cat "):
			b, _ := env.dialer.File(file)
			return remotetest.Succeed(string(b))
		case strings.HasPrefix(command, "mv -f "):
			b, _ := env.dialer.File(file + ".tmp")
			env.dialer.SetFile(file, b)
			return remotetest.Succeed()
		}
		return remotetest.Result{ExitCode: 127}
	})
	env.addServer(t, "srv-1")
	r := setupAdminRouter(env)

	w := doJSON(r, "POST", "/api/v1/admin/servers/srv-1/access-tokens", dto.AccessTokenRequest{Token: "tok-1", Note: "bob"}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(r, "POST", "/api/v1/admin/servers/srv-1/access-tokens", dto.AccessTokenRequest{Token: "tok-1"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, "GET", "/api/v1/admin/servers/srv-1/access-tokens", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list dto.ListAccessTokensResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "tok-1", list.Tokens[0].Token())

	w = doJSON(r, "DELETE", "/api/v1/admin/servers/srv-1/access-tokens/tok-1", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, "DELETE", "/api/v1/admin/servers/srv-1/access-tokens/tok-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
