package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/2026musik-code/autoscrip/internal/api/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T, env *Env) {
	rr := doJSON(env.Router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp dto.HealthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestAdminAuth(t *testing.T, env *Env) {
	t.Run("missing key", func(t *testing.T) {
		rr := doJSON(env.Router, http.MethodGet, "/api/v1/admin/servers", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong key", func(t *testing.T) {
		rr := doJSONWithHeaders(env.Router, http.MethodGet, "/api/v1/admin/servers", nil, map[string]string{"X-API-Key": "nope"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("bearer token from login", func(t *testing.T) {
		rr := doJSON(env.Router, http.MethodPost, "/api/v1/admin/login", dto.LoginRequest{Secret: AdminAPIKey})
		require.Equal(t, http.StatusOK, rr.Code)

		var login dto.LoginResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &login))
		require.NotEmpty(t, login.Token)

		rr = doJSONWithHeaders(env.Router, http.MethodGet, "/api/v1/admin/servers", nil,
			map[string]string{"Authorization": "Bearer " + login.Token})
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}
