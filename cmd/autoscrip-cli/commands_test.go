package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2026musik-code/autoscrip/internal/api/http/dto"
	"github.com/2026musik-code/autoscrip/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Invalid API key"}`))
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLicenseIssue(t *testing.T) {
	srv := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/admin/licenses", r.URL.Path)

		var req dto.IssueLicenseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 6, req.Months)
		assert.Equal(t, "reseller", req.Note)

		writeJSON(w, http.StatusCreated, dto.LicenseResponse{Token: "AS-AAAA-BBBB-CCCC-DDDD", Months: 6})
	})

	var out bytes.Buffer
	err := runLicenseIssue([]string{"--server", srv.URL, "--api-key", "secret", "--months", "6", "--note", "reseller"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "AS-AAAA-BBBB-CCCC-DDDD")
	assert.Contains(t, out.String(), "Months: 6")
}

func TestLicenseIssue_InvalidMonths(t *testing.T) {
	var out bytes.Buffer
	err := runLicenseIssue([]string{"--server", "http://unused", "--api-key", "secret", "--months", "0"}, &out)
	assert.ErrorContains(t, err, "--months")
}

func TestLicenseList(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	srv := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		writeJSON(w, http.StatusOK, dto.ListLicensesResponse{
			Licenses: []dto.LicenseResponse{
				{Token: "AS-1111-1111-1111-1111", Months: 1, CreatedAt: created},
				{Token: "AS-2222-2222-2222-2222", Months: 12, CreatedAt: created, IsUsed: true, UsedByDomain: "vpn.example.com"},
			},
			Count: 2,
		})
	})

	var out bytes.Buffer
	require.NoError(t, runLicenseList([]string{"--server", srv.URL, "--api-key", "secret"}, &out))
	assert.Contains(t, out.String(), "AS-1111-1111-1111-1111")
	assert.Contains(t, out.String(), "vpn.example.com")
	assert.Contains(t, out.String(), "2026-03-01")
	assert.Contains(t, out.String(), "2 license(s)")
}

func TestServersList(t *testing.T) {
	expires := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	srv := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/servers", r.URL.Path)
		writeJSON(w, http.StatusOK, dto.ListServersResponse{
			Servers: []dto.ServerResponse{
				{ID: "rec-1", Domain: "a.example.com", IP: "10.0.0.1", Status: "active", ExpiresAt: &expires},
				{ID: "rec-2", Domain: "b.example.com", IP: "10.0.0.2", Status: "active"},
			},
			Count: 2,
		})
	})

	var out bytes.Buffer
	require.NoError(t, runServersList([]string{"--server", srv.URL, "--api-key", "secret"}, &out))
	assert.Contains(t, out.String(), "a.example.com")
	assert.Contains(t, out.String(), "2026-12-31")
	assert.Contains(t, out.String(), "never")
}

func TestServersDelete(t *testing.T) {
	srv := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if r.URL.Path != "/api/v1/admin/servers/rec-1" {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Server not found"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	})

	var out bytes.Buffer
	require.NoError(t, runServersDelete([]string{"--server", srv.URL, "--api-key", "secret", "--id", "rec-1"}, &out))
	assert.Contains(t, out.String(), "Server rec-1 deleted")

	err := runServersDelete([]string{"--server", srv.URL, "--api-key", "secret", "--id", "missing"}, &out)
	assert.ErrorContains(t, err, "HTTP 404")
	assert.ErrorContains(t, err, "Server not found")
}

func TestDiagnose_Speed(t *testing.T) {
	srv := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/admin/servers/rec-1/diagnostics", r.URL.Path)
		var req dto.DiagnoseRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "speed", req.Kind)

		speed := 93.5
		writeJSON(w, http.StatusOK, dto.DiagnoseResponse{ServerID: "rec-1", Kind: "speed", SpeedMbps: &speed})
	})

	var out bytes.Buffer
	require.NoError(t, runDiagnose([]string{"--server", srv.URL, "--api-key", "secret", "--id", "rec-1", "--kind", "speed"}, &out))
	assert.Contains(t, out.String(), "93.50 Mbps")
}

func TestClient_WrongKey(t *testing.T) {
	srv := fakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not be reached")
	})

	var out bytes.Buffer
	err := runServersList([]string{"--server", srv.URL, "--api-key", "wrong"}, &out)
	assert.ErrorContains(t, err, "HTTP 401")
	assert.ErrorContains(t, err, "Invalid API key")
}

func TestClient_MissingKey(t *testing.T) {
	t.Setenv("AUTOSCRIP_API_KEY", "")
	var out bytes.Buffer
	err := runServersList([]string{"--server", "http://unused"}, &out)
	assert.ErrorContains(t, err, "--api-key is required")
}

func TestRun_UnknownCommand(t *testing.T) {
	assert.ErrorContains(t, run([]string{"bogus"}), "unknown command")
	assert.ErrorContains(t, run([]string{"license"}), "subcommand")
	assert.ErrorContains(t, run([]string{"servers", "purge"}), "unknown servers subcommand")
}

func TestHashSecret(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runHashSecret([]string{"--secret", "panel-admin"}, &out))

	hash := strings.TrimSpace(out.String())
	assert.True(t, auth.IsHash(hash))
	assert.True(t, auth.CheckSecret("panel-admin", hash))

	assert.ErrorContains(t, runHashSecret(nil, &out), "--secret is required")
}
