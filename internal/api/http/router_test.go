package http

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/2026musik-code/autoscrip/internal/auth"
	"github.com/2026musik-code/autoscrip/internal/hostops"
	"github.com/2026musik-code/autoscrip/internal/license"
	"github.com/2026musik-code/autoscrip/internal/provisioning"
	"github.com/2026musik-code/autoscrip/internal/remote/remotetest"
	"github.com/2026musik-code/autoscrip/internal/secretbox"
	"github.com/2026musik-code/autoscrip/internal/session"
	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st, err := store.OpenFile(filepath.Join(t.TempDir(), "db.json"))
	require.NoError(t, err)
	cipher, err := secretbox.NewCipher("router-secret")
	require.NoError(t, err)
	dialer := remotetest.NewDialer(nil)
	ledger := license.NewLedger(st)
	sessions := session.NewRegistry()
	engine, err := provisioning.NewEngine(provisioning.Config{}, []byte("echo\n"), dialer, st, ledger, cipher, sessions)
	require.NoError(t, err)

	r := gin.New()
	SetupRoute(r, &Services{
		Store:    st,
		Engine:   engine,
		Ledger:   ledger,
		Sessions: sessions,
		HostOps:  hostops.NewService(hostops.Config{}, st, dialer, cipher),
		Auth:     auth.NewService("admin-key", auth.Config{JWTSecret: "jwt"}),
	}, Config{AdminAPIKey: "admin-key"})
	return r
}

func TestRoutes(t *testing.T) {
	r := setupTestRouter(t)

	tests := []struct {
		method string
		path   string
		apiKey string
		want   int
	}{
		{"GET", "/health", "", http.StatusOK},
		{"GET", "/api/history", "", http.StatusUnauthorized},
		{"GET", "/api/history", "admin-key", http.StatusOK},
		{"DELETE", "/api/history/nope", "admin-key", http.StatusNotFound},
		{"GET", "/api/v1/admin/licenses", "", http.StatusUnauthorized},
		{"GET", "/api/v1/admin/licenses", "wrong", http.StatusUnauthorized},
		{"GET", "/api/v1/admin/licenses", "admin-key", http.StatusOK},
		{"GET", "/api/v1/admin/servers", "admin-key", http.StatusOK},
		{"GET", "/api/v1/rebuild/targets", "", http.StatusOK},
		{"POST", "/api/v1/admin/login", "", http.StatusBadRequest},
		{"POST", "/api/install", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(tt.method, tt.path, nil)
		if tt.apiKey != "" {
			req.Header.Set("X-API-Key", tt.apiKey)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tt.want, w.Code, "%s %s", tt.method, tt.path)
	}
}
