package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	internalhttp "github.com/2026musik-code/autoscrip/internal/api/http"
	"github.com/2026musik-code/autoscrip/internal/auth"
	"github.com/2026musik-code/autoscrip/internal/hostops"
	"github.com/2026musik-code/autoscrip/internal/license"
	"github.com/2026musik-code/autoscrip/internal/provisioning"
	"github.com/2026musik-code/autoscrip/internal/remote"
	"github.com/2026musik-code/autoscrip/internal/remote/remotetest"
	"github.com/2026musik-code/autoscrip/internal/secretbox"
	"github.com/2026musik-code/autoscrip/internal/session"
	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const (
	AdminAPIKey = "system-admin-key"
	adminPass   = "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0"
)

// Env is a fully wired server backed by Postgres and a scripted SSH
// dialer.
type Env struct {
	Router   *gin.Engine
	Store    store.Store
	Dialer   *remotetest.Dialer
	Engine   *provisioning.Engine
	Cipher   *secretbox.Cipher
	Sessions *session.Registry
}

func NewEnv(t *testing.T, dbURL, schema string) *Env {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{
		Driver:         store.DriverPostgres,
		PostgresURL:    dbURL,
		PostgresSchema: schema,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cipher, err := secretbox.NewCipher("system-crypto-secret")
	require.NoError(t, err)

	dialer := remotetest.NewDialer(func(_ remote.Target, command string) remotetest.Result {
		return remotetest.Succeed("Installing panel...\n", "Admin Pass: "+adminPass+"\n")
	})

	ledger := license.NewLedger(st)
	sessions := session.NewRegistry()
	engine, err := provisioning.NewEngine(provisioning.Config{}, []byte("#!/bin/bash\necho install\n"), dialer, st, ledger, cipher, sessions)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Shutdown(context.Background()) })

	router := gin.New()
	internalhttp.SetupRoute(router, &internalhttp.Services{
		Store:    st,
		Engine:   engine,
		Ledger:   ledger,
		Sessions: sessions,
		HostOps:  hostops.NewService(hostops.Config{}, st, dialer, cipher),
		Auth:     auth.NewService(AdminAPIKey, auth.Config{JWTSecret: "system-jwt-secret"}),
	}, internalhttp.Config{AdminAPIKey: AdminAPIKey})

	return &Env{
		Router:   router,
		Store:    st,
		Dialer:   dialer,
		Engine:   engine,
		Cipher:   cipher,
		Sessions: sessions,
	}
}

func doJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	return doJSONWithHeaders(router, method, path, body, nil)
}

func doAdmin(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	return doJSONWithHeaders(router, method, path, body, map[string]string{"X-API-Key": AdminAPIKey})
}

func doJSONWithHeaders(router http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
