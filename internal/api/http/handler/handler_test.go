package handler

import (
	"bytes"
	"context"
	"encoding/json"
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
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	store    store.Store
	ledger   *license.Ledger
	cipher   *secretbox.Cipher
	sessions *session.Registry
	dialer   *remotetest.Dialer
	engine   *provisioning.Engine
	hostops  *hostops.Service
	auth     *auth.Service
}

func newTestEnv(t *testing.T, h remotetest.Handler) *testEnv {
	t.Helper()
	st, err := store.OpenFile(filepath.Join(t.TempDir(), "db.json"))
	require.NoError(t, err)
	cipher, err := secretbox.NewCipher("handler-secret")
	require.NoError(t, err)

	env := &testEnv{
		store:    st,
		ledger:   license.NewLedger(st),
		cipher:   cipher,
		sessions: session.NewRegistry(),
		dialer:   remotetest.NewDialer(h),
		auth:     auth.NewService("admin-key", auth.Config{JWTSecret: "jwt-secret"}),
	}
	env.engine, err = provisioning.NewEngine(provisioning.Config{}, []byte("#!/bin/bash\n"), env.dialer, st, env.ledger, cipher, env.sessions)
	require.NoError(t, err)
	env.hostops = hostops.NewService(hostops.Config{}, st, env.dialer, cipher)
	return env
}

func doJSON(r http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func (env *testEnv) addServer(t *testing.T, id string) {
	t.Helper()
	enc, err := env.cipher.Encrypt("pw")
	require.NoError(t, err)
	require.NoError(t, env.store.Mutate(context.Background(), func(doc *store.Document) error {
		doc.Servers = append(doc.Servers, store.ServerRecord{
			ID:                id,
			Host:              "10.0.0.5",
			Port:              22,
			Domain:            id + ".example.com",
			Username:          "root",
			AuthType:          store.AuthPassword,
			EncryptedPassword: enc,
			AdminUUID:         "abcd-1234",
			Status:            store.StatusActive,
		})
		return nil
	}))
}
