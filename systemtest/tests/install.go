package tests

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2026musik-code/autoscrip/internal/api/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInstallFlow drives an install over a real HTTP listener so the
// event stream is read the way a browser would.
func TestInstallFlow(t *testing.T, env *Env) {
	srv := httptest.NewServer(env.Router)
	defer srv.Close()

	token := issueLicense(t, env, 1)
	const socketID = "system-socket-1"

	events := make(chan string, 64)
	attached := make(chan struct{})
	go func() {
		defer close(events)
		resp, err := http.Get(srv.URL + "/api/v1/sessions/" + socketID + "/events")
		if err != nil {
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		event := ""
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				event = strings.TrimPrefix(line, "event:")
				if event == "attached" {
					close(attached)
				}
			case strings.HasPrefix(line, "data:") && event != "attached":
				events <- event + " " + strings.TrimPrefix(line, "data:")
			}
		}
	}()

	select {
	case <-attached:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream did not attach")
	}

	req := dto.InstallRequest{
		IP:           "203.0.113.10",
		Port:         "22",
		Username:     "root",
		AuthType:     "password",
		Password:     "s3cret",
		Domain:       "Panel.Example.com",
		OS:           "ubuntu",
		LicenseToken: token,
	}
	rr := doJSONWithHeaders(env.Router, http.MethodPost, "/api/install", req, map[string]string{"X-Socket-ID": socketID})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var status string
	var logs []string
	timeout := time.After(10 * time.Second)
loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			if strings.HasPrefix(ev, "status ") {
				status = ev
			} else {
				logs = append(logs, ev)
			}
		case <-timeout:
			t.Fatal("install did not finish")
		}
	}

	assert.Contains(t, status, `"status":"success"`)
	assert.Contains(t, status, `"uuid":"`+adminPass+`"`)
	assert.Contains(t, status, "Panel.Example.com")
	assert.NotEmpty(t, logs)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.Engine.Wait(ctx))

	t.Run("server recorded", func(t *testing.T) {
		rr := doAdmin(env.Router, http.MethodGet, "/api/v1/admin/servers", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ListServersResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		s := resp.Servers[0]
		assert.Equal(t, "Panel.Example.com", s.Domain)
		assert.Equal(t, adminPass, s.AdminUUID)
		assert.Equal(t, token, s.LicenseToken)
		require.NotNil(t, s.ExpiresAt)
		assert.NotContains(t, rr.Body.String(), "s3cret")
	})

	t.Run("license consumed", func(t *testing.T) {
		l := findLicense(t, env, token)
		assert.True(t, l.IsUsed)
		assert.Equal(t, "Panel.Example.com", l.UsedByDomain)
	})

	t.Run("token cannot be reused", func(t *testing.T) {
		again := req
		again.Domain = "other.example.com"
		rr := doJSON(env.Router, http.MethodPost, "/api/install", again)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "licenseToken")
	})
}
