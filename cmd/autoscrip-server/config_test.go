package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedacted(t *testing.T) {
	var c Config
	c.Http.AdminAPIKey = "admin"
	c.Crypto.Secret = "crypto"
	c.Store.PostgresURL = "postgres://app:hunter2@db:5432/autoscrip?sslmode=disable"

	r := redacted(c)
	assert.Equal(t, "********", r.Http.AdminAPIKey)
	assert.Equal(t, "********", r.Crypto.Secret)
	assert.Empty(t, r.Auth.JWTSecret)
	assert.Equal(t, "postgres://app:********@db:5432/autoscrip?sslmode=disable", r.Store.PostgresURL)
	assert.Equal(t, "admin", c.Http.AdminAPIKey)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "postgres://db:5432/x", redactURL("postgres://db:5432/x"))
	assert.Equal(t, "********", redactURL("not a url"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestCorsConfig(t *testing.T) {
	open := corsConfig(nil)
	assert.True(t, open.AllowAllOrigins)
	assert.False(t, open.AllowCredentials)
	assert.NoError(t, open.Validate())

	restricted := corsConfig([]string{"https://panel.example.com"})
	assert.False(t, restricted.AllowAllOrigins)
	assert.True(t, restricted.AllowCredentials)
	assert.Equal(t, []string{"https://panel.example.com"}, restricted.AllowOrigins)
	assert.Contains(t, restricted.AllowHeaders, "X-Socket-ID")
	assert.NoError(t, restricted.Validate())
}
