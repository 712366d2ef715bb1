package tests

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/2026musik-code/autoscrip/internal/sweeper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExpirySweep backdates the installed server and expects one teardown.
func TestExpirySweep(t *testing.T, env *Env) {
	ctx := context.Background()

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	require.NoError(t, env.Store.Mutate(ctx, func(doc *store.Document) error {
		require.NotEmpty(t, doc.Servers)
		doc.Servers[0].ExpiresAt = &yesterday
		return nil
	}))

	before := len(env.Dialer.Commands())
	sw := sweeper.New(sweeper.Config{}, env.Store, env.Dialer, env.Cipher)

	res, err := sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 1, res.TornDown)

	cmds := env.Dialer.Commands()[before:]
	require.Len(t, cmds, 1)
	assert.True(t, strings.Contains(cmds[0], "systemctl stop"))
	assert.Contains(t, cmds[0], "Panel.Example.com")

	doc, err := env.Store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StatusExpired, doc.Servers[0].Status)

	res, err = sw.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Expired)
}
