// Package storetest holds the behavioral checks every store.Store
// backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunSuite runs the backend checks. newStore must return an empty store.
func RunSuite(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("empty read", func(t *testing.T) { testEmptyRead(t, newStore(t)) })
	t.Run("mutate persists", func(t *testing.T) { testMutatePersists(t, newStore(t)) })
	t.Run("failed mutation writes nothing", func(t *testing.T) { testFailedMutation(t, newStore(t)) })
	t.Run("read returns a copy", func(t *testing.T) { testReadReturnsCopy(t, newStore(t)) })
	t.Run("concurrent mutations", func(t *testing.T) { testConcurrentMutations(t, newStore(t)) })
}

func testEmptyRead(t *testing.T, s store.Store) {
	doc, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Servers)
	assert.NotNil(t, doc.LicenseTokens)
	assert.Empty(t, doc.Servers)
	assert.Empty(t, doc.LicenseTokens)
}

func testMutatePersists(t *testing.T, s store.Store) {
	ctx := context.Background()
	expires := time.Date(2026, 11, 14, 0, 0, 0, 0, time.UTC)

	err := s.Mutate(ctx, func(doc *store.Document) error {
		doc.LicenseTokens = append(doc.LicenseTokens, store.LicenseToken{
			Token: "AS-TEST-0001", Months: 1, CreatedAt: time.Now().UTC(),
		})
		doc.Servers = append(doc.Servers, store.ServerRecord{
			ID: "srv-1", Host: "10.0.0.1", Domain: "example.com",
			AuthType: store.AuthPassword, EncryptedPassword: "enc",
			ExpiresAt: &expires, Status: store.StatusActive,
		})
		return nil
	})
	require.NoError(t, err)

	doc, err := s.Read(ctx)
	require.NoError(t, err)
	require.Len(t, doc.Servers, 1)
	require.Len(t, doc.LicenseTokens, 1)
	assert.Equal(t, "example.com", doc.Servers[0].Domain)
	require.NotNil(t, doc.Servers[0].ExpiresAt)
	assert.True(t, expires.Equal(*doc.Servers[0].ExpiresAt))
	assert.Equal(t, "AS-TEST-0001", doc.LicenseTokens[0].Token)
}

func testFailedMutation(t *testing.T, s store.Store) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := s.Mutate(ctx, func(doc *store.Document) error {
		doc.Servers = append(doc.Servers, store.ServerRecord{ID: "never"})
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	doc, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, doc.Servers)
}

func testReadReturnsCopy(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Mutate(ctx, func(doc *store.Document) error {
		doc.Servers = append(doc.Servers, store.ServerRecord{ID: "srv-1", Status: store.StatusActive})
		return nil
	}))

	doc, err := s.Read(ctx)
	require.NoError(t, err)
	doc.Servers[0].Status = store.StatusExpired

	again, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, again.Servers[0].Status)
}

func testConcurrentMutations(t *testing.T, s store.Store) {
	ctx := context.Background()
	const writers = 20

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Mutate(ctx, func(doc *store.Document) error {
				doc.LicenseTokens = append(doc.LicenseTokens, store.LicenseToken{
					Token: fmt.Sprintf("AS-CONC-%04d", i), Months: 1,
				})
				return nil
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	doc, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Len(t, doc.LicenseTokens, writers)
}
