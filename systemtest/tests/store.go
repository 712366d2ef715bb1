package tests

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/2026musik-code/autoscrip/internal/store"
	"github.com/2026musik-code/autoscrip/internal/store/storetest"
	"github.com/stretchr/testify/require"
)

var schemaSeq atomic.Int32

// TestPostgresStore runs the backend suite with a fresh schema per case.
func TestPostgresStore(t *testing.T, dbURL string) {
	storetest.RunSuite(t, func(t *testing.T) store.Store {
		schema := fmt.Sprintf("suite_%d", schemaSeq.Add(1))
		st, err := store.OpenPostgres(context.Background(), dbURL, schema)
		require.NoError(t, err)
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}
