package systemtest

import (
	"context"
	"testing"

	"github.com/2026musik-code/autoscrip/systemtest/postgres"
	"github.com/2026musik-code/autoscrip/systemtest/tests"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
)

func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("system tests need Docker")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	container, err := postgres.StartPostgres(ctx, "autoscrip", "autoscrip", "autoscrip")
	require.NoError(t, err)
	t.Cleanup(func() { _ = postgres.TerminatePostgres(ctx, container) })

	dbURL, err := postgres.ConnectionURL(ctx, container)
	require.NoError(t, err)

	t.Run("PostgresStore", func(t *testing.T) { tests.TestPostgresStore(t, dbURL) })

	env := tests.NewEnv(t, dbURL, "system")

	t.Run("HealthCheck", func(t *testing.T) { tests.TestHealthCheck(t, env) })
	t.Run("AdminAuth", func(t *testing.T) { tests.TestAdminAuth(t, env) })
	t.Run("LicenseLifecycle", func(t *testing.T) { tests.TestLicenseLifecycle(t, env) })
	t.Run("InstallFlow", func(t *testing.T) { tests.TestInstallFlow(t, env) })
	t.Run("ExpirySweep", func(t *testing.T) { tests.TestExpirySweep(t, env) })
}
