package tests

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/2026musik-code/autoscrip/internal/api/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLicenseLifecycle(t *testing.T, env *Env) {
	var issued dto.LicenseResponse

	t.Run("issue", func(t *testing.T) {
		rr := doAdmin(env.Router, http.MethodPost, "/api/v1/admin/licenses", dto.IssueLicenseRequest{Months: 3, Note: "system"})
		require.Equal(t, http.StatusCreated, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &issued))
		assert.True(t, strings.HasPrefix(issued.Token, "AS-"))
		assert.Equal(t, 3, issued.Months)
		assert.False(t, issued.IsUsed)
	})

	t.Run("months out of range", func(t *testing.T) {
		rr := doAdmin(env.Router, http.MethodPost, "/api/v1/admin/licenses", dto.IssueLicenseRequest{Months: 121})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("list", func(t *testing.T) {
		rr := doAdmin(env.Router, http.MethodGet, "/api/v1/admin/licenses", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ListLicensesResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.NotEmpty(t, resp.Licenses)
		assert.Equal(t, issued.Token, resp.Licenses[0].Token)
	})
}

func issueLicense(t *testing.T, env *Env, months int) string {
	t.Helper()
	rr := doAdmin(env.Router, http.MethodPost, "/api/v1/admin/licenses", dto.IssueLicenseRequest{Months: months})
	require.Equal(t, http.StatusCreated, rr.Code)
	var resp dto.LicenseResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Token
}

func findLicense(t *testing.T, env *Env, token string) dto.LicenseResponse {
	t.Helper()
	rr := doAdmin(env.Router, http.MethodGet, "/api/v1/admin/licenses", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp dto.ListLicensesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	for _, l := range resp.Licenses {
		if l.Token == token {
			return l
		}
	}
	t.Fatalf("license %s not listed", token)
	return dto.LicenseResponse{}
}
