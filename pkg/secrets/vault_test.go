package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeVault(t *testing.T, wantPath, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
			return
		}
		assert.Equal(t, wantPath, r.URL.Path)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestApplyVaultSecrets_KV2(t *testing.T) {
	server := fakeVault(t, "/v1/secret/data/readmit/api",
		`{"data":{"data":{"AUTH_SIGNING_KEY":"from-vault","DB_PASSWORD":"pg-secret","UNRELATED":"x"}}}`)

	t.Setenv("AUTH_SIGNING_KEY", "")
	t.Setenv("DB_PASSWORD", "already-set")
	t.Setenv("UNRELATED", "")

	result, err := ApplyVaultSecrets(context.Background(), VaultConfig{
		Enabled:   true,
		Addr:      server.URL,
		Token:     "root",
		Mount:     "secret",
		Path:      "readmit/api",
		KVVersion: 2,
		Timeout:   time.Second,
		Keys:      DefaultKeys,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"AUTH_SIGNING_KEY"}, result.Loaded)
	assert.Equal(t, []string{"DB_PASSWORD"}, result.Skipped)
	assert.Equal(t, "from-vault", os.Getenv("AUTH_SIGNING_KEY"))
	assert.Equal(t, "already-set", os.Getenv("DB_PASSWORD"))
	assert.Empty(t, os.Getenv("UNRELATED"))
}

func TestApplyVaultSecrets_KV1Overwrite(t *testing.T) {
	server := fakeVault(t, "/v1/kv/readmit", `{"data":{"REDIS_PASSWORD":"r3dis","PORT":8081}}`)

	t.Setenv("REDIS_PASSWORD", "old")
	t.Setenv("PORT", "")

	result, err := ApplyVaultSecrets(context.Background(), VaultConfig{
		Enabled:   true,
		Addr:      server.URL + "/",
		Token:     "root",
		Mount:     "/kv/",
		Path:      "/readmit",
		KVVersion: 1,
		Timeout:   time.Second,
		Overwrite: true,
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"REDIS_PASSWORD", "PORT"}, result.Loaded)
	assert.Equal(t, "r3dis", os.Getenv("REDIS_PASSWORD"))
	assert.Equal(t, "8081", os.Getenv("PORT"))
}

func TestApplyVaultSecrets_Errors(t *testing.T) {
	result, err := ApplyVaultSecrets(context.Background(), VaultConfig{})
	require.NoError(t, err)
	assert.False(t, result.Enabled)

	_, err = ApplyVaultSecrets(context.Background(), VaultConfig{Enabled: true, Addr: "http://vault"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")

	server := fakeVault(t, "/v1/secret/data/readmit", `{}`)
	_, err = ApplyVaultSecrets(context.Background(), VaultConfig{
		Enabled: true, Addr: server.URL, Token: "wrong", Mount: "secret", Path: "readmit", KVVersion: 2, Timeout: time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")

	_, err = ApplyVaultSecrets(context.Background(), VaultConfig{
		Enabled: true, Addr: server.URL, Token: "root", Mount: "secret", Path: "readmit", KVVersion: 2, Timeout: time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing data")
}

func TestLoadVaultConfigFromEnv(t *testing.T) {
	t.Setenv("VAULT_ENABLED", "TRUE")
	t.Setenv("VAULT_ADDR", "http://vault:8200")
	t.Setenv("VAULT_MOUNT", "")
	t.Setenv("VAULT_KV_VERSION", "1")
	t.Setenv("VAULT_TIMEOUT_MS", "250")
	t.Setenv("VAULT_KEYS", " AUTH_SIGNING_KEY , ,DB_PASSWORD")

	cfg := LoadVaultConfigFromEnv()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "secret", cfg.Mount)
	assert.Equal(t, 1, cfg.KVVersion)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []string{"AUTH_SIGNING_KEY", "DB_PASSWORD"}, cfg.Keys)
}
