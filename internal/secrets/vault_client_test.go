package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVaultServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("X-Vault-Token"))
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/v1/secret/data/deacon-insights":
			_, _ = w.Write([]byte(`{"data":{"data":{"textgen_api_key":"sk-live","database_password":"pg-secret","retries":3},"metadata":{"version":2}}}`))
		case "/v1/kv/deacon-insights":
			_, _ = w.Write([]byte(`{"data":{"redis_password":"r-secret"}}`))
		case "/v1/sys/health":
			_, _ = w.Write([]byte(`{"initialized":true,"sealed":false,"standby":false}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
}

func TestLoadSecrets_KVv2(t *testing.T) {
	server := newVaultServer(t)
	defer server.Close()

	client, err := NewVaultClient(server.URL, "test-token", nil)
	require.NoError(t, err)

	secrets, err := client.LoadSecrets(context.Background(), "secret/data/deacon-insights")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"textgen_api_key":   "sk-live",
		"database_password": "pg-secret",
	}, secrets)
}

func TestLoadSecrets_KVv1(t *testing.T) {
	server := newVaultServer(t)
	defer server.Close()

	client, err := NewVaultClient(server.URL, "test-token", nil)
	require.NoError(t, err)

	secrets, err := client.LoadSecrets(context.Background(), "kv/deacon-insights")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"redis_password": "r-secret"}, secrets)
}

func TestLoadSecrets_Missing(t *testing.T) {
	server := newVaultServer(t)
	defer server.Close()

	client, err := NewVaultClient(server.URL, "test-token", nil)
	require.NoError(t, err)

	_, err = client.LoadSecrets(context.Background(), "secret/data/unknown")
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	server := newVaultServer(t)
	defer server.Close()

	client, err := NewVaultClient(server.URL, "test-token", nil)
	require.NoError(t, err)

	assert.NoError(t, client.HealthCheck(context.Background()))
}
