package secrets

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// VaultClient reads service secrets from HashiCorp Vault
type VaultClient struct {
	client *api.Client
	logger *zap.Logger
}

// NewVaultClient creates a new Vault client
func NewVaultClient(baseURL, token string, logger *zap.Logger) (*VaultClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config := &api.Config{
		Address: baseURL,
		HttpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultClient{
		client: client,
		logger: logger.Named("vault"),
	}, nil
}

// GetSecret reads the secret at path. KV v2 responses are unwrapped to their inner data.
func (v *VaultClient) GetSecret(ctx context.Context, path string) (map[string]interface{}, error) {
	secret, err := v.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret from %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret data found at %s", path)
	}

	if inner, ok := secret.Data["data"].(map[string]interface{}); ok {
		if _, versioned := secret.Data["metadata"]; versioned {
			return inner, nil
		}
	}
	return secret.Data, nil
}

// LoadSecrets returns the string values stored at path; other value types are skipped
func (v *VaultClient) LoadSecrets(ctx context.Context, path string) (map[string]string, error) {
	data, err := v.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(data))
	for key, value := range data {
		str, ok := value.(string)
		if !ok {
			v.logger.Debug("Skipping non-string secret value", zap.String("key", key))
			continue
		}
		out[key] = str
	}

	v.logger.Info("Secrets loaded from Vault", zap.String("path", path), zap.Int("count", len(out)))
	return out, nil
}

// HealthCheck checks if Vault is accessible
func (v *VaultClient) HealthCheck(ctx context.Context) error {
	if _, err := v.client.Sys().HealthWithContext(ctx); err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	return nil
}
