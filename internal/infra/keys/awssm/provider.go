package awssm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"custodia/internal/config"
	"custodia/internal/domain"
)

// Provider loads a key pair stored as one Secrets Manager secret:
// {"private_base64": "...", "public_base64": "..."}.
type Provider struct {
	client   *Client
	secretID string
}

func NewProvider(cfg config.Config) (*Provider, error) {
	if cfg.KeySecretID == "" {
		return nil, errors.New("KEY_SECRET_ID is required")
	}
	client, err := NewClient(
		cfg.AWSSecretsManagerEndpoint,
		cfg.AWSRegion,
		cfg.AWSAccessKeyID,
		cfg.AWSSecretAccessKey,
		cfg.AWSSessionToken,
	)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, secretID: cfg.KeySecretID}, nil
}

func (p *Provider) Load(ctx context.Context) (domain.KeyHandle, error) {
	if p == nil || p.client == nil {
		return domain.KeyHandle{}, errors.New("key provider is nil")
	}
	secret, err := p.client.GetSecret(ctx, p.secretID)
	if err != nil {
		return domain.KeyHandle{}, fmt.Errorf("get key secret: %w", err)
	}
	var payload struct {
		PrivateBase64 string `json:"private_base64"`
		PublicBase64  string `json:"public_base64"`
	}
	if err := json.Unmarshal(secret, &payload); err != nil {
		return domain.KeyHandle{}, fmt.Errorf("decode key secret: %w", err)
	}
	if payload.PrivateBase64 == "" {
		return domain.KeyHandle{}, errors.New("key secret missing private material")
	}
	priv, err := base64.StdEncoding.DecodeString(payload.PrivateBase64)
	if err != nil {
		return domain.KeyHandle{}, fmt.Errorf("decode private material: %w", err)
	}
	handle := domain.KeyHandle{Private: priv}
	if payload.PublicBase64 != "" {
		pub, err := base64.StdEncoding.DecodeString(payload.PublicBase64)
		if err != nil {
			return domain.KeyHandle{}, fmt.Errorf("decode public material: %w", err)
		}
		handle.Public = pub
	}
	return handle, nil
}
