// Package file loads signing key material from on-disk key files. Key
// generation happens out of band; a missing file is an error, never a
// trigger to regenerate.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"

	"custodia/internal/domain"
)

type Provider struct {
	privatePath string
	publicPath  string
}

func NewProvider(privatePath, publicPath string) (*Provider, error) {
	if privatePath == "" {
		return nil, errors.New("private key path is required")
	}
	return &Provider{privatePath: privatePath, publicPath: publicPath}, nil
}

func (p *Provider) Load(_ context.Context) (domain.KeyHandle, error) {
	if p == nil {
		return domain.KeyHandle{}, errors.New("key provider is nil")
	}
	priv, err := os.ReadFile(p.privatePath)
	if err != nil {
		return domain.KeyHandle{}, fmt.Errorf("read private key %s: %w", p.privatePath, err)
	}
	handle := domain.KeyHandle{Private: priv}
	if p.publicPath != "" {
		pub, err := os.ReadFile(p.publicPath)
		if err != nil {
			return domain.KeyHandle{}, fmt.Errorf("read public key %s: %w", p.publicPath, err)
		}
		handle.Public = pub
	}
	return handle, nil
}
