// Package signer provides the configured signature algorithm variants. The
// pipeline is agnostic to which variant is wired; both sign the complete
// artifact content fetched from the unsigned store.
package signer

import (
	"fmt"

	"custodia/internal/domain"
)

// New resolves the configured algorithm to a signer over the given key
// material.
func New(alg string, handle domain.KeyHandle) (domain.Signer, error) {
	switch alg {
	case AlgorithmRSA, "rsa":
		return NewRSASigner(handle)
	case AlgorithmMLDSA65, "ml-dsa", "mldsa65":
		return NewMLDSASigner(handle)
	default:
		return nil, fmt.Errorf("unsupported signature algorithm: %s", alg)
	}
}
