package domain

import "context"

// KeyHandle is borrowed key material resolved by a KeyProvider. The core
// never persists private material itself.
type KeyHandle struct {
	Private []byte
	Public  []byte
}

// KeyProvider loads a key pair once per pipeline run. It never generates
// keys; absent material is an error.
type KeyProvider interface {
	Load(ctx context.Context) (KeyHandle, error)
}

// Signer signs the full artifact content fetched from the unsigned store.
// Whether the variant digests first (RSA) or signs the raw message (ML-DSA)
// is the implementation's business; callers always pass the complete bytes.
type Signer interface {
	Algorithm() string
	Sign(ctx context.Context, message []byte) ([]byte, error)
	Verify(ctx context.Context, message, sig []byte) error
	PublicKey() []byte
}
