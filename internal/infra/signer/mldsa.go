package signer

import (
	"context"
	"errors"
	"fmt"

	"custodia/internal/domain"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
)

const AlgorithmMLDSA65 = "ml-dsa-65"

// MLDSASigner is the lattice variant. ML-DSA signs the raw message directly
// (no separate digest step), so it receives the full artifact content. Key
// material is the scheme's fixed-size raw binary encoding.
type MLDSASigner struct {
	scheme sign.Scheme
	priv   sign.PrivateKey
	pub    sign.PublicKey
	pubRaw []byte
}

func NewMLDSASigner(handle domain.KeyHandle) (*MLDSASigner, error) {
	scheme := mldsa65.Scheme()
	if len(handle.Private) != scheme.PrivateKeySize() {
		return nil, fmt.Errorf("%w: ml-dsa private key must be %d bytes, got %d",
			domain.ErrSigner, scheme.PrivateKeySize(), len(handle.Private))
	}
	priv, err := scheme.UnmarshalBinaryPrivateKey(handle.Private)
	if err != nil {
		return nil, fmt.Errorf("%w: parse ml-dsa private key: %w", domain.ErrSigner, err)
	}

	var pub sign.PublicKey
	var pubRaw []byte
	if len(handle.Public) > 0 {
		if len(handle.Public) != scheme.PublicKeySize() {
			return nil, fmt.Errorf("%w: ml-dsa public key must be %d bytes, got %d",
				domain.ErrSigner, scheme.PublicKeySize(), len(handle.Public))
		}
		pub, err = scheme.UnmarshalBinaryPublicKey(handle.Public)
		if err != nil {
			return nil, fmt.Errorf("%w: parse ml-dsa public key: %w", domain.ErrSigner, err)
		}
		pubRaw = append([]byte(nil), handle.Public...)
	} else {
		pub = priv.Public().(sign.PublicKey)
		pubRaw, err = pub.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("%w: encode ml-dsa public key: %w", domain.ErrSigner, err)
		}
	}

	return &MLDSASigner{scheme: scheme, priv: priv, pub: pub, pubRaw: pubRaw}, nil
}

func (s *MLDSASigner) Algorithm() string {
	return AlgorithmMLDSA65
}

func (s *MLDSASigner) Sign(_ context.Context, message []byte) (out []byte, err error) {
	if s == nil || s.priv == nil {
		return nil, fmt.Errorf("%w: ml-dsa signer not initialized", domain.ErrSigner)
	}
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: ml-dsa sign: %v", domain.ErrSigner, r)
		}
	}()
	return s.scheme.Sign(s.priv, message, nil), nil
}

func (s *MLDSASigner) Verify(_ context.Context, message, sig []byte) error {
	if s == nil || s.pub == nil {
		return fmt.Errorf("%w: ml-dsa signer not initialized", domain.ErrSigner)
	}
	if len(sig) != s.scheme.SignatureSize() {
		return errors.New("invalid ml-dsa signature length")
	}
	if !s.scheme.Verify(s.pub, message, sig, nil) {
		return errors.New("signature verification failed")
	}
	return nil
}

func (s *MLDSASigner) PublicKey() []byte {
	if s == nil {
		return nil
	}
	out := make([]byte, len(s.pubRaw))
	copy(out, s.pubRaw)
	return out
}
