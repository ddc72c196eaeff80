package signer

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"custodia/internal/domain"
)

const AlgorithmRSA = "rsa-pkcs1v15-sha256"

// RSASigner is the classical variant: SHA-256 digest then PKCS#1 v1.5 with
// deterministic padding. Keys are PEM-encoded (PKCS#1 or PKCS#8 private,
// PKIX public).
type RSASigner struct {
	priv   *rsa.PrivateKey
	pub    *rsa.PublicKey
	pubPEM []byte
}

func NewRSASigner(handle domain.KeyHandle) (*RSASigner, error) {
	if len(handle.Private) == 0 {
		return nil, errors.New("rsa private key material is required")
	}
	priv, err := parseRSAPrivateKey(handle.Private)
	if err != nil {
		return nil, fmt.Errorf("%w: parse rsa private key: %w", domain.ErrSigner, err)
	}
	pub := &priv.PublicKey
	if len(handle.Public) > 0 {
		parsed, err := parseRSAPublicKey(handle.Public)
		if err != nil {
			return nil, fmt.Errorf("%w: parse rsa public key: %w", domain.ErrSigner, err)
		}
		pub = parsed
	}
	pubPEM, err := encodeRSAPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: encode rsa public key: %w", domain.ErrSigner, err)
	}
	return &RSASigner{priv: priv, pub: pub, pubPEM: pubPEM}, nil
}

func (s *RSASigner) Algorithm() string {
	return AlgorithmRSA
}

func (s *RSASigner) Sign(_ context.Context, message []byte) ([]byte, error) {
	if s == nil || s.priv == nil {
		return nil, fmt.Errorf("%w: rsa signer not initialized", domain.ErrSigner)
	}
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.priv, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSigner, err)
	}
	return sig, nil
}

func (s *RSASigner) Verify(_ context.Context, message, sig []byte) error {
	if s == nil || s.pub == nil {
		return fmt.Errorf("%w: rsa signer not initialized", domain.ErrSigner)
	}
	digest := sha256.Sum256(message)
	if err := rsa.VerifyPKCS1v15(s.pub, crypto.SHA256, digest[:], sig); err != nil {
		return errors.New("signature verification failed")
	}
	return nil
}

func (s *RSASigner) PublicKey() []byte {
	if s == nil {
		return nil
	}
	out := make([]byte, len(s.pubPEM))
	copy(out, s.pubPEM)
	return out
}

func parseRSAPrivateKey(material []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(material)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("PEM block does not contain an RSA private key")
	}
	return key, nil
}

func parseRSAPublicKey(material []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(material)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if key, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("PEM block does not contain an RSA public key")
	}
	return key, nil
}

func encodeRSAPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
