package domain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const proofEnvelopeVersion = "custodia_proof_v0"

// proofEnvelope is the persisted form of a proof. The status field travels
// with the attestation bytes so a pending submission stays distinguishable
// from a confirmed one after storage.
type proofEnvelope struct {
	V                 string `json:"v"`
	Provider          string `json:"provider"`
	Status            string `json:"status"`
	DigestHex         string `json:"digest_hex"`
	SubmittedAt       string `json:"submitted_at"`
	AttestationBase64 string `json:"attestation_base64,omitempty"`
}

func EncodeProof(proof Proof) ([]byte, error) {
	if proof.Provider == "" {
		return nil, errors.New("proof provider is required")
	}
	if proof.Status != ProofStatusPending && proof.Status != ProofStatusConfirmed {
		return nil, fmt.Errorf("proof status must be pending or confirmed, got %q", proof.Status)
	}
	if proof.DigestHex == "" {
		return nil, errors.New("proof digest is required")
	}
	env := proofEnvelope{
		V:           proofEnvelopeVersion,
		Provider:    proof.Provider,
		Status:      string(proof.Status),
		DigestHex:   proof.DigestHex,
		SubmittedAt: proof.SubmittedAt.UTC().Format(time.RFC3339Nano),
	}
	if len(proof.Attestation) > 0 {
		env.AttestationBase64 = base64.StdEncoding.EncodeToString(proof.Attestation)
	}
	return json.Marshal(env)
}

func DecodeProof(raw []byte) (Proof, error) {
	if len(raw) == 0 {
		return Proof{}, errors.New("proof bytes are empty")
	}
	var env proofEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Proof{}, fmt.Errorf("decode proof envelope: %w", err)
	}
	if env.V != proofEnvelopeVersion {
		return Proof{}, fmt.Errorf("unsupported proof envelope version: %q", env.V)
	}
	proof := Proof{
		Provider:  env.Provider,
		Status:    ProofStatus(env.Status),
		DigestHex: env.DigestHex,
	}
	if env.SubmittedAt != "" {
		submittedAt, err := time.Parse(time.RFC3339Nano, env.SubmittedAt)
		if err != nil {
			return Proof{}, fmt.Errorf("decode submitted_at: %w", err)
		}
		proof.SubmittedAt = submittedAt
	}
	if env.AttestationBase64 != "" {
		attestation, err := base64.StdEncoding.DecodeString(env.AttestationBase64)
		if err != nil {
			return Proof{}, fmt.Errorf("decode attestation: %w", err)
		}
		proof.Attestation = attestation
	}
	return proof, nil
}
