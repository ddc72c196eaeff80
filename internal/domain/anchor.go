package domain

import (
	"context"
	"encoding/json"
	"time"
)

type ProofStatus string

const (
	ProofStatusNone      ProofStatus = ""
	ProofStatusPending   ProofStatus = "pending"
	ProofStatusConfirmed ProofStatus = "confirmed"
)

// Proof binds an artifact digest to a public, tamper-evident log. A pending
// proof records an acknowledged submission whose confirmation is not final;
// the distinction survives serialization (see EncodeProof).
type Proof struct {
	Provider    string
	Status      ProofStatus
	DigestHex   string
	Attestation []byte
	SubmittedAt time.Time
}

func (p Proof) Pending() bool {
	return p.Status == ProofStatusPending
}

// AnchorClient submits digests to an external timestamp anchor.
// Implementations must not fail core flows on network/provider errors:
// Submit returns ErrAnchor-wrapped errors that callers treat as best-effort.
type AnchorClient interface {
	Submit(ctx context.Context, recordID int64, digest []byte) (Proof, error)
	// Poll re-queries the provider to upgrade a pending proof. It returns the
	// input proof unchanged when confirmation is still outstanding.
	Poll(ctx context.Context, recordID int64, proof Proof) (Proof, error)
}

const (
	AnchorStatusSubmitted = "submitted"
	AnchorStatusConfirmed = "confirmed"
	AnchorStatusFailed    = "failed"
	AnchorStatusSkipped   = "skipped"
)

const (
	AnchorErrorNetwork       = "NETWORK"
	AnchorErrorRateLimit     = "RATE_LIMIT"
	AnchorErrorBadConfig     = "BAD_CONFIG"
	AnchorErrorProviderError = "PROVIDER_ERROR"
	AnchorErrorProvider5xx   = "PROVIDER_5XX"
	AnchorErrorPersistence   = "PERSISTENCE"
	AnchorErrorTimeout       = "TIMEOUT"
)

// AnchorAttempt is the persisted trace of one submission to one provider,
// successful or not.
type AnchorAttempt struct {
	RecordID  int64
	Provider  string
	Status    string
	ErrorCode string
	DigestHex string

	ProviderReceiptJSON      json.RawMessage
	ProviderReceiptTruncated bool
	ProviderReceiptSizeBytes int

	CreatedAt time.Time
}

type AnchorAttemptRepository interface {
	Append(ctx context.Context, attempt AnchorAttempt) error
	ListByRecord(ctx context.Context, recordID int64) ([]AnchorAttempt, error)
}
