package domain

import (
	"context"
	"time"
)

// Ledger is the single source of truth for which records still need
// processing. Every mutation must be committed durably before the call
// returns success.
type Ledger interface {
	// Register inserts a new pending record and returns its id.
	Register(ctx context.Context, url, title, unsignedKey string) (int64, error)

	// ListPending returns a snapshot of every record whose terminal fields
	// are absent, in stable id order.
	ListPending(ctx context.Context) ([]PendingMedia, error)

	// Claim takes a time-bounded exclusive lease on one record. It reports
	// false when another live token holds the lease; expired leases and
	// re-claims by the same token succeed.
	Claim(ctx context.Context, id int64, token string, ttl time.Duration) (bool, error)

	// ReleaseClaim drops the lease if token still holds it.
	ReleaseClaim(ctx context.Context, id int64, token string) error

	// CommitSigned atomically populates all terminal fields of one pending
	// record. Returns ErrNotFound if the record is gone and ErrAlreadySigned
	// if the terminal fields are already set.
	CommitSigned(ctx context.Context, id int64, commit CommitSigned) error

	// UpdateProof upgrades the stored proof of an already-signed record.
	// It never touches the signature fields.
	UpdateProof(ctx context.Context, id int64, proof []byte, status ProofStatus) error

	Get(ctx context.Context, id int64) (MediaRecord, error)

	// ListPendingProofs returns signed records whose anchor proof is still
	// awaiting confirmation.
	ListPendingProofs(ctx context.Context) ([]MediaRecord, error)
}
