package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"custodia/internal/domain"
)

// ReconcileProofs upgrades pending anchor proofs on already-signed records.
// Signature fields are never touched; only the proof and its status move.
type ReconcileProofs struct {
	Ledger  domain.Ledger
	Store   domain.ObjectStore
	Anchor  domain.AnchorClient
	Custody *CustodyLog

	SignedBucket string
	RetryMax     time.Duration
	CallTimeout  time.Duration
}

type ReconcileSummary struct {
	Checked   int `json:"checked"`
	Confirmed int `json:"confirmed"`
	Failed    int `json:"failed"`
}

func (r *ReconcileProofs) Run(ctx context.Context) (ReconcileSummary, error) {
	if r == nil || r.Ledger == nil || r.Anchor == nil {
		return ReconcileSummary{}, errors.New("reconcile dependencies missing")
	}
	records, err := r.Ledger.ListPendingProofs(ctx)
	if err != nil {
		return ReconcileSummary{}, fmt.Errorf("list pending proofs: %w", err)
	}

	var summary ReconcileSummary
	for _, record := range records {
		summary.Checked++
		if err := r.reconcileOne(ctx, record); err != nil {
			log.Printf("reconcile: media %d: %v", record.ID, err)
			summary.Failed++
			continue
		}
		upgraded, err := r.Ledger.Get(ctx, record.ID)
		if err == nil && upgraded.ProofStatus == domain.ProofStatusConfirmed {
			summary.Confirmed++
		}
	}
	return summary, nil
}

func (r *ReconcileProofs) reconcileOne(ctx context.Context, record domain.MediaRecord) error {
	proof, err := domain.DecodeProof(record.Proof)
	if err != nil {
		return fmt.Errorf("decode stored proof: %w", err)
	}
	upgraded, err := r.Anchor.Poll(ctx, record.ID, proof)
	if err != nil {
		return fmt.Errorf("poll anchor: %w", err)
	}
	if upgraded.Status != domain.ProofStatusConfirmed {
		return nil
	}

	encoded, err := domain.EncodeProof(upgraded)
	if err != nil {
		return fmt.Errorf("encode upgraded proof: %w", err)
	}
	if r.Store != nil && r.SignedBucket != "" {
		proofKey := proofKeyFor(record.ID)
		err = retryTransient(ctx, r.RetryMax, func() error {
			callCtx, cancel := context.WithTimeout(ctx, r.callTimeout())
			defer cancel()
			return r.Store.Put(callCtx, r.SignedBucket, proofKey, encoded)
		})
		if err != nil {
			return fmt.Errorf("publish upgraded proof: %w", err)
		}
	}
	if err := r.Ledger.UpdateProof(ctx, record.ID, encoded, domain.ProofStatusConfirmed); err != nil {
		return fmt.Errorf("update proof: %w", err)
	}
	if err := r.Custody.ProofReconciled(ctx, record.ID, domain.ProofStatusConfirmed); err != nil {
		log.Printf("reconcile: custody event for media %d: %v", record.ID, err)
	}
	return nil
}

func (r *ReconcileProofs) callTimeout() time.Duration {
	if r.CallTimeout > 0 {
		return r.CallTimeout
	}
	return 30 * time.Second
}
