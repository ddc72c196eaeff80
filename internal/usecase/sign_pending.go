package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"custodia/internal/domain"

	"github.com/google/uuid"
)

// SignPending drives every pending record through the provenance pipeline:
// claim, fetch, sign, anchor, publish, commit. Records are independent; a
// failure on one never aborts the batch.
type SignPending struct {
	Ledger  domain.Ledger
	Store   domain.ObjectStore
	Signer  domain.Signer
	Anchor  domain.AnchorClient
	Custody *CustodyLog

	UnsignedBucket string
	SignedBucket   string
	Workers        int
	ClaimTTL       time.Duration
	RetryMax       time.Duration
	CallTimeout    time.Duration

	now func() time.Time
}

// WithClock overrides the pipeline clock. Used in tests.
func (p *SignPending) WithClock(now func() time.Time) *SignPending {
	if p == nil || now == nil {
		return p
	}
	p.now = now
	return p
}

// Summary reports one batch run. Skipped counts records another run claimed
// or committed first; those are expected under concurrency, not errors.
type Summary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

func (p *SignPending) Run(ctx context.Context) (Summary, error) {
	if p == nil || p.Ledger == nil || p.Store == nil || p.Signer == nil {
		return Summary{}, errors.New("sign pending dependencies missing")
	}
	if p.UnsignedBucket == "" || p.SignedBucket == "" {
		return Summary{}, errors.New("both buckets are required")
	}

	pending, err := p.Ledger.ListPending(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("list pending: %w", err)
	}
	if len(pending) == 0 {
		return Summary{}, nil
	}

	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(pending) {
		workers = len(pending)
	}

	jobs := make(chan domain.PendingMedia)
	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range jobs {
				outcome := p.processOne(ctx, record)
				mu.Lock()
				switch outcome {
				case outcomeProcessed:
					summary.Processed++
				case outcomeSkipped:
					summary.Skipped++
				default:
					summary.Failed++
				}
				mu.Unlock()
			}
		}()
	}
	for _, record := range pending {
		select {
		case jobs <- record:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return summary, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()
	return summary, nil
}

type outcome int

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (p *SignPending) processOne(ctx context.Context, record domain.PendingMedia) outcome {
	token := uuid.NewString()
	claimed, err := p.Ledger.Claim(ctx, record.ID, token, p.claimTTL())
	if err != nil {
		log.Printf("pipeline: claim media %d: %v", record.ID, err)
		return outcomeFailed
	}
	if !claimed {
		return outcomeSkipped
	}
	defer func() {
		if err := p.Ledger.ReleaseClaim(ctx, record.ID, token); err != nil {
			log.Printf("pipeline: release claim on media %d: %v", record.ID, err)
		}
	}()

	var artifact []byte
	err = retryTransient(ctx, p.RetryMax, func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout())
		defer cancel()
		var getErr error
		artifact, getErr = p.Store.Get(callCtx, p.UnsignedBucket, record.UnsignedKey)
		return getErr
	})
	if err != nil {
		log.Printf("pipeline: fetch %s for media %d: %v", record.UnsignedKey, record.ID, err)
		return outcomeFailed
	}
	if err := p.Custody.Fetched(ctx, record.ID, record.UnsignedKey, len(artifact)); err != nil {
		log.Printf("pipeline: custody event for media %d: %v", record.ID, err)
	}

	digest := sha256.Sum256(artifact)
	digestHex := hex.EncodeToString(digest[:])

	signature, err := p.Signer.Sign(ctx, artifact)
	if err != nil {
		log.Printf("pipeline: sign media %d: %v", record.ID, err)
		return outcomeFailed
	}
	if err := p.Custody.Signed(ctx, record.ID, p.Signer.Algorithm(), digestHex); err != nil {
		log.Printf("pipeline: custody event for media %d: %v", record.ID, err)
	}

	// Anchoring is best-effort. A failed or rate-limited submission leaves
	// the record without a proof; it still commits as signed.
	var (
		proofBytes  []byte
		proofStatus domain.ProofStatus
		proofKey    string
	)
	if p.Anchor != nil {
		proof, anchorErr := p.Anchor.Submit(ctx, record.ID, digest[:])
		if anchorErr != nil {
			log.Printf("pipeline: anchor media %d: %v", record.ID, anchorErr)
			if err := p.Custody.AnchorFailed(ctx, record.ID, domain.AnchorErrorNetwork); err != nil {
				log.Printf("pipeline: custody event for media %d: %v", record.ID, err)
			}
		} else {
			encoded, encErr := domain.EncodeProof(proof)
			if encErr != nil {
				log.Printf("pipeline: encode proof for media %d: %v", record.ID, encErr)
			} else {
				proofBytes = encoded
				proofStatus = proof.Status
				if err := p.Custody.Anchored(ctx, record.ID, proof.Provider, proof.Status); err != nil {
					log.Printf("pipeline: custody event for media %d: %v", record.ID, err)
				}
			}
		}
	}

	signedKey := signedKeyFor(record.UnsignedKey)
	err = retryTransient(ctx, p.RetryMax, func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout())
		defer cancel()
		return p.Store.Put(callCtx, p.SignedBucket, signedKey, artifact)
	})
	if err != nil {
		log.Printf("pipeline: publish %s for media %d: %v", signedKey, record.ID, err)
		return outcomeFailed
	}
	if len(proofBytes) > 0 {
		proofKey = proofKeyFor(record.ID)
		err = retryTransient(ctx, p.RetryMax, func() error {
			callCtx, cancel := context.WithTimeout(ctx, p.callTimeout())
			defer cancel()
			return p.Store.Put(callCtx, p.SignedBucket, proofKey, proofBytes)
		})
		if err != nil {
			// The ledger copy of the proof still commits below; the object
			// store copy catches up on the next reconcile run.
			log.Printf("pipeline: publish %s for media %d: %v", proofKey, record.ID, err)
			proofKey = ""
		}
	}
	if err := p.Custody.Published(ctx, record.ID, signedKey, proofKey); err != nil {
		log.Printf("pipeline: custody event for media %d: %v", record.ID, err)
	}

	commit := domain.CommitSigned{
		SignedKey:    signedKey,
		Signature:    signature,
		SignatureAlg: p.Signer.Algorithm(),
		SignedAt:     p.clock().UTC(),
		Proof:        proofBytes,
		ProofStatus:  proofStatus,
	}
	if err := p.Ledger.CommitSigned(ctx, record.ID, commit); err != nil {
		if errors.Is(err, domain.ErrAlreadySigned) {
			// Another run committed first. The publishes above were
			// overwrite-safe, so this record is simply done.
			return outcomeSkipped
		}
		log.Printf("pipeline: commit media %d: %v", record.ID, err)
		return outcomeFailed
	}
	if err := p.Custody.Committed(ctx, record.ID, p.Signer.Algorithm()); err != nil {
		log.Printf("pipeline: custody event for media %d: %v", record.ID, err)
	}
	return outcomeProcessed
}

func (p *SignPending) claimTTL() time.Duration {
	if p.ClaimTTL > 0 {
		return p.ClaimTTL
	}
	return 5 * time.Minute
}

// callTimeout bounds every single store call, so a hung Get or Put cannot
// pin a worker for the life of the process. Retries happen above it.
func (p *SignPending) callTimeout() time.Duration {
	if p.CallTimeout > 0 {
		return p.CallTimeout
	}
	return 30 * time.Second
}

func (p *SignPending) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}
