package anchor

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"custodia/internal/domain"
)

const maxProviderReceiptBytes = 256 * 1024

// Provider is one concrete anchor backend.
type Provider interface {
	ProviderName() string
	Submit(ctx context.Context, digest []byte) (domain.Proof, error)
	Poll(ctx context.Context, proof domain.Proof) (domain.Proof, error)
}

// Service fronts a provider with submission rate limiting, a per-call
// timeout, and a durable trace of every attempt. Anchoring is best-effort:
// failures surface as ErrAnchor and never carry a partial proof.
type Service struct {
	provider Provider
	attempts domain.AnchorAttemptRepository
	limiter  domain.RateLimiter
	limit    int
	window   time.Duration
	timeout  time.Duration
}

func NewService(provider Provider, attempts domain.AnchorAttemptRepository, timeout time.Duration) (*Service, error) {
	if provider == nil {
		return nil, errors.New("anchor provider is required")
	}
	if provider.ProviderName() == "" {
		return nil, errors.New("anchor provider name is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{provider: provider, attempts: attempts, timeout: timeout}, nil
}

// WithRateLimit throttles submissions through limiter. A limit of zero or
// less disables throttling.
func (s *Service) WithRateLimit(limiter domain.RateLimiter, limit int, window time.Duration) *Service {
	if s == nil {
		return nil
	}
	s.limiter = limiter
	s.limit = limit
	s.window = window
	return s
}

func (s *Service) Submit(ctx context.Context, recordID int64, digest []byte) (domain.Proof, error) {
	if s == nil || s.provider == nil {
		return domain.Proof{}, fmt.Errorf("%w: anchor service is nil", domain.ErrAnchor)
	}
	if len(digest) == 0 {
		return domain.Proof{}, fmt.Errorf("%w: digest is required", domain.ErrAnchor)
	}
	digestHex := hex.EncodeToString(digest)

	if s.limiter != nil && s.limit > 0 {
		decision, err := s.limiter.Allow(ctx, "anchor:"+s.provider.ProviderName(), s.limit, s.window)
		if err != nil {
			// Fail open: a broken limiter must not take anchoring down with it.
			log.Printf("anchor: rate limiter error, proceeding: %v", err)
		} else if !decision.Allowed {
			// Not a provider fault: the submission was never made.
			s.recordAttempt(ctx, recordID, digestHex, domain.AnchorStatusSkipped, domain.AnchorErrorRateLimit, nil)
			return domain.Proof{}, fmt.Errorf("%w: submission rate limited", domain.ErrAnchor)
		}
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	proof, err := s.provider.Submit(providerCtx, digest)
	if err != nil {
		code := errorToCode(providerCtx, err)
		s.recordAttempt(ctx, recordID, digestHex, domain.AnchorStatusFailed, code, nil)
		return domain.Proof{}, fmt.Errorf("%w: %w", domain.ErrAnchor, err)
	}

	if proof.Provider == "" {
		proof.Provider = s.provider.ProviderName()
	}
	if proof.DigestHex == "" {
		proof.DigestHex = digestHex
	}
	if proof.Status == domain.ProofStatusNone {
		proof.Status = domain.ProofStatusPending
	}
	if proof.SubmittedAt.IsZero() {
		proof.SubmittedAt = time.Now().UTC()
	}

	status := domain.AnchorStatusSubmitted
	if proof.Status == domain.ProofStatusConfirmed {
		status = domain.AnchorStatusConfirmed
	}
	s.recordAttempt(ctx, recordID, digestHex, status, "", proof.Attestation)
	return proof, nil
}

func (s *Service) Poll(ctx context.Context, recordID int64, proof domain.Proof) (domain.Proof, error) {
	if s == nil || s.provider == nil {
		return proof, fmt.Errorf("%w: anchor service is nil", domain.ErrAnchor)
	}
	if !proof.Pending() {
		return proof, nil
	}
	providerCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	upgraded, err := s.provider.Poll(providerCtx, proof)
	if err != nil {
		code := errorToCode(providerCtx, err)
		s.recordAttempt(ctx, recordID, proof.DigestHex, domain.AnchorStatusFailed, code, nil)
		return proof, fmt.Errorf("%w: %w", domain.ErrAnchor, err)
	}
	if upgraded.Status == domain.ProofStatusConfirmed {
		s.recordAttempt(ctx, recordID, upgraded.DigestHex, domain.AnchorStatusConfirmed, "", upgraded.Attestation)
	}
	return upgraded, nil
}

// recordAttempt appends the durable trace; persistence failure is logged,
// not propagated, so the trace never blocks the pipeline.
func (s *Service) recordAttempt(ctx context.Context, recordID int64, digestHex, status, errorCode string, attestation []byte) {
	if s.attempts == nil || recordID <= 0 {
		return
	}
	receiptJSON, truncated, size := truncateReceipt(attestation)
	attempt := domain.AnchorAttempt{
		RecordID:                 recordID,
		Provider:                 s.provider.ProviderName(),
		Status:                   status,
		ErrorCode:                errorCode,
		DigestHex:                digestHex,
		ProviderReceiptJSON:      receiptJSON,
		ProviderReceiptTruncated: truncated,
		ProviderReceiptSizeBytes: size,
	}
	if err := s.attempts.Append(ctx, attempt); err != nil {
		log.Printf("anchor: %s: record attempt for media %d: %v", domain.AnchorErrorPersistence, recordID, err)
	}
}

func errorToCode(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.AnchorErrorTimeout
	}
	var coded *ProviderError
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	return domain.AnchorErrorNetwork
}

// ProviderError lets providers attach a taxonomy code to a failure.
type ProviderError struct {
	Code string
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func truncateReceipt(attestation []byte) (json.RawMessage, bool, int) {
	size := len(attestation)
	if size == 0 {
		return nil, false, 0
	}
	truncated := false
	prefix := attestation
	if size > maxProviderReceiptBytes {
		prefix = attestation[:maxProviderReceiptBytes]
		truncated = true
	}
	encoded, err := json.Marshal(map[string]any{
		"attestation_base64": base64.StdEncoding.EncodeToString(prefix),
		"truncated":          truncated,
	})
	if err != nil {
		return nil, truncated, size
	}
	return encoded, truncated, size
}
