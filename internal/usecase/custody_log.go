package usecase

import (
	"context"
	"errors"

	"custodia/internal/domain"
)

// CustodyLog appends chain-of-custody events for a record. Emission is
// best-effort from the pipeline's point of view: callers log append failures
// rather than failing the record over them.
type CustodyLog struct {
	Repo domain.CustodyEventRepository
}

func NewCustodyLog(repo domain.CustodyEventRepository) *CustodyLog {
	return &CustodyLog{Repo: repo}
}

func (l *CustodyLog) emit(ctx context.Context, recordID int64, eventType domain.CustodyEventType, result domain.CustodyResult, errorCode string, payload map[string]any) error {
	if l == nil || l.Repo == nil {
		return nil
	}
	if recordID <= 0 {
		return errors.New("custody event requires a record id")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	_, err := l.Repo.Append(ctx, domain.CustodyEvent{
		RecordID:  recordID,
		EventType: eventType,
		Result:    result,
		ErrorCode: errorCode,
		Payload:   payload,
	})
	return err
}

func (l *CustodyLog) Registered(ctx context.Context, recordID int64, url, unsignedKey string) error {
	return l.emit(ctx, recordID, domain.CustodyEventRegistered, domain.CustodyResultSuccess, "", map[string]any{
		"url":          url,
		"unsigned_key": unsignedKey,
	})
}

func (l *CustodyLog) Fetched(ctx context.Context, recordID int64, key string, sizeBytes int) error {
	return l.emit(ctx, recordID, domain.CustodyEventFetched, domain.CustodyResultSuccess, "", map[string]any{
		"key":        key,
		"size_bytes": sizeBytes,
	})
}

func (l *CustodyLog) Signed(ctx context.Context, recordID int64, alg, digestHex string) error {
	return l.emit(ctx, recordID, domain.CustodyEventSigned, domain.CustodyResultSuccess, "", map[string]any{
		"alg":        alg,
		"digest_hex": digestHex,
	})
}

func (l *CustodyLog) Anchored(ctx context.Context, recordID int64, provider string, status domain.ProofStatus) error {
	return l.emit(ctx, recordID, domain.CustodyEventAnchored, domain.CustodyResultSuccess, "", map[string]any{
		"provider": provider,
		"status":   string(status),
	})
}

func (l *CustodyLog) AnchorFailed(ctx context.Context, recordID int64, errorCode string) error {
	return l.emit(ctx, recordID, domain.CustodyEventAnchored, domain.CustodyResultFailure, errorCode, nil)
}

func (l *CustodyLog) Published(ctx context.Context, recordID int64, signedKey, proofKey string) error {
	payload := map[string]any{
		"signed_key": signedKey,
	}
	if proofKey != "" {
		payload["proof_key"] = proofKey
	}
	return l.emit(ctx, recordID, domain.CustodyEventPublished, domain.CustodyResultSuccess, "", payload)
}

func (l *CustodyLog) Committed(ctx context.Context, recordID int64, alg string) error {
	return l.emit(ctx, recordID, domain.CustodyEventCommitted, domain.CustodyResultSuccess, "", map[string]any{
		"alg": alg,
	})
}

func (l *CustodyLog) ProofReconciled(ctx context.Context, recordID int64, status domain.ProofStatus) error {
	return l.emit(ctx, recordID, domain.CustodyEventProofReconciled, domain.CustodyResultSuccess, "", map[string]any{
		"status": string(status),
	})
}
