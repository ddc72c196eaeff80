package domain

import (
	"context"
	"time"
)

const CustodyChainVersion = "custody_chain_v0"

type CustodyEventType string

const (
	CustodyEventRegistered      CustodyEventType = "registered"
	CustodyEventFetched         CustodyEventType = "fetched"
	CustodyEventSigned          CustodyEventType = "signed"
	CustodyEventAnchored        CustodyEventType = "anchored"
	CustodyEventPublished       CustodyEventType = "published"
	CustodyEventCommitted       CustodyEventType = "committed"
	CustodyEventProofReconciled CustodyEventType = "proof_reconciled"
)

type CustodyResult string

const (
	CustodyResultSuccess CustodyResult = "success"
	CustodyResultFailure CustodyResult = "failure"
)

// CustodyEvent is one link in a per-record hash chain. Seq, PrevEventHash and
// EventHash are assigned by the repository on append.
type CustodyEvent struct {
	ID            string
	RecordID      int64
	Seq           int64
	EventType     CustodyEventType
	Payload       any
	PayloadHash   string
	Result        CustodyResult
	ErrorCode     string
	PrevEventHash string
	EventHash     string
	CreatedAt     time.Time
}

type CustodyEventRepository interface {
	Append(ctx context.Context, event CustodyEvent) (CustodyEvent, error)
	ListByRecord(ctx context.Context, recordID int64) ([]CustodyEvent, error)
}
