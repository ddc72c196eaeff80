package domain

import "time"

// MediaRecord is one artifact under provenance. The terminal fields
// (SignedKey, Signature, SignedAt) are all-or-nothing: either the record is
// pending and all three are absent, or it is signed and all three are set.
// Proof may be present with a pending status; that is a legitimate terminal
// state upgraded later by reconciliation.
type MediaRecord struct {
	ID           int64
	URL          string
	Title        string
	DownloadDate time.Time

	UnsignedKey string

	SignedKey    string
	Signature    []byte
	SignatureAlg string
	SignedAt     *time.Time

	Proof       []byte
	ProofStatus ProofStatus
}

func (r MediaRecord) Signed() bool {
	return r.SignedKey != "" && len(r.Signature) > 0 && r.SignedAt != nil
}

// PendingMedia is the slim projection the pipeline scans over.
type PendingMedia struct {
	ID          int64
	UnsignedKey string
}

// CommitSigned carries every terminal field for the single atomic ledger
// update that moves a record from pending to signed.
type CommitSigned struct {
	SignedKey    string
	Signature    []byte
	SignatureAlg string
	SignedAt     time.Time
	Proof        []byte
	ProofStatus  ProofStatus
}
