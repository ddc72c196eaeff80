package db

import "time"

type MediaModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	URL          string `gorm:"not null"`
	Title        *string
	DownloadDate time.Time `gorm:"not null"`
	UnsignedKey  string    `gorm:"column:unsigned_key;uniqueIndex;not null"`

	SignedKey    *string `gorm:"column:signed_key"`
	Signature    []byte  `gorm:"type:bytea"`
	SignatureAlg *string
	SignedAt     *time.Time

	Proof       []byte `gorm:"type:bytea"`
	ProofStatus *string

	ClaimToken     *string `gorm:"index"`
	ClaimExpiresAt *time.Time

	CreatedAt time.Time `gorm:"not null"`
}

func (MediaModel) TableName() string {
	return "media"
}

type CustodyEventModel struct {
	ID            string `gorm:"type:uuid;primaryKey"`
	RecordID      int64  `gorm:"index;not null"`
	Seq           int64  `gorm:"not null"`
	EventType     string `gorm:"column:event_type;not null"`
	PayloadJSON   []byte `gorm:"type:jsonb;not null"`
	PayloadHash   string `gorm:"not null"`
	Result        string `gorm:"not null"`
	ErrorCode     *string
	PrevEventHash string    `gorm:"not null"`
	EventHash     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"column:created_at;not null"`
}

func (CustodyEventModel) TableName() string {
	return "custody_events"
}

// CustodySeqModel backs the per-record FOR UPDATE sequence used to serialize
// chain appends.
type CustodySeqModel struct {
	RecordID int64 `gorm:"primaryKey"`
	Seq      int64 `gorm:"not null"`
}

func (CustodySeqModel) TableName() string {
	return "media_custody_seq"
}

type AnchorAttemptModel struct {
	ID        int64  `gorm:"primaryKey"`
	RecordID  int64  `gorm:"index;not null"`
	Provider  string `gorm:"not null"`
	Status    string `gorm:"not null"`
	ErrorCode *string
	DigestHex string `gorm:"index;not null"`

	ProviderReceiptJSON      []byte `gorm:"type:jsonb"`
	ProviderReceiptTruncated bool   `gorm:"not null"`
	ProviderReceiptSizeBytes int    `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null"`
}

func (AnchorAttemptModel) TableName() string {
	return "anchor_attempts"
}
