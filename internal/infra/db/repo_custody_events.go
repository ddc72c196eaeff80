package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"custodia/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustodyEventRepository appends hash-chained custody events. The chain is
// per record: each event hashes over its predecessor's hash, so any
// retroactive edit of the stored history breaks verification.
type CustodyEventRepository struct {
	db *gorm.DB
}

func NewCustodyEventRepository(db *gorm.DB) *CustodyEventRepository {
	return &CustodyEventRepository{db: db}
}

func (r *CustodyEventRepository) Append(ctx context.Context, event domain.CustodyEvent) (domain.CustodyEvent, error) {
	if r.db == nil {
		return domain.CustodyEvent{}, errDBUnavailable
	}
	if event.EventType == "" {
		return domain.CustodyEvent{}, errors.New("event_type is required")
	}
	if event.RecordID <= 0 {
		return domain.CustodyEvent{}, errors.New("record_id is required")
	}
	if event.Result == "" {
		return domain.CustodyEvent{}, errors.New("result is required")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}
	event.CreatedAt = event.CreatedAt.Truncate(time.Microsecond)
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}

	payloadJSON, err := json.Marshal(event.Payload)
	if err != nil {
		return domain.CustodyEvent{}, err
	}
	sum := sha256.Sum256(payloadJSON)
	event.PayloadHash = hex.EncodeToString(sum[:])

	var out domain.CustodyEvent
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextCustodySeq(ctx, tx, event.RecordID)
		if err != nil {
			return err
		}
		event.Seq = seq
		event.PrevEventHash = prevHash

		eventHash, err := ComputeCustodyEventHash(event)
		if err != nil {
			return err
		}
		event.EventHash = eventHash

		model := CustodyEventModel{
			ID:            event.ID,
			RecordID:      event.RecordID,
			Seq:           event.Seq,
			EventType:     string(event.EventType),
			PayloadJSON:   payloadJSON,
			PayloadHash:   event.PayloadHash,
			Result:        string(event.Result),
			ErrorCode:     stringPtrIfNotEmpty(event.ErrorCode),
			PrevEventHash: event.PrevEventHash,
			EventHash:     event.EventHash,
			CreatedAt:     event.CreatedAt,
		}
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		out = event
		return nil
	})
	if err != nil {
		return domain.CustodyEvent{}, err
	}
	return out, nil
}

func (r *CustodyEventRepository) ListByRecord(ctx context.Context, recordID int64) ([]domain.CustodyEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []CustodyEventModel
	if err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.CustodyEvent, 0, len(models))
	for _, model := range models {
		out = append(out, custodyEventFromModel(model))
	}
	return out, nil
}

func custodyEventFromModel(model CustodyEventModel) domain.CustodyEvent {
	return domain.CustodyEvent{
		ID:            model.ID,
		RecordID:      model.RecordID,
		Seq:           model.Seq,
		EventType:     domain.CustodyEventType(model.EventType),
		Payload:       json.RawMessage(copyBytes(model.PayloadJSON)),
		PayloadHash:   model.PayloadHash,
		Result:        domain.CustodyResult(model.Result),
		ErrorCode:     stringValue(model.ErrorCode),
		PrevEventHash: model.PrevEventHash,
		EventHash:     model.EventHash,
		CreatedAt:     model.CreatedAt.UTC(),
	}
}

// custodyChainLink is the fixed-shape payload hashed into the chain.
// json.Marshal of a struct has deterministic field order, which is all the
// chain needs.
type custodyChainLink struct {
	V             string `json:"v"`
	RecordID      int64  `json:"record_id"`
	Seq           int64  `json:"seq"`
	EventType     string `json:"event_type"`
	PayloadHash   string `json:"payload_hash"`
	PrevEventHash string `json:"prev_event_hash"`
	CreatedAt     string `json:"created_at"`
}

func ComputeCustodyEventHash(event domain.CustodyEvent) (string, error) {
	if event.PayloadHash == "" {
		return "", errors.New("payload_hash is required")
	}
	if event.PrevEventHash == "" {
		return "", errors.New("prev_event_hash is required")
	}
	link := custodyChainLink{
		V:             domain.CustodyChainVersion,
		RecordID:      event.RecordID,
		Seq:           event.Seq,
		EventType:     string(event.EventType),
		PayloadHash:   event.PayloadHash,
		PrevEventHash: event.PrevEventHash,
		CreatedAt:     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	encoded, err := json.Marshal(link)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

func nextCustodySeq(ctx context.Context, tx *gorm.DB, recordID int64) (int64, string, error) {
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO media_custody_seq (record_id, seq) VALUES (?, 0) ON CONFLICT (record_id) DO NOTHING",
		recordID,
	).Error; err != nil {
		return 0, "", err
	}

	var currentSeq int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT seq FROM media_custody_seq WHERE record_id = ? FOR UPDATE",
		recordID,
	).Scan(&currentSeq).Error; err != nil {
		return 0, "", err
	}
	nextSeq := currentSeq + 1
	if err := tx.WithContext(ctx).Exec(
		"UPDATE media_custody_seq SET seq = ? WHERE record_id = ?",
		nextSeq, recordID,
	).Error; err != nil {
		return 0, "", err
	}

	prevHash := ZeroCustodyHash()
	if currentSeq > 0 {
		var prev CustodyEventModel
		if err := tx.WithContext(ctx).
			Where("record_id = ? AND seq = ?", recordID, currentSeq).
			Take(&prev).Error; err != nil {
			return 0, "", err
		}
		prevHash = prev.EventHash
	}
	if prevHash == "" {
		return 0, "", fmt.Errorf("missing previous event hash for record %d", recordID)
	}
	return nextSeq, prevHash, nil
}

func ZeroCustodyHash() string {
	return "0000000000000000000000000000000000000000000000000000000000000000"
}

// VerifyCustodyChain recomputes the hash chain for one record's events (in
// seq order) and reports the first broken link. The stored payload is hashed
// again and checked against the chained payload hash, so editing payload_json
// in place breaks verification just like editing any linked field.
func VerifyCustodyChain(events []domain.CustodyEvent) error {
	prev := ZeroCustodyHash()
	for _, event := range events {
		if event.PrevEventHash != prev {
			return errors.New("custody chain broken: prev hash mismatch")
		}
		if payload := rawPayload(event.Payload); len(payload) > 0 {
			sum := sha256.Sum256(payload)
			if hex.EncodeToString(sum[:]) != event.PayloadHash {
				return errors.New("custody chain broken: payload hash mismatch")
			}
		}
		expected, err := ComputeCustodyEventHash(event)
		if err != nil {
			return err
		}
		if expected != event.EventHash {
			return errors.New("custody chain broken: event hash mismatch")
		}
		prev = event.EventHash
	}
	return nil
}

// rawPayload returns the stored payload bytes for events read back from the
// database. Payloads not yet serialized are covered by Append itself.
func rawPayload(payload any) []byte {
	switch p := payload.(type) {
	case json.RawMessage:
		return p
	case []byte:
		return p
	}
	return nil
}
