package db

import (
	"context"
	"errors"
	"time"

	"custodia/internal/domain"

	"gorm.io/gorm"
)

type AnchorAttemptRepository struct {
	db *gorm.DB
}

func NewAnchorAttemptRepository(db *gorm.DB) *AnchorAttemptRepository {
	return &AnchorAttemptRepository{db: db}
}

func (r *AnchorAttemptRepository) Append(ctx context.Context, attempt domain.AnchorAttempt) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if attempt.RecordID <= 0 {
		return errors.New("record_id is required")
	}
	if attempt.Provider == "" {
		return errors.New("provider is required")
	}
	if attempt.Status == "" {
		return errors.New("status is required")
	}
	if attempt.DigestHex == "" {
		return errors.New("digest_hex is required")
	}

	model := AnchorAttemptModel{
		RecordID:                 attempt.RecordID,
		Provider:                 attempt.Provider,
		Status:                   attempt.Status,
		ErrorCode:                stringPtrIfNotEmpty(attempt.ErrorCode),
		DigestHex:                attempt.DigestHex,
		ProviderReceiptJSON:      copyBytes(attempt.ProviderReceiptJSON),
		ProviderReceiptTruncated: attempt.ProviderReceiptTruncated,
		ProviderReceiptSizeBytes: attempt.ProviderReceiptSizeBytes,
		CreatedAt:                time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *AnchorAttemptRepository) ListByRecord(ctx context.Context, recordID int64) ([]domain.AnchorAttempt, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	if recordID <= 0 {
		return nil, errors.New("record_id is required")
	}
	var models []AnchorAttemptModel
	if err := r.db.WithContext(ctx).
		Where("record_id = ?", recordID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AnchorAttempt, 0, len(models))
	for _, model := range models {
		out = append(out, anchorAttemptFromModel(model))
	}
	return out, nil
}

func anchorAttemptFromModel(model AnchorAttemptModel) domain.AnchorAttempt {
	return domain.AnchorAttempt{
		RecordID:                 model.RecordID,
		Provider:                 model.Provider,
		Status:                   model.Status,
		ErrorCode:                stringValue(model.ErrorCode),
		DigestHex:                model.DigestHex,
		ProviderReceiptJSON:      copyBytes(model.ProviderReceiptJSON),
		ProviderReceiptTruncated: model.ProviderReceiptTruncated,
		ProviderReceiptSizeBytes: model.ProviderReceiptSizeBytes,
		CreatedAt:                model.CreatedAt.UTC(),
	}
}
