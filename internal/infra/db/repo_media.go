package db

import (
	"context"
	"errors"
	"time"

	"custodia/internal/domain"

	"gorm.io/gorm"
)

// MediaRepository is the durable ledger of media records. Every mutation
// commits before returning success; the claim and commit paths are
// conditional updates so concurrent runs cannot double-sign a record.
type MediaRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{db: db, now: time.Now}
}

func (r *MediaRepository) WithClock(now func() time.Time) *MediaRepository {
	if r == nil {
		return nil
	}
	if now != nil {
		r.now = now
	}
	return r
}

func (r *MediaRepository) Register(ctx context.Context, url, title, unsignedKey string) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	if url == "" {
		return 0, errors.New("url is required")
	}
	if unsignedKey == "" {
		return 0, errors.New("unsigned key is required")
	}
	now := r.now().UTC()
	model := MediaModel{
		URL:          url,
		Title:        stringPtrIfNotEmpty(title),
		DownloadDate: now,
		UnsignedKey:  unsignedKey,
		CreatedAt:    now,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return 0, err
	}
	return model.ID, nil
}

func (r *MediaRepository) ListPending(ctx context.Context) ([]domain.PendingMedia, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []MediaModel
	if err := r.db.WithContext(ctx).
		Select("id", "unsigned_key").
		Where("signed_key IS NULL").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.PendingMedia, 0, len(models))
	for _, model := range models {
		out = append(out, domain.PendingMedia{ID: model.ID, UnsignedKey: model.UnsignedKey})
	}
	return out, nil
}

func (r *MediaRepository) Claim(ctx context.Context, id int64, token string, ttl time.Duration) (bool, error) {
	if r.db == nil {
		return false, errDBUnavailable
	}
	if token == "" {
		return false, errors.New("claim token is required")
	}
	if ttl <= 0 {
		return false, errors.New("claim ttl must be positive")
	}
	now := r.now().UTC()
	res := r.db.WithContext(ctx).
		Model(&MediaModel{}).
		Where(
			"id = ? AND signed_key IS NULL AND (claim_token IS NULL OR claim_expires_at < ? OR claim_token = ?)",
			id, now, token,
		).
		Updates(map[string]any{
			"claim_token":      token,
			"claim_expires_at": now.Add(ttl),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *MediaRepository) ReleaseClaim(ctx context.Context, id int64, token string) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if token == "" {
		return errors.New("claim token is required")
	}
	return r.db.WithContext(ctx).
		Model(&MediaModel{}).
		Where("id = ? AND claim_token = ?", id, token).
		Updates(map[string]any{
			"claim_token":      nil,
			"claim_expires_at": nil,
		}).Error
}

func (r *MediaRepository) CommitSigned(ctx context.Context, id int64, commit domain.CommitSigned) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if commit.SignedKey == "" {
		return errors.New("signed key is required")
	}
	if len(commit.Signature) == 0 {
		return errors.New("signature is required")
	}
	if commit.SignedAt.IsZero() {
		return errors.New("signed_at is required")
	}

	updates := map[string]any{
		"signed_key":       commit.SignedKey,
		"signature":        copyBytes(commit.Signature),
		"signature_alg":    stringPtrIfNotEmpty(commit.SignatureAlg),
		"signed_at":        commit.SignedAt.UTC(),
		"proof":            copyBytes(commit.Proof),
		"proof_status":     stringPtrIfNotEmpty(string(commit.ProofStatus)),
		"claim_token":      nil,
		"claim_expires_at": nil,
	}

	res := r.db.WithContext(ctx).
		Model(&MediaModel{}).
		Where("id = ? AND signed_key IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var model MediaModel
	err := r.db.WithContext(ctx).Select("id", "signed_key").First(&model, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		return err
	}
	return domain.ErrAlreadySigned
}

func (r *MediaRepository) UpdateProof(ctx context.Context, id int64, proof []byte, status domain.ProofStatus) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if len(proof) == 0 {
		return errors.New("proof is required")
	}
	res := r.db.WithContext(ctx).
		Model(&MediaModel{}).
		Where("id = ? AND signed_key IS NOT NULL", id).
		Updates(map[string]any{
			"proof":        copyBytes(proof),
			"proof_status": stringPtrIfNotEmpty(string(status)),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MediaRepository) Get(ctx context.Context, id int64) (domain.MediaRecord, error) {
	if r.db == nil {
		return domain.MediaRecord{}, errDBUnavailable
	}
	var model MediaModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.MediaRecord{}, domain.ErrNotFound
		}
		return domain.MediaRecord{}, err
	}
	return mediaFromModel(model), nil
}

func (r *MediaRepository) ListPendingProofs(ctx context.Context) ([]domain.MediaRecord, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []MediaModel
	if err := r.db.WithContext(ctx).
		Where("signed_key IS NOT NULL AND proof_status = ?", string(domain.ProofStatusPending)).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.MediaRecord, 0, len(models))
	for _, model := range models {
		out = append(out, mediaFromModel(model))
	}
	return out, nil
}

func mediaFromModel(model MediaModel) domain.MediaRecord {
	record := domain.MediaRecord{
		ID:           model.ID,
		URL:          model.URL,
		Title:        stringValue(model.Title),
		DownloadDate: model.DownloadDate.UTC(),
		UnsignedKey:  model.UnsignedKey,
		SignedKey:    stringValue(model.SignedKey),
		Signature:    copyBytes(model.Signature),
		SignatureAlg: stringValue(model.SignatureAlg),
		Proof:        copyBytes(model.Proof),
		ProofStatus:  domain.ProofStatus(stringValue(model.ProofStatus)),
	}
	if model.SignedAt != nil {
		signedAt := model.SignedAt.UTC()
		record.SignedAt = &signedAt
	}
	return record
}
