//go:build integration
// +build integration

package db

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"custodia/internal/domain"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("POSTGRES_DSN_TEST"))
	if dsn == "" {
		t.Skip("POSTGRES_DSN_TEST not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&MediaModel{}, &CustodyEventModel{}, &CustodySeqModel{}, &AnchorAttemptModel{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func resetDB(t *testing.T, db *gorm.DB) {
	t.Helper()
	if err := db.Exec(`
		TRUNCATE media,
			custody_events,
			media_custody_seq,
			anchor_attempts
		RESTART IDENTITY CASCADE`).Error; err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func registerTestRecord(t *testing.T, repo *MediaRepository, unsignedKey string) int64 {
	t.Helper()
	id, err := repo.Register(context.Background(), "https://example.test/"+unsignedKey, "title", unsignedKey)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return id
}

func TestMediaRepository_RegisterAndListPending(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewMediaRepository(db)

	idA := registerTestRecord(t, repo, "videos/a.mp4")
	idB := registerTestRecord(t, repo, "videos/b.mp4")

	pending, err := repo.ListPending(context.Background())
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != idA || pending[1].ID != idB {
		t.Fatalf("unexpected pending set %+v", pending)
	}
}

func TestMediaRepository_ClaimLifecycle(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewMediaRepository(db)
	id := registerTestRecord(t, repo, "videos/a.mp4")

	tokenA := uuid.NewString()
	tokenB := uuid.NewString()

	claimed, err := repo.Claim(context.Background(), id, tokenA, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("first claim: claimed=%v err=%v", claimed, err)
	}
	claimed, err = repo.Claim(context.Background(), id, tokenB, time.Minute)
	if err != nil {
		t.Fatalf("contending claim: %v", err)
	}
	if claimed {
		t.Fatal("live claim must not be stealable by another token")
	}
	claimed, err = repo.Claim(context.Background(), id, tokenA, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("re-claim by holder: claimed=%v err=%v", claimed, err)
	}

	if err := repo.ReleaseClaim(context.Background(), id, tokenA); err != nil {
		t.Fatalf("release: %v", err)
	}
	claimed, err = repo.Claim(context.Background(), id, tokenB, time.Minute)
	if err != nil || !claimed {
		t.Fatalf("claim after release: claimed=%v err=%v", claimed, err)
	}
}

func TestMediaRepository_ExpiredClaimIsReclaimable(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)

	now := time.Now().UTC()
	repo := NewMediaRepository(db).WithClock(func() time.Time { return now })
	id := registerTestRecord(t, repo, "videos/a.mp4")

	claimed, err := repo.Claim(context.Background(), id, "crashed-token", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("claim: claimed=%v err=%v", claimed, err)
	}

	now = now.Add(2 * time.Minute)
	claimed, err = repo.Claim(context.Background(), id, "fresh-token", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("expired claim should be reclaimable: claimed=%v err=%v", claimed, err)
	}
}

func TestMediaRepository_CommitSignedOnce(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewMediaRepository(db)
	id := registerTestRecord(t, repo, "videos/a.mp4")

	commit := domain.CommitSigned{
		SignedKey:    "signed/a.mp4",
		Signature:    []byte("signature"),
		SignatureAlg: "ml-dsa-65",
		SignedAt:     time.Now().UTC().Truncate(time.Microsecond),
		ProofStatus:  domain.ProofStatusPending,
		Proof:        []byte(`{"v":"custodia_proof_v0","provider":"opentimestamps","status":"pending","digest_hex":"ab","submitted_at":"2026-05-01T12:00:00Z"}`),
	}
	if err := repo.CommitSigned(context.Background(), id, commit); err != nil {
		t.Fatalf("commit: %v", err)
	}

	record, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !record.Signed() || record.SignedKey != "signed/a.mp4" || record.SignatureAlg != "ml-dsa-65" {
		t.Fatalf("record not terminal: %+v", record)
	}
	if record.ProofStatus != domain.ProofStatusPending {
		t.Fatalf("proof status: %q", record.ProofStatus)
	}

	err = repo.CommitSigned(context.Background(), id, commit)
	if err != domain.ErrAlreadySigned && !strings.Contains(err.Error(), domain.ErrAlreadySigned.Error()) {
		t.Fatalf("second commit should report already signed, got %v", err)
	}

	pending, err := repo.ListPending(context.Background())
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("signed record still pending: %+v", pending)
	}
}

func TestMediaRepository_CommitMissingRecord(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewMediaRepository(db)

	err := repo.CommitSigned(context.Background(), 424242, domain.CommitSigned{
		SignedKey:    "signed/x.mp4",
		Signature:    []byte("sig"),
		SignatureAlg: "ml-dsa-65",
		SignedAt:     time.Now().UTC(),
	})
	if err == nil || !strings.Contains(err.Error(), domain.ErrNotFound.Error()) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMediaRepository_UpdateProofOnlyAfterSigning(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	repo := NewMediaRepository(db)
	id := registerTestRecord(t, repo, "videos/a.mp4")

	proof := []byte(`{"v":"custodia_proof_v0","provider":"opentimestamps","status":"confirmed","digest_hex":"ab","submitted_at":"2026-05-01T12:00:00Z"}`)
	if err := repo.UpdateProof(context.Background(), id, proof, domain.ProofStatusConfirmed); err == nil {
		t.Fatal("proof update on a pending record must fail")
	}

	if err := repo.CommitSigned(context.Background(), id, domain.CommitSigned{
		SignedKey:    "signed/a.mp4",
		Signature:    []byte("sig"),
		SignatureAlg: "ml-dsa-65",
		SignedAt:     time.Now().UTC(),
		ProofStatus:  domain.ProofStatusPending,
		Proof:        []byte(`{"v":"custodia_proof_v0","provider":"opentimestamps","status":"pending","digest_hex":"ab","submitted_at":"2026-05-01T12:00:00Z"}`),
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	withPending, err := repo.ListPendingProofs(context.Background())
	if err != nil {
		t.Fatalf("list pending proofs: %v", err)
	}
	if len(withPending) != 1 || withPending[0].ID != id {
		t.Fatalf("unexpected pending proofs %+v", withPending)
	}

	if err := repo.UpdateProof(context.Background(), id, proof, domain.ProofStatusConfirmed); err != nil {
		t.Fatalf("update proof: %v", err)
	}
	record, err := repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.ProofStatus != domain.ProofStatusConfirmed {
		t.Fatalf("proof status not upgraded: %q", record.ProofStatus)
	}

	withPending, err = repo.ListPendingProofs(context.Background())
	if err != nil {
		t.Fatalf("list pending proofs: %v", err)
	}
	if len(withPending) != 0 {
		t.Fatalf("confirmed record still listed: %+v", withPending)
	}
}

func TestCustodyEventRepository_AppendBuildsChain(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	media := NewMediaRepository(db)
	repo := NewCustodyEventRepository(db)
	id := registerTestRecord(t, media, "videos/a.mp4")

	for _, eventType := range []domain.CustodyEventType{
		domain.CustodyEventRegistered,
		domain.CustodyEventFetched,
		domain.CustodyEventSigned,
		domain.CustodyEventCommitted,
	} {
		if _, err := repo.Append(context.Background(), domain.CustodyEvent{
			RecordID:  id,
			EventType: eventType,
			Result:    domain.CustodyResultSuccess,
			Payload:   map[string]any{"key": "videos/a.mp4"},
		}); err != nil {
			t.Fatalf("append %s: %v", eventType, err)
		}
	}

	events, err := repo.ListByRecord(context.Background(), id)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].PrevEventHash != ZeroCustodyHash() {
		t.Fatalf("first event must link to the zero hash, got %q", events[0].PrevEventHash)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Seq != events[i-1].Seq+1 {
			t.Fatalf("seq gap at %d: %d -> %d", i, events[i-1].Seq, events[i].Seq)
		}
	}
	if err := VerifyCustodyChain(events); err != nil {
		t.Fatalf("chain verification: %v", err)
	}
}

func TestAnchorAttemptRepository_AppendList(t *testing.T) {
	db := setupTestDB(t)
	resetDB(t, db)
	media := NewMediaRepository(db)
	repo := NewAnchorAttemptRepository(db)
	id := registerTestRecord(t, media, "videos/a.mp4")

	if err := repo.Append(context.Background(), domain.AnchorAttempt{
		RecordID:  id,
		Provider:  "opentimestamps",
		Status:    domain.AnchorStatusSubmitted,
		DigestHex: "ab12",
	}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := repo.Append(context.Background(), domain.AnchorAttempt{
		RecordID:  id,
		Provider:  "opentimestamps",
		Status:    domain.AnchorStatusFailed,
		ErrorCode: domain.AnchorErrorRateLimit,
		DigestHex: "ab12",
	}); err != nil {
		t.Fatalf("append failed attempt: %v", err)
	}

	attempts, err := repo.ListByRecord(context.Background(), id)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[1].ErrorCode != domain.AnchorErrorRateLimit {
		t.Fatalf("unexpected attempts %+v", attempts)
	}
}
