package usecase

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"custodia/internal/domain"
)

type memLedger struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*domain.MediaRecord
	claims  map[int64]string
	expiry  map[int64]time.Time

	commitErr map[int64]error
	now       func() time.Time
}

func newMemLedger() *memLedger {
	return &memLedger{
		nextID:    1,
		records:   make(map[int64]*domain.MediaRecord),
		claims:    make(map[int64]string),
		expiry:    make(map[int64]time.Time),
		commitErr: make(map[int64]error),
		now:       time.Now,
	}
}

func (l *memLedger) addPending(unsignedKey string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.records[id] = &domain.MediaRecord{ID: id, URL: "https://example.test/" + unsignedKey, UnsignedKey: unsignedKey}
	return id
}

func (l *memLedger) Register(_ context.Context, url, title, unsignedKey string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.records[id] = &domain.MediaRecord{ID: id, URL: url, Title: title, UnsignedKey: unsignedKey, DownloadDate: l.now()}
	return id, nil
}

func (l *memLedger) ListPending(_ context.Context) ([]domain.PendingMedia, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.PendingMedia
	for id := int64(1); id < l.nextID; id++ {
		record, ok := l.records[id]
		if ok && record.SignedKey == "" {
			out = append(out, domain.PendingMedia{ID: id, UnsignedKey: record.UnsignedKey})
		}
	}
	return out, nil
}

func (l *memLedger) Claim(_ context.Context, id int64, token string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[id]
	if !ok || record.SignedKey != "" {
		return false, nil
	}
	holder, held := l.claims[id]
	if held && holder != token && l.now().Before(l.expiry[id]) {
		return false, nil
	}
	l.claims[id] = token
	l.expiry[id] = l.now().Add(ttl)
	return true, nil
}

func (l *memLedger) ReleaseClaim(_ context.Context, id int64, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claims[id] == token {
		delete(l.claims, id)
		delete(l.expiry, id)
	}
	return nil
}

func (l *memLedger) CommitSigned(_ context.Context, id int64, commit domain.CommitSigned) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.commitErr[id]; err != nil {
		return err
	}
	record, ok := l.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if record.SignedKey != "" {
		return domain.ErrAlreadySigned
	}
	signedAt := commit.SignedAt
	record.SignedKey = commit.SignedKey
	record.Signature = commit.Signature
	record.SignatureAlg = commit.SignatureAlg
	record.SignedAt = &signedAt
	record.Proof = commit.Proof
	record.ProofStatus = commit.ProofStatus
	return nil
}

func (l *memLedger) UpdateProof(_ context.Context, id int64, proof []byte, status domain.ProofStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	if record.SignedKey == "" {
		return domain.ErrNotFound
	}
	record.Proof = proof
	record.ProofStatus = status
	return nil
}

func (l *memLedger) Get(_ context.Context, id int64) (domain.MediaRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[id]
	if !ok {
		return domain.MediaRecord{}, domain.ErrNotFound
	}
	return *record, nil
}

func (l *memLedger) ListPendingProofs(_ context.Context) ([]domain.MediaRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.MediaRecord
	for id := int64(1); id < l.nextID; id++ {
		record, ok := l.records[id]
		if ok && record.SignedKey != "" && record.ProofStatus == domain.ProofStatusPending {
			out = append(out, *record)
		}
	}
	return out, nil
}

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  map[string]error
	putErr  map[string]error

	// getFaults counts down per-object transient Get failures before the
	// stored object is served, for retry scenarios.
	getFaults map[string]int
	gets      map[string]int
}

func newMemStore() *memStore {
	return &memStore{
		objects:   make(map[string][]byte),
		getErr:    make(map[string]error),
		putErr:    make(map[string]error),
		getFaults: make(map[string]int),
		gets:      make(map[string]int),
	}
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

func (s *memStore) put(bucket, key string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey(bucket, key)] = body
}

func (s *memStore) get(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[objectKey(bucket, key)]
	return body, ok
}

func (s *memStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets[objectKey(bucket, key)]++
	if err := s.getErr[objectKey(bucket, key)]; err != nil {
		return nil, err
	}
	if s.getFaults[objectKey(bucket, key)] > 0 {
		s.getFaults[objectKey(bucket, key)]--
		return nil, domain.Transient(fmt.Errorf("connection reset: %s/%s", bucket, key))
	}
	body, ok := s.objects[objectKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrNotFound, bucket, key)
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

func (s *memStore) Put(_ context.Context, bucket, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.putErr[objectKey(bucket, key)]; err != nil {
		return err
	}
	stored := make([]byte, len(body))
	copy(stored, body)
	s.objects[objectKey(bucket, key)] = stored
	return nil
}

// hangingStore blocks every Get until the call's context expires, the way a
// stalled connection would.
type hangingStore struct{}

func (hangingStore) Get(ctx context.Context, _, _ string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingStore) Put(_ context.Context, _, _ string, _ []byte) error { return nil }

type stubSigner struct {
	err error
}

func (s *stubSigner) Algorithm() string { return "stub-alg" }

func (s *stubSigner) Sign(_ context.Context, message []byte) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]byte("sig:"), message[:min(8, len(message))]...), nil
}

func (s *stubSigner) Verify(_ context.Context, _, _ []byte) error { return nil }

func (s *stubSigner) PublicKey() []byte { return []byte("stub-public-key") }

type stubAnchor struct {
	mu         sync.Mutex
	submitErr  error
	pollErr    error
	status     domain.ProofStatus
	pollStatus domain.ProofStatus
	submits    int
	polls      int
}

func (a *stubAnchor) Submit(_ context.Context, _ int64, digest []byte) (domain.Proof, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submits++
	if a.submitErr != nil {
		return domain.Proof{}, a.submitErr
	}
	status := a.status
	if status == domain.ProofStatusNone {
		status = domain.ProofStatusPending
	}
	return domain.Proof{
		Provider:    "stub",
		Status:      status,
		DigestHex:   hex.EncodeToString(digest),
		Attestation: []byte("attestation"),
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func (a *stubAnchor) Poll(_ context.Context, _ int64, proof domain.Proof) (domain.Proof, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.polls++
	if a.pollErr != nil {
		return proof, a.pollErr
	}
	if a.pollStatus != domain.ProofStatusNone {
		proof.Status = a.pollStatus
		proof.Attestation = []byte("upgraded-attestation")
	}
	return proof, nil
}

type memCustody struct {
	mu     sync.Mutex
	events []domain.CustodyEvent
}

func (c *memCustody) Append(_ context.Context, event domain.CustodyEvent) (domain.CustodyEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	event.Seq = int64(len(c.events) + 1)
	event.CreatedAt = time.Now().UTC()
	c.events = append(c.events, event)
	return event, nil
}

func (c *memCustody) ListByRecord(_ context.Context, recordID int64) ([]domain.CustodyEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.CustodyEvent
	for _, event := range c.events {
		if event.RecordID == recordID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (c *memCustody) types(recordID int64) []domain.CustodyEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.CustodyEventType
	for _, event := range c.events {
		if event.RecordID == recordID {
			out = append(out, event.EventType)
		}
	}
	return out
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
