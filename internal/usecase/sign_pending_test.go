package usecase

import (
	"bytes"
	"context"
	"testing"
	"time"

	"custodia/internal/domain"
)

const (
	testUnsignedBucket = "historical-media-unsigned"
	testSignedBucket   = "historical-media-signed"
)

func newPipeline(ledger *memLedger, store *memStore, anchor domain.AnchorClient, custody *memCustody) *SignPending {
	return &SignPending{
		Ledger:         ledger,
		Store:          store,
		Signer:         &stubSigner{},
		Anchor:         anchor,
		Custody:        NewCustodyLog(custody),
		UnsignedBucket: testUnsignedBucket,
		SignedBucket:   testSignedBucket,
		Workers:        2,
		ClaimTTL:       time.Minute,
		RetryMax:       200 * time.Millisecond,
	}
}

func TestPipelineSignsPendingRecords(t *testing.T) {
	ledger := newMemLedger()
	store := newMemStore()
	anchor := &stubAnchor{}
	custody := &memCustody{}

	content := []byte("raw video bytes")
	id := ledger.addPending("videos/abc123.mp4")
	store.put(testUnsignedBucket, "videos/abc123.mp4", content)

	summary, err := newPipeline(ledger, store, anchor, custody).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 1 || summary.Skipped != 0 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	record, err := ledger.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !record.Signed() {
		t.Fatalf("expected record to be signed: %+v", record)
	}
	if record.SignedKey != "signed/abc123.mp4" {
		t.Fatalf("unexpected signed key %q", record.SignedKey)
	}
	if record.SignatureAlg != "stub-alg" {
		t.Fatalf("unexpected signature alg %q", record.SignatureAlg)
	}
	if record.ProofStatus != domain.ProofStatusPending {
		t.Fatalf("expected pending proof, got %q", record.ProofStatus)
	}

	signed, ok := store.get(testSignedBucket, "signed/abc123.mp4")
	if !ok {
		t.Fatal("signed artifact missing from store")
	}
	if !bytes.Equal(signed, content) {
		t.Fatal("signed artifact content differs from unsigned source")
	}
	proofBytes, ok := store.get(testSignedBucket, "timestamps/1.ots")
	if !ok {
		t.Fatal("proof object missing from store")
	}
	proof, err := domain.DecodeProof(proofBytes)
	if err != nil {
		t.Fatalf("decode published proof: %v", err)
	}
	if proof.Status != domain.ProofStatusPending {
		t.Fatalf("expected pending proof in store, got %q", proof.Status)
	}
}

func TestPipelineProofObjectsDistinctPerRecord(t *testing.T) {
	ledger := newMemLedger()
	store := newMemStore()
	custody := &memCustody{}

	// Two records over the same unsigned object, as re-registering a source
	// produces. Each must get its own proof object.
	firstID := ledger.addPending("videos/abc123.mp4")
	secondID := ledger.addPending("videos/abc123.mp4")
	store.put(testUnsignedBucket, "videos/abc123.mp4", []byte("content"))

	summary, err := newPipeline(ledger, store, &stubAnchor{}, custody).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	for _, id := range []int64{firstID, secondID} {
		record, err := ledger.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get %d: %v", id, err)
		}
		proofKey := "timestamps/1.ots"
		if id == secondID {
			proofKey = "timestamps/2.ots"
		}
		published, ok := store.get(testSignedBucket, proofKey)
		if !ok {
			t.Fatalf("proof object %s missing", proofKey)
		}
		decoded, err := domain.DecodeProof(published)
		if err != nil {
			t.Fatalf("decode %s: %v", proofKey, err)
		}
		ledgerProof, err := domain.DecodeProof(record.Proof)
		if err != nil {
			t.Fatalf("decode ledger proof %d: %v", id, err)
		}
		if decoded.DigestHex != ledgerProof.DigestHex {
			t.Fatalf("proof object %s does not match record %d", proofKey, id)
		}
	}
}

func TestPipelineRetriesTransientFetch(t *testing.T) {
	ledger := newMemLedger()
	store := newMemStore()
	custody := &memCustody{}

	content := []byte("raw video bytes")
	id := ledger.addPending("videos/abc123.mp4")
	store.put(testUnsignedBucket, "videos/abc123.mp4", content)
	// First Get drops the connection; the retry must succeed.
	store.getFaults[objectKey(testUnsignedBucket, "videos/abc123.mp4")] = 1

	pipeline := newPipeline(ledger, store, &stubAnchor{}, custody)
	pipeline.RetryMax = 5 * time.Second

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 0 {
		t.Fatalf("transient fetch fault must be retried, got %+v", summary)
	}
	if got := store.gets[objectKey(testUnsignedBucket, "videos/abc123.mp4")]; got < 2 {
		t.Fatalf("expected at least two fetch attempts, got %d", got)
	}
	record, err := ledger.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !record.Signed() {
		t.Fatal("record must reach signed after the retry")
	}
}

func TestPipelineHungFetchIsBounded(t *testing.T) {
	ledger := newMemLedger()
	custody := &memCustody{}
	ledger.addPending("videos/abc123.mp4")

	pipeline := newPipeline(ledger, newMemStore(), &stubAnchor{}, custody)
	pipeline.Store = hangingStore{}
	pipeline.CallTimeout = 20 * time.Millisecond
	pipeline.RetryMax = 50 * time.Millisecond

	// Without a per-call bound this run never returns.
	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Failed != 1 || summary.Processed != 0 {
		t.Fatalf("hung fetch must fail the record, got %+v", summary)
	}
}

func TestPipelineRerunIsIdempotent(t *testing.T) {
	ledger := newMemLedger()
	store := newMemStore()
	custody := &memCustody{}

	ledger.addPending("videos/abc123.mp4")
	ledger.addPending("videos/def456.mp4")
	store.put(testUnsignedBucket, "videos/abc123.mp4", []byte("one"))
	store.put(testUnsignedBucket, "videos/def456.mp4", []byte("two"))

	pipeline := newPipeline(ledger, store, &stubAnchor{}, custody)
	first, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Processed != 2 {
		t.Fatalf("first run summary %+v", first)
	}

	second, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Processed != 0 || second.Failed != 0 {
		t.Fatalf("second run should find nothing to do, got %+v", second)
	}
}

func TestPipelineCommitRaceCountsAsSkip(t *testing.T) {
	ledger := newMemLedger()
	store := newMemStore()
	custody := &memCustody{}

	id := ledger.addPending("videos/abc123.mp4")
	store.put(testUnsignedBucket, "videos/abc123.mp4", []byte("content"))
	ledger.commitErr[id] = domain.ErrAlreadySigned

	summary, err := newPipeline(ledger, store, &stubAnchor{}, custody).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Skipped != 1 || summary.Failed != 0 || summary.Processed != 0 {
		t.Fatalf("expected benign skip, got %+v", summary)
	}
}

func TestPipelineIsolatesPerRecordFailures(t *testing.T) {
	ledger := newMemLedger()
	store := newMemStore()
	custody := &memCustody{}

	goodID := ledger.addPending("videos/good.mp4")
	ledger.addPending("videos/missing.mp4")
	store.put(testUnsignedBucket, "videos/good.mp4", []byte("good"))
	// videos/missing.mp4 is never stored: fetch fails with a not-found.

	summary, err := newPipeline(ledger, store, &stubAnchor{}, custody).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 1 || summary.Failed != 1 {
		t.Fatalf("expected one success and one failure, got %+v", summary)
	}
	record, err := ledger.Get(context.Background(), goodID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !record.Signed() {
		t.Fatal("healthy record should have been signed despite sibling failure")
	}
}

func TestPipelineAnchorFailureIsBestEffort(t *testing.T) {
	ledger := newMemLedger()
	store := newMemStore()
	custody := &memCustody{}

	id := ledger.addPending("videos/abc123.mp4")
	store.put(testUnsignedBucket, "videos/abc123.mp4", []byte("content"))

	anchor := &stubAnchor{submitErr: domain.ErrAnchor}
	summary, err := newPipeline(ledger, store, anchor, custody).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("anchor failure must not fail the record, got %+v", summary)
	}
	record, err := ledger.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !record.Signed() {
		t.Fatal("record should commit signed without a proof")
	}
	if len(record.Proof) != 0 || record.ProofStatus != domain.ProofStatusNone {
		t.Fatalf("expected absent proof, got status %q", record.ProofStatus)
	}
	if _, ok := store.get(testSignedBucket, "timestamps/1.ots"); ok {
		t.Fatal("no proof object should be published on anchor failure")
	}
}

func TestPipelineSignerFailureFailsRecord(t *testing.T) {
	ledger := newMemLedger()
	store := newMemStore()
	custody := &memCustody{}

	id := ledger.addPending("videos/abc123.mp4")
	store.put(testUnsignedBucket, "videos/abc123.mp4", []byte("content"))

	pipeline := newPipeline(ledger, store, &stubAnchor{}, custody)
	pipeline.Signer = &stubSigner{err: domain.ErrSigner}

	summary, err := pipeline.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Failed != 1 || summary.Processed != 0 {
		t.Fatalf("expected signer failure, got %+v", summary)
	}
	record, err := ledger.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Signed() || record.SignedKey != "" || len(record.Signature) != 0 {
		t.Fatal("no terminal field may be set after a signer failure")
	}
}

func TestPipelineSkipsRecordsClaimedElsewhere(t *testing.T) {
	ledger := newMemLedger()
	store := newMemStore()
	custody := &memCustody{}

	id := ledger.addPending("videos/abc123.mp4")
	store.put(testUnsignedBucket, "videos/abc123.mp4", []byte("content"))

	// Another run holds a live lease.
	claimed, err := ledger.Claim(context.Background(), id, "other-run-token", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("setup claim: %v", err)
	}

	summary, err := newPipeline(ledger, store, &stubAnchor{}, custody).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Skipped != 1 || summary.Processed != 0 {
		t.Fatalf("expected claimed record to be skipped, got %+v", summary)
	}
}

func TestPipelineExpiredClaimIsReclaimable(t *testing.T) {
	ledger := newMemLedger()
	store := newMemStore()
	custody := &memCustody{}

	id := ledger.addPending("videos/abc123.mp4")
	store.put(testUnsignedBucket, "videos/abc123.mp4", []byte("content"))

	// A crashed run left a lease behind; move the ledger clock past its TTL.
	claimed, err := ledger.Claim(context.Background(), id, "crashed-run-token", time.Minute)
	if err != nil || !claimed {
		t.Fatalf("setup claim: %v", err)
	}
	ledger.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	summary, err := newPipeline(ledger, store, &stubAnchor{}, custody).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Processed != 1 {
		t.Fatalf("expected expired claim to be reclaimed, got %+v", summary)
	}
}

func TestPipelineEmitsCustodyEvents(t *testing.T) {
	ledger := newMemLedger()
	store := newMemStore()
	custody := &memCustody{}

	id := ledger.addPending("videos/abc123.mp4")
	store.put(testUnsignedBucket, "videos/abc123.mp4", []byte("content"))

	if _, err := newPipeline(ledger, store, &stubAnchor{}, custody).Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []domain.CustodyEventType{
		domain.CustodyEventFetched,
		domain.CustodyEventSigned,
		domain.CustodyEventAnchored,
		domain.CustodyEventPublished,
		domain.CustodyEventCommitted,
	}
	got := custody.types(id)
	if len(got) != len(want) {
		t.Fatalf("expected %d custody events, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("custody event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
