package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"custodia/internal/domain"
)

// ErrDenied means the admission policy rejected the source.
var ErrDenied = errors.New("registration denied by policy")

// RegisterMedia acquires a source, publishes the raw artifact to the
// unsigned bucket, and opens a pending ledger record for it.
type RegisterMedia struct {
	Ledger  domain.Ledger
	Store   domain.ObjectStore
	Fetcher domain.Fetcher
	Policy  domain.AdmissionPolicy
	Custody *CustodyLog

	UnsignedBucket string
	DownloadDir    string
	RetryMax       time.Duration
	CallTimeout    time.Duration
}

type RegisterResult struct {
	ID          int64  `json:"id"`
	Title       string `json:"title,omitempty"`
	UnsignedKey string `json:"unsigned_key"`

	PolicyDeny []domain.PolicyDeny `json:"policy_deny,omitempty"`
}

func (r *RegisterMedia) Run(ctx context.Context, url string) (RegisterResult, error) {
	if r == nil || r.Ledger == nil || r.Store == nil || r.Fetcher == nil {
		return RegisterResult{}, errors.New("register media dependencies missing")
	}
	if strings.TrimSpace(url) == "" {
		return RegisterResult{}, errors.New("url is required")
	}
	if r.UnsignedBucket == "" {
		return RegisterResult{}, errors.New("unsigned bucket is required")
	}

	if r.Policy != nil {
		evaluation, err := r.Policy.Evaluate(ctx, domain.PolicyInput{URL: url})
		if err != nil {
			return RegisterResult{}, fmt.Errorf("evaluate admission policy: %w", err)
		}
		if !evaluation.Result.Allow {
			return RegisterResult{PolicyDeny: evaluation.Result.Deny}, ErrDenied
		}
	}

	destDir, err := os.MkdirTemp(r.DownloadDir, "fetch-*")
	if err != nil {
		return RegisterResult{}, fmt.Errorf("create download dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(destDir); err != nil {
			log.Printf("register: clean download dir %s: %v", destDir, err)
		}
	}()

	fetched, err := r.Fetcher.Fetch(ctx, url, destDir)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	artifact, err := os.ReadFile(fetched.Path)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("read fetched artifact: %w", err)
	}

	unsignedKey := unsignedKeyFor(fetched.SourceID, fetched.Ext)
	putErr := retryTransient(ctx, r.RetryMax, func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.callTimeout())
		defer cancel()
		return r.Store.Put(callCtx, r.UnsignedBucket, unsignedKey, artifact)
	})
	if putErr != nil {
		return RegisterResult{}, fmt.Errorf("publish unsigned artifact %s: %w", unsignedKey, putErr)
	}

	id, err := r.Ledger.Register(ctx, url, fetched.Title, unsignedKey)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("register %s: %w", unsignedKey, err)
	}
	if err := r.Custody.Registered(ctx, id, url, unsignedKey); err != nil {
		log.Printf("register: custody event for media %d: %v", id, err)
	}

	return RegisterResult{
		ID:          id,
		Title:       fetched.Title,
		UnsignedKey: unsignedKey,
	}, nil
}

func (r *RegisterMedia) callTimeout() time.Duration {
	if r.CallTimeout > 0 {
		return r.CallTimeout
	}
	return 30 * time.Second
}
