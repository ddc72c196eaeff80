// Package app builds the object graph shared by the daemon and the CLI.
package app

import (
	"context"
	"fmt"

	"custodia/internal/config"
	"custodia/internal/domain"
	"custodia/internal/infra/anchor"
	"custodia/internal/infra/anchor/opentimestamps"
	"custodia/internal/infra/anchor/rekor"
	"custodia/internal/infra/db"
	"custodia/internal/infra/fetcher/ytdlp"
	"custodia/internal/infra/keys/awssm"
	filekeys "custodia/internal/infra/keys/file"
	"custodia/internal/infra/objectstore"
	"custodia/internal/infra/policy"
	"custodia/internal/infra/ratelimit"
	"custodia/internal/infra/signer"
	"custodia/internal/usecase"
)

type App struct {
	Config config.Config
	Store  *db.Store

	Ledger   domain.Ledger
	Custody  domain.CustodyEventRepository
	Attempts domain.AnchorAttemptRepository

	Register  *usecase.RegisterMedia
	Pipeline  *usecase.SignPending
	Reconcile *usecase.ReconcileProofs
}

func Build(ctx context.Context, cfg config.Config) (*App, error) {
	store, err := db.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	ledger := db.NewMediaRepository(store.DB)
	custodyRepo := db.NewCustodyEventRepository(store.DB)
	attemptsRepo := db.NewAnchorAttemptRepository(store.DB)
	custodyLog := usecase.NewCustodyLog(custodyRepo)

	objects, err := objectstore.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}

	signingKeys, err := keyProvider(cfg)
	if err != nil {
		return nil, err
	}
	handle, err := signingKeys.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load signing keys: %w", err)
	}
	signerImpl, err := signer.New(cfg.SignerAlg, handle)
	if err != nil {
		return nil, fmt.Errorf("init signer: %w", err)
	}

	anchorClient, err := anchorService(cfg, signerImpl, attemptsRepo)
	if err != nil {
		return nil, err
	}

	var admission domain.AdmissionPolicy
	if cfg.PolicyBundlePath != "" {
		engine, err := policy.NewEngineFromBundlePath(ctx, cfg.PolicyBundlePath, cfg.PolicyBundleID)
		if err != nil {
			return nil, fmt.Errorf("load policy bundle: %w", err)
		}
		admission = engine
	}

	return &App{
		Config:   cfg,
		Store:    store,
		Ledger:   ledger,
		Custody:  custodyRepo,
		Attempts: attemptsRepo,
		Register: &usecase.RegisterMedia{
			Ledger:         ledger,
			Store:          objects,
			Fetcher:        ytdlp.New(cfg.FetcherBin),
			Policy:         admission,
			Custody:        custodyLog,
			UnsignedBucket: cfg.UnsignedBucket,
			DownloadDir:    cfg.DownloadDir,
			RetryMax:       cfg.RetryMaxElapsed(),
			CallTimeout:    cfg.CallTimeout(),
		},
		Pipeline: &usecase.SignPending{
			Ledger:         ledger,
			Store:          objects,
			Signer:         signerImpl,
			Anchor:         anchorClient,
			Custody:        custodyLog,
			UnsignedBucket: cfg.UnsignedBucket,
			SignedBucket:   cfg.SignedBucket,
			Workers:        cfg.PipelineWorkers,
			ClaimTTL:       cfg.ClaimTTL(),
			RetryMax:       cfg.RetryMaxElapsed(),
			CallTimeout:    cfg.CallTimeout(),
		},
		Reconcile: &usecase.ReconcileProofs{
			Ledger:       ledger,
			Store:        objects,
			Anchor:       anchorClient,
			Custody:      custodyLog,
			SignedBucket: cfg.SignedBucket,
			RetryMax:     cfg.RetryMaxElapsed(),
			CallTimeout:  cfg.CallTimeout(),
		},
	}, nil
}

func keyProvider(cfg config.Config) (domain.KeyProvider, error) {
	if cfg.KeySecretID != "" {
		return awssm.NewProvider(cfg)
	}
	return filekeys.NewProvider(cfg.PrivateKeyFile, cfg.PublicKeyFile)
}

func anchorService(cfg config.Config, signerImpl domain.Signer, attempts domain.AnchorAttemptRepository) (domain.AnchorClient, error) {
	var (
		provider anchor.Provider
		err      error
	)
	switch cfg.AnchorProvider {
	case "", "none":
		return nil, nil
	case "opentimestamps":
		provider, err = opentimestamps.NewClient(cfg.OTSCalendarURL, nil)
	case "rekor":
		provider, err = rekor.NewClient(cfg.RekorURL, signerImpl, nil)
	default:
		return nil, fmt.Errorf("unknown anchor provider %q", cfg.AnchorProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("init anchor provider: %w", err)
	}

	service, err := anchor.NewService(provider, attempts, cfg.AnchorTimeout())
	if err != nil {
		return nil, fmt.Errorf("init anchor service: %w", err)
	}
	if cfg.AnchorRateLimit > 0 {
		limiter, err := submitLimiter(cfg)
		if err != nil {
			return nil, err
		}
		service.WithRateLimit(limiter, cfg.AnchorRateLimit, cfg.AnchorRateWindow())
	}
	return service, nil
}

func submitLimiter(cfg config.Config) (domain.RateLimiter, error) {
	if cfg.RedisAddr != "" {
		limiter, err := ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("init redis limiter: %w", err)
		}
		return limiter, nil
	}
	return ratelimit.NewMemoryLimiter(), nil
}
