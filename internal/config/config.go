package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string

	UnsignedBucket string
	SignedBucket   string
	S3Endpoint     string
	S3Region       string

	SignerAlg      string
	PrivateKeyFile string
	PublicKeyFile  string
	KeySecretID    string

	AWSRegion                 string
	AWSAccessKeyID            string
	AWSSecretAccessKey        string
	AWSSessionToken           string
	AWSSecretsManagerEndpoint string

	AnchorProvider       string
	OTSCalendarURL       string
	RekorURL             string
	AnchorTimeoutSeconds int

	PipelineWorkers        int
	ClaimTTLSeconds        int
	CallTimeoutSeconds     int
	RetryMaxElapsedSeconds int
	DownloadDir            string
	FetcherBin             string

	AnchorRateLimit         int
	AnchorRateWindowSeconds int
	RedisAddr               string
	RedisPassword           string
	RedisDB                 int

	PolicyBundlePath string
	PolicyBundleID   string

	AdminAPIKey string
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                  addr,
		PostgresDSN:               os.Getenv("POSTGRES_DSN"),
		UnsignedBucket:            envDefault("UNSIGNED_BUCKET", "historical-media-unsigned"),
		SignedBucket:              envDefault("SIGNED_BUCKET", "historical-media-signed"),
		S3Endpoint:                os.Getenv("S3_ENDPOINT"),
		S3Region:                  envDefault("S3_REGION", "auto"),
		SignerAlg:                 envDefault("SIGNER_ALG", "ml-dsa-65"),
		PrivateKeyFile:            envDefault("PRIVATE_KEY_FILE", "ml_dsa_private_key.bin"),
		PublicKeyFile:             envDefault("PUBLIC_KEY_FILE", "ml_dsa_public_key.bin"),
		KeySecretID:               os.Getenv("KEY_SECRET_ID"),
		AWSRegion:                 os.Getenv("AWS_REGION"),
		AWSAccessKeyID:            os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey:        os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSSessionToken:           os.Getenv("AWS_SESSION_TOKEN"),
		AWSSecretsManagerEndpoint: os.Getenv("AWS_SECRETS_MANAGER_ENDPOINT"),
		AnchorProvider:            envDefault("ANCHOR_PROVIDER", "opentimestamps"),
		OTSCalendarURL:            envDefault("OTS_CALENDAR_URL", "https://a.pool.opentimestamps.org"),
		RekorURL:                  os.Getenv("REKOR_URL"),
		AnchorTimeoutSeconds:      envIntDefault("ANCHOR_TIMEOUT_SECONDS", 10),
		PipelineWorkers:           envIntDefault("PIPELINE_WORKERS", 4),
		ClaimTTLSeconds:           envIntDefault("CLAIM_TTL_SECONDS", 300),
		CallTimeoutSeconds:        envIntDefault("CALL_TIMEOUT_SECONDS", 30),
		RetryMaxElapsedSeconds:    envIntDefault("RETRY_MAX_ELAPSED_SECONDS", 120),
		DownloadDir:               envDefault("DOWNLOAD_DIR", "downloads"),
		FetcherBin:                envDefault("FETCHER_BIN", "yt-dlp"),
		AnchorRateLimit:           envIntDefault("ANCHOR_RATE_LIMIT", 0),
		AnchorRateWindowSeconds:   envIntDefault("ANCHOR_RATE_WINDOW_SECONDS", 60),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		RedisPassword:             os.Getenv("REDIS_PASSWORD"),
		RedisDB:                   envIntDefault("REDIS_DB", 0),
		PolicyBundlePath:          os.Getenv("POLICY_BUNDLE_PATH"),
		PolicyBundleID:            os.Getenv("POLICY_BUNDLE_ID"),
		AdminAPIKey:               os.Getenv("ADMIN_API_KEY"),
	}
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func (c Config) ClaimTTL() time.Duration {
	if c.ClaimTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.ClaimTTLSeconds) * time.Second
}

func (c Config) CallTimeout() time.Duration {
	if c.CallTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

func (c Config) AnchorTimeout() time.Duration {
	if c.AnchorTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.AnchorTimeoutSeconds) * time.Second
}

func (c Config) RetryMaxElapsed() time.Duration {
	if c.RetryMaxElapsedSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.RetryMaxElapsedSeconds) * time.Second
}

func (c Config) AnchorRateWindow() time.Duration {
	if c.AnchorRateWindowSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.AnchorRateWindowSeconds) * time.Second
}
