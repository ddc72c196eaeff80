package opentimestamps

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"custodia/internal/domain"
	"custodia/internal/infra/anchor"
)

// maxAttestationBytes bounds what we accept from a calendar server.
const maxAttestationBytes = 1 << 20

// Client talks to an OpenTimestamps calendar server. Submission returns a
// pending attestation immediately; the calendar aggregates digests into a
// Bitcoin transaction later, so confirmation arrives via Poll.
type Client struct {
	baseURL string
	httpDo  func(*http.Request) (*http.Response, error)
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("opentimestamps calendar url is required")
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpDo:  doer,
	}, nil
}

func (c *Client) ProviderName() string {
	return "opentimestamps"
}

func (c *Client) Submit(ctx context.Context, digest []byte) (domain.Proof, error) {
	if c == nil {
		return domain.Proof{}, &anchor.ProviderError{Code: domain.AnchorErrorBadConfig, Err: errors.New("client is nil")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/digest", bytes.NewReader(digest))
	if err != nil {
		return domain.Proof{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	attestation, err := c.roundTrip(req)
	if err != nil {
		return domain.Proof{}, err
	}
	return domain.Proof{
		Provider:    c.ProviderName(),
		Status:      domain.ProofStatusPending,
		DigestHex:   hex.EncodeToString(digest),
		Attestation: attestation,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// Poll asks the calendar for an upgraded timestamp. A 404 means the digest
// is still waiting on aggregation; the pending proof comes back unchanged.
func (c *Client) Poll(ctx context.Context, proof domain.Proof) (domain.Proof, error) {
	if c == nil {
		return proof, &anchor.ProviderError{Code: domain.AnchorErrorBadConfig, Err: errors.New("client is nil")}
	}
	if proof.DigestHex == "" {
		return proof, &anchor.ProviderError{Code: domain.AnchorErrorBadConfig, Err: errors.New("proof digest is required")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/timestamp/"+proof.DigestHex, nil)
	if err != nil {
		return proof, err
	}
	resp, err := c.httpDo(req)
	if err != nil {
		return proof, &anchor.ProviderError{Code: errorToCode(ctx, err), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return proof, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAttestationBytes))
	if err != nil {
		return proof, &anchor.ProviderError{Code: errorToCode(ctx, err), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return proof, &anchor.ProviderError{Code: statusToErrorCode(resp.StatusCode), Err: errors.New(resp.Status)}
	}
	upgraded := proof
	upgraded.Status = domain.ProofStatusConfirmed
	upgraded.Attestation = body
	return upgraded, nil
}

func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.httpDo(req)
	if err != nil {
		return nil, &anchor.ProviderError{Code: errorToCode(req.Context(), err), Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAttestationBytes))
	if err != nil {
		return nil, &anchor.ProviderError{Code: errorToCode(req.Context(), err), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &anchor.ProviderError{Code: statusToErrorCode(resp.StatusCode), Err: errors.New(resp.Status)}
	}
	if len(body) == 0 {
		return nil, &anchor.ProviderError{Code: domain.AnchorErrorProviderError, Err: errors.New("empty attestation")}
	}
	return body, nil
}

func statusToErrorCode(code int) string {
	if code == http.StatusTooManyRequests {
		return domain.AnchorErrorRateLimit
	}
	if code >= 500 {
		return domain.AnchorErrorProvider5xx
	}
	return domain.AnchorErrorProviderError
}

func errorToCode(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.AnchorErrorTimeout
	}
	return domain.AnchorErrorNetwork
}
