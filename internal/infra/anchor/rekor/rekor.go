package rekor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"custodia/internal/domain"
	"custodia/internal/infra/anchor"
)

// Client anchors digests in a Rekor transparency log as hashedrekord
// entries. Unlike a calendar server, inclusion is synchronous: a successful
// submission yields a confirmed proof immediately.
type Client struct {
	baseURL string
	signer  domain.Signer
	httpDo  func(*http.Request) (*http.Response, error)
}

func NewClient(baseURL string, signer domain.Signer, httpClient *http.Client) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("rekor base url is required")
	}
	if signer == nil {
		return nil, errors.New("rekor signer is required")
	}
	doer := http.DefaultClient.Do
	if httpClient != nil {
		doer = httpClient.Do
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
		httpDo:  doer,
	}, nil
}

func (c *Client) ProviderName() string {
	return "rekor"
}

func (c *Client) Submit(ctx context.Context, digest []byte) (domain.Proof, error) {
	if c == nil {
		return domain.Proof{}, &anchor.ProviderError{Code: domain.AnchorErrorBadConfig, Err: errors.New("client is nil")}
	}
	digestHex := hex.EncodeToString(digest)

	signature, err := c.signer.Sign(ctx, digest)
	if err != nil {
		return domain.Proof{}, err
	}

	entry := hashedRekord{
		APIVersion: "0.0.1",
		Kind:       "hashedrekord",
		Spec: hashedRekordSpec{
			Data: hashedRekordData{
				Hash: hashedRekordHash{
					Algorithm: "sha256",
					Value:     digestHex,
				},
			},
			Signature: hashedRekordSignature{
				Content: base64.StdEncoding.EncodeToString(signature),
				PublicKey: hashedRekordPublicKey{
					Content: base64.StdEncoding.EncodeToString(c.signer.PublicKey()),
				},
			},
		},
	}
	postBody, err := json.Marshal(entry)
	if err != nil {
		return domain.Proof{}, err
	}

	postReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/log/entries", bytes.NewReader(postBody))
	if err != nil {
		return domain.Proof{}, err
	}
	postReq.Header.Set("Content-Type", "application/json")

	postRespBody, err := c.roundTrip(postReq)
	if err != nil {
		return domain.Proof{}, err
	}
	uuid := firstMapKey(postRespBody)
	if uuid == "" {
		return domain.Proof{}, &anchor.ProviderError{Code: domain.AnchorErrorProviderError, Err: errors.New("entry uuid missing from response")}
	}

	getReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/log/entries/"+uuid, nil)
	if err != nil {
		return domain.Proof{}, err
	}
	getRespBody, err := c.roundTrip(getReq)
	if err != nil {
		return domain.Proof{}, err
	}

	return domain.Proof{
		Provider:    c.ProviderName(),
		Status:      domain.ProofStatusConfirmed,
		DigestHex:   digestHex,
		Attestation: getRespBody,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// Poll is a no-op: rekor entries are confirmed on submission.
func (c *Client) Poll(_ context.Context, proof domain.Proof) (domain.Proof, error) {
	return proof, nil
}

func (c *Client) roundTrip(req *http.Request) ([]byte, error) {
	resp, err := c.httpDo(req)
	if err != nil {
		return nil, &anchor.ProviderError{Code: errorToCode(req.Context(), err), Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &anchor.ProviderError{Code: errorToCode(req.Context(), err), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &anchor.ProviderError{Code: statusToErrorCode(resp.StatusCode), Err: errors.New(resp.Status)}
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

func firstMapKey(payload []byte) string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return ""
	}
	for key := range raw {
		return key
	}
	return ""
}

type hashedRekord struct {
	APIVersion string           `json:"apiVersion"`
	Kind       string           `json:"kind"`
	Spec       hashedRekordSpec `json:"spec"`
}

type hashedRekordSpec struct {
	Data      hashedRekordData      `json:"data"`
	Signature hashedRekordSignature `json:"signature"`
}

type hashedRekordData struct {
	Hash hashedRekordHash `json:"hash"`
}

type hashedRekordHash struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type hashedRekordSignature struct {
	Content   string                `json:"content"`
	PublicKey hashedRekordPublicKey `json:"publicKey"`
}

type hashedRekordPublicKey struct {
	Content string `json:"content"`
}
