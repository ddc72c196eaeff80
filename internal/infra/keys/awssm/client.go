// Package awssm resolves signing key material from AWS Secrets Manager,
// for deployments where key files must not live on the pipeline host.
package awssm

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

const service = "secretsmanager"

// Client speaks the aws-json-1.1 Secrets Manager protocol with SigV4 request
// signing. Only GetSecretValue is needed here.
type Client struct {
	endpoint     string
	region       string
	accessKey    string
	secretKey    string
	sessionToken string
	httpClient   *http.Client
	clock        func() time.Time
}

func NewClient(endpoint, region, accessKey, secretKey, sessionToken string) (*Client, error) {
	if region == "" || accessKey == "" || secretKey == "" {
		return nil, errors.New("aws region and credentials are required")
	}
	if endpoint == "" {
		endpoint = "https://" + service + "." + region + ".amazonaws.com"
	}
	return &Client{
		endpoint:     strings.TrimRight(endpoint, "/"),
		region:       region,
		accessKey:    accessKey,
		secretKey:    secretKey,
		sessionToken: sessionToken,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		clock:        time.Now,
	}, nil
}

func (c *Client) WithClock(clock func() time.Time) *Client {
	if c == nil {
		return nil
	}
	if clock != nil {
		c.clock = clock
	}
	return c
}

func (c *Client) GetSecret(ctx context.Context, secretID string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("awssm client is nil")
	}
	if secretID == "" {
		return nil, errors.New("secret id is required")
	}
	body, err := json.Marshal(map[string]string{"SecretId": secretID})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-amz-json-1.1")
	req.Header.Set("X-Amz-Target", service+".GetSecretValue")
	amzDate := c.clock().UTC().Format("20060102T150405Z")
	req.Header.Set("X-Amz-Date", amzDate)
	if c.sessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", c.sessionToken)
	}
	if err := c.sign(req, body, amzDate); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("secrets manager returned status %d", resp.StatusCode)
	}
	var out struct {
		SecretString string `json:"SecretString"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	if out.SecretString == "" {
		return nil, errors.New("secret string missing")
	}
	return []byte(out.SecretString), nil
}

func (c *Client) sign(req *http.Request, payload []byte, amzDate string) error {
	host := req.URL.Host
	if host == "" {
		return errors.New("aws host missing")
	}
	req.Header.Set("Host", host)
	date := amzDate[:8]

	keys := make([]string, 0, len(req.Header))
	for k := range req.Header {
		keys = append(keys, strings.ToLower(k))
	}
	sort.Strings(keys)
	var canonicalHeaders strings.Builder
	for _, key := range keys {
		values := req.Header.Values(key)
		for i := range values {
			values[i] = strings.TrimSpace(values[i])
		}
		canonicalHeaders.WriteString(key + ":" + strings.Join(values, ",") + "\n")
	}
	signedHeaders := strings.Join(keys, ";")

	canonicalRequest := strings.Join([]string{
		req.Method,
		"/",
		"",
		canonicalHeaders.String(),
		signedHeaders,
		sha256Hex(payload),
	}, "\n")

	scope := date + "/" + c.region + "/" + service + "/aws4_request"
	stringToSign := strings.Join([]string{
		"AWS4-HMAC-SHA256",
		amzDate,
		scope,
		sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	key := hmacSHA256([]byte("AWS4"+c.secretKey), []byte(date))
	key = hmacSHA256(key, []byte(c.region))
	key = hmacSHA256(key, []byte(service))
	key = hmacSHA256(key, []byte("aws4_request"))
	signature := hex.EncodeToString(hmacSHA256(key, []byte(stringToSign)))

	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		c.accessKey, scope, signedHeaders, signature,
	))
	return nil
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
