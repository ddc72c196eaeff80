package http

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"custodia/internal/domain"
	"custodia/internal/infra/db"
	"custodia/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type registerRequest struct {
	URL string `json:"url"`
}

type mediaResponse struct {
	ID           int64  `json:"id"`
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	DownloadDate string `json:"download_date,omitempty"`
	UnsignedKey  string `json:"unsigned_key"`
	SignedKey    string `json:"signed_key,omitempty"`
	Signature    string `json:"signature,omitempty"`
	SignatureAlg string `json:"signature_alg,omitempty"`
	SignedAt     string `json:"signed_at,omitempty"`
	ProofStatus  string `json:"proof_status,omitempty"`

	CustodyChain   []custodyEventResponse  `json:"custody_chain,omitempty"`
	CustodyIntact  *bool                   `json:"custody_intact,omitempty"`
	AnchorAttempts []anchorAttemptResponse `json:"anchor_attempts,omitempty"`
}

type custodyEventResponse struct {
	Seq       int64  `json:"seq"`
	EventType string `json:"event_type"`
	Result    string `json:"result"`
	ErrorCode string `json:"error_code,omitempty"`
	EventHash string `json:"event_hash"`
	CreatedAt string `json:"created_at"`
}

type anchorAttemptResponse struct {
	Provider  string `json:"provider"`
	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	DigestHex string `json:"digest_hex,omitempty"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleRegisterMedia(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.register == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "registration is not configured")
		return
	}
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid json body")
		return
	}
	result, err := s.register.Run(c.Request.Context(), req.URL)
	if err != nil {
		if errors.Is(err, usecase.ErrDenied) {
			details := map[string]any{}
			if len(result.PolicyDeny) > 0 {
				details["deny"] = result.PolicyDeny
			}
			c.JSON(http.StatusForbidden, errorResponse{
				Code:    "POLICY_DENIED",
				Message: "source rejected by admission policy",
				Details: details,
			})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleRunPipeline(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.pipeline == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "pipeline is not configured")
		return
	}
	summary, err := s.pipeline.Run(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleRunReconcile(c *gin.Context) {
	if !s.requireAdmin(c) {
		return
	}
	if s.reconcile == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "reconciliation is not configured")
		return
	}
	summary, err := s.reconcile.Run(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleGetMedia(c *gin.Context) {
	if s.ledger == nil {
		writeErrorCode(c, http.StatusServiceUnavailable, "UNAVAILABLE", "ledger is not configured")
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid media id")
		return
	}
	record, err := s.ledger.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := buildMediaResponse(record)

	if s.custody != nil {
		events, err := s.custody.ListByRecord(c.Request.Context(), id)
		if err == nil && len(events) > 0 {
			intact := db.VerifyCustodyChain(events) == nil
			resp.CustodyIntact = &intact
			for _, event := range events {
				resp.CustodyChain = append(resp.CustodyChain, custodyEventResponse{
					Seq:       event.Seq,
					EventType: string(event.EventType),
					Result:    string(event.Result),
					ErrorCode: event.ErrorCode,
					EventHash: event.EventHash,
					CreatedAt: event.CreatedAt.UTC().Format(time.RFC3339Nano),
				})
			}
		}
	}
	if s.attempts != nil {
		attempts, err := s.attempts.ListByRecord(c.Request.Context(), id)
		if err == nil {
			for _, attempt := range attempts {
				resp.AnchorAttempts = append(resp.AnchorAttempts, anchorAttemptResponse{
					Provider:  attempt.Provider,
					Status:    attempt.Status,
					ErrorCode: attempt.ErrorCode,
					DigestHex: attempt.DigestHex,
					CreatedAt: attempt.CreatedAt.UTC().Format(time.RFC3339Nano),
				})
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func buildMediaResponse(record domain.MediaRecord) mediaResponse {
	resp := mediaResponse{
		ID:           record.ID,
		URL:          record.URL,
		Title:        record.Title,
		UnsignedKey:  record.UnsignedKey,
		SignedKey:    record.SignedKey,
		SignatureAlg: record.SignatureAlg,
		ProofStatus:  string(record.ProofStatus),
	}
	if !record.DownloadDate.IsZero() {
		resp.DownloadDate = record.DownloadDate.UTC().Format(time.RFC3339)
	}
	if len(record.Signature) > 0 {
		resp.Signature = base64.StdEncoding.EncodeToString(record.Signature)
	}
	if record.SignedAt != nil {
		resp.SignedAt = record.SignedAt.UTC().Format(time.RFC3339Nano)
	}
	return resp
}

func (s *Server) requireAdmin(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key required")
		return false
	}
	key := c.GetHeader("X-Admin-Key")
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) != 1 {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid admin key")
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrAlreadySigned):
		status, code = http.StatusConflict, "ALREADY_SIGNED"
	case errors.Is(err, domain.ErrSigner):
		status, code = http.StatusInternalServerError, "SIGNER_FAULT"
	case errors.Is(err, domain.ErrAnchor):
		status, code = http.StatusBadGateway, "ANCHOR_FAULT"
	case domain.IsTransient(err):
		status, code = http.StatusServiceUnavailable, "TRANSIENT"
	}
	c.JSON(status, errorResponse{Code: code, Message: err.Error()})
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
