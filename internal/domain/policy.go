package domain

import "context"

// PolicyInput is what the registration admission policy sees about a
// candidate source.
type PolicyInput struct {
	URL       string `json:"url"`
	Title     string `json:"title,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	BundleID   string       `json:"bundle_id,omitempty"`
	BundleHash string       `json:"bundle_hash"`
	Result     PolicyResult `json:"result"`
}

// AdmissionPolicy gates registration of new sources. Nil wiring means every
// source is admitted.
type AdmissionPolicy interface {
	Evaluate(ctx context.Context, input PolicyInput) (PolicyEvaluation, error)
}
