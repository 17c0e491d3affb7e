package storage

import (
	"context"
	"time"
)

// Stage identifies which half of the pipeline issued a request.
type Stage string

const (
	StageSearch Stage = "search"
	StagePage   Stage = "page"
)

// Outcome classifies how a single outbound request ended. Every value other
// than OutcomeOK means the caller degrades to an empty result.
type Outcome string

const (
	OutcomeOK                  Outcome = "ok"
	OutcomeUpstreamUnavailable Outcome = "upstream_unavailable"
	OutcomeNetworkFailure      Outcome = "network_failure"
	OutcomeBlocked             Outcome = "blocked"
)

// Degraded reports whether the outcome carries no usable data.
func (o Outcome) Degraded() bool {
	return o != OutcomeOK
}

// FetchRecord is the audit entry for one outbound request. Body is kept in
// memory for parsing and detection only and is never persisted.
type FetchRecord struct {
	ID           string              `json:"id"`
	Stage        Stage               `json:"stage"`
	URL          string              `json:"url"`
	StatusCode   int                 `json:"status_code"`
	Headers      map[string][]string `json:"-"`
	Body         []byte              `json:"-"`
	Bytes        int64               `json:"bytes"`
	Duration     time.Duration       `json:"duration"`
	Outcome      Outcome             `json:"outcome"`
	DetectedBot  bool                `json:"detected_bot"`
	DetectionSrc string              `json:"detection_src,omitempty"` // e.g. "Cloudflare", "Bing"
	CreatedAt    time.Time           `json:"created_at"`
	Error        string              `json:"error,omitempty"` // non-empty if the request failed before a response
}

// Filter allows querying for specific FetchRecords.
type Filter struct {
	Stage   Stage
	URL     string
	Outcome Outcome
	Since   *time.Time
	Limit   int
	Offset  int
}

// Match reports whether r satisfies every set field of the filter. Limit and
// Offset are not considered.
func (f Filter) Match(r *FetchRecord) bool {
	if f.Stage != "" && r.Stage != f.Stage {
		return false
	}
	if f.URL != "" && r.URL != f.URL {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	if f.Since != nil && r.CreatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Backend defines the interface for storing and querying fetch records.
type Backend interface {
	Save(ctx context.Context, record *FetchRecord) error
	Query(ctx context.Context, filter Filter) ([]*FetchRecord, error)
	Close() error
}
