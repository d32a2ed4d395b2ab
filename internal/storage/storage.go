// Package storage defines the usage ledger that records every context
// accounting call.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a usage record does not exist.
var ErrNotFound = errors.New("usage record not found")

// UsageRecord is the outcome of one accounting request.
type UsageRecord struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id,omitempty"`
	Model     string    `json:"model,omitempty"`
	Encoding  string    `json:"encoding"`
	Content   int       `json:"content"`
	Resources int       `json:"resources"`
	Documents int       `json:"documents"`
	WebSearch int       `json:"web_search"`
	Messages  int       `json:"messages"`
	Total     int       `json:"total"`
	Window    int       `json:"window,omitempty"`
	Exceeded  bool      `json:"exceeded"`
	CreatedAt time.Time `json:"created_at"`
}

// ListOptions controls pagination of usage listings.
type ListOptions struct {
	Limit  int
	Offset int
	Model  string // optional exact-match filter
}

// DefaultListLimit applies when ListOptions.Limit is zero.
const DefaultListLimit = 100

// UsageStore persists usage records.
type UsageStore interface {
	// RecordUsage saves a record. CreatedAt is set when zero.
	RecordUsage(ctx context.Context, rec *UsageRecord) error

	// GetUsage retrieves a record by ID.
	GetUsage(ctx context.Context, id string) (*UsageRecord, error)

	// ListUsage lists records newest first.
	ListUsage(ctx context.Context, opts ListOptions) ([]*UsageRecord, error)

	// Close closes the storage connection
	Close() error
}
