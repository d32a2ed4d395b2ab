package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tjfontaine/polyglot-context/internal/storage"
)

func TestStore_RecordAndGet(t *testing.T) {
	store := New()
	ctx := context.Background()

	rec := &storage.UsageRecord{
		ID:        "usage-1",
		RequestID: "req-1",
		Model:     "gpt-4o",
		Encoding:  "o200k_base",
		Content:   10,
		Total:     10,
	}
	if err := store.RecordUsage(ctx, rec); err != nil {
		t.Fatalf("RecordUsage() error = %v", err)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	got, err := store.GetUsage(ctx, "usage-1")
	if err != nil {
		t.Fatalf("GetUsage() error = %v", err)
	}
	if got.Model != "gpt-4o" || got.Total != 10 {
		t.Errorf("GetUsage() = %+v", got)
	}

	// Returned records are copies.
	got.Total = 99
	again, _ := store.GetUsage(ctx, "usage-1")
	if again.Total != 10 {
		t.Error("mutating a returned record changed the store")
	}

	if err := store.RecordUsage(ctx, &storage.UsageRecord{ID: "usage-1"}); err == nil {
		t.Error("expected duplicate ID error")
	}
}

func TestStore_GetUsageNotFound(t *testing.T) {
	_, err := New().GetUsage(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_ListUsage(t *testing.T) {
	store := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		model := "gpt-4o"
		if i%2 == 1 {
			model = "claude-3-haiku"
		}
		rec := &storage.UsageRecord{
			ID:        fmt.Sprintf("usage-%d", i),
			Model:     model,
			Encoding:  "cl100k_base",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.RecordUsage(ctx, rec); err != nil {
			t.Fatalf("RecordUsage() error = %v", err)
		}
	}

	tests := []struct {
		name string
		opts storage.ListOptions
		want []string
	}{
		{"all newest first", storage.ListOptions{}, []string{"usage-4", "usage-3", "usage-2", "usage-1", "usage-0"}},
		{"limit", storage.ListOptions{Limit: 2}, []string{"usage-4", "usage-3"}},
		{"offset", storage.ListOptions{Limit: 2, Offset: 3}, []string{"usage-1", "usage-0"}},
		{"model filter", storage.ListOptions{Model: "claude-3-haiku"}, []string{"usage-3", "usage-1"}},
		{"past end", storage.ListOptions{Offset: 10}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListUsage(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListUsage() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ListUsage() returned %d records, want %d", len(got), len(tt.want))
			}
			for i, rec := range got {
				if rec.ID != tt.want[i] {
					t.Errorf("record %d = %s, want %s", i, rec.ID, tt.want[i])
				}
			}
		})
	}
}
