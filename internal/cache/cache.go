package cache

import (
	"context"
	"time"

	"gudangku/backend/internal/domain"
)

// DashboardCache holds computed dashboard summaries for a short TTL so that
// repeated dashboard loads do not re-run the aggregate queries. Implementations
// must be safe for concurrent use.
type DashboardCache interface {
	Get(ctx context.Context, key string) (*domain.DashboardSummary, bool, error)
	Set(ctx context.Context, key string, summary *domain.DashboardSummary, ttl time.Duration) error
	// Invalidate drops every cached summary. Called after any mutation that
	// changes the aggregates.
	Invalidate(ctx context.Context) error
	Close() error
}

// Noop satisfies DashboardCache while caching nothing. Used when no redis
// address is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) Get(context.Context, string) (*domain.DashboardSummary, bool, error) {
	return nil, false, nil
}

func (*Noop) Set(context.Context, string, *domain.DashboardSummary, time.Duration) error {
	return nil
}

func (*Noop) Invalidate(context.Context) error { return nil }

func (*Noop) Close() error { return nil }
