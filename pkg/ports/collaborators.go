package ports

import (
	"context"

	"github.com/epivigil/epivigil/pkg/domain"
)

// MetricsProvider computes the fixed SRAG rate set for a time window and
// optional region filter. The core treats it as opaque.
type MetricsProvider interface {
	Metrics(ctx context.Context, days int, region string) (domain.MetricSet, error)
	DailySeries(ctx context.Context, days int) ([]domain.ChartPoint, error)
	MonthlySeries(ctx context.Context, months int) ([]domain.ChartPoint, error)
}

// QueryExecutor runs read-only analytic queries against the case store.
type QueryExecutor interface {
	Schema(ctx context.Context, table string) (string, error)
	Query(ctx context.Context, sql string) ([]map[string]any, error)
}

// Dictionary looks up dataset field definitions, exactly or by similarity.
type Dictionary interface {
	Lookup(ctx context.Context, field string) (domain.FieldDef, bool, error)
	Search(ctx context.Context, query string, k int) ([]domain.FieldDef, error)
}

// NewsProvider searches recent news. Implementations must not return an
// article without a resolvable publication date inside the requested window.
type NewsProvider interface {
	Search(ctx context.Context, query string, days, max int) ([]domain.Article, error)
}
