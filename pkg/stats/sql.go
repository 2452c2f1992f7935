package stats

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
)

// Dialect selects the bind parameter syntax of the backing database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Performance sample kinds.
const (
	KindAPIResponse = "api_response"
	KindPageLoad    = "page_load"
)

// SQLProvider implements Provider over the analytics tables created by the
// storage migrations.
type SQLProvider struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// Option configures an SQLProvider.
type Option func(*SQLProvider)

// WithClock overrides the time source used to anchor query windows.
func WithClock(now func() time.Time) Option {
	return func(p *SQLProvider) { p.now = now }
}

// NewSQLProvider creates a provider reading from db.
func NewSQLProvider(db *sql.DB, dialect Dialect, opts ...Option) *SQLProvider {
	p := &SQLProvider{db: db, dialect: dialect, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// rebind rewrites ? placeholders for dialects that number their parameters.
func (p *SQLProvider) rebind(query string) string {
	if p.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (p *SQLProvider) PerformanceMetrics(ctx context.Context, window model.Window) (*PerformanceReport, error) {
	start, end := model.WindowBounds(window, p.now())

	rows, err := p.db.QueryContext(ctx, p.rebind(
		`SELECT path, SUM(CASE WHEN is_error THEN 1 ELSE 0 END), COUNT(*)
		 FROM performance_metrics
		 WHERE kind = ? AND recorded_at >= ? AND recorded_at <= ?
		 GROUP BY path ORDER BY path`),
		KindAPIResponse, start, end)
	if err != nil {
		return nil, fmt.Errorf("query error rates: %w", err)
	}
	report := &PerformanceReport{ErrorRates: []ErrorRate{}}
	for rows.Next() {
		var er ErrorRate
		if err := rows.Scan(&er.Path, &er.ErrorCount, &er.TotalRequests); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan error rate: %w", err)
		}
		report.ErrorRates = append(report.ErrorRates, er)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate error rates: %w", err)
	}
	rows.Close()

	if report.APIResponse, err = p.latency(ctx, KindAPIResponse, start, end); err != nil {
		return nil, err
	}
	if report.PageLoad, err = p.latency(ctx, KindPageLoad, start, end); err != nil {
		return nil, err
	}
	return report, nil
}

func (p *SQLProvider) latency(ctx context.Context, kind string, start, end time.Time) (*LatencyStats, error) {
	var (
		avg   sql.NullFloat64
		count int64
	)
	err := p.db.QueryRowContext(ctx, p.rebind(
		`SELECT AVG(value_ms), COUNT(*) FROM performance_metrics
		 WHERE kind = ? AND recorded_at >= ? AND recorded_at <= ?`),
		kind, start, end).Scan(&avg, &count)
	if err != nil {
		return nil, fmt.Errorf("query %s latency: %w", kind, err)
	}
	if count == 0 || !avg.Valid {
		return nil, nil
	}
	return &LatencyStats{Average: avg.Float64, Count: count}, nil
}

func (p *SQLProvider) CostAnalysis(ctx context.Context, window model.Window) (*CostReport, error) {
	start, end := model.WindowBounds(window, p.now())

	var total float64
	err := p.db.QueryRowContext(ctx, p.rebind(
		`SELECT COALESCE(SUM(amount), 0) FROM cost_records
		 WHERE recorded_at >= ? AND recorded_at <= ?`),
		start, end).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("query total cost: %w", err)
	}
	return &CostReport{TotalCost: &total}, nil
}

func (p *SQLProvider) TimeSeriesStats(ctx context.Context, window model.Window) (*TimeSeriesReport, error) {
	start, end := model.WindowBounds(window, p.now())

	rows, err := p.db.QueryContext(ctx, p.rebind(
		`SELECT created_at FROM users WHERE created_at >= ? AND created_at <= ?`),
		start, end)
	if err != nil {
		return nil, fmt.Errorf("query user signups: %w", err)
	}
	defer rows.Close()

	perDay := make(map[string]int64)
	for rows.Next() {
		var created time.Time
		if err := rows.Scan(&created); err != nil {
			return nil, fmt.Errorf("scan user signup: %w", err)
		}
		perDay[created.UTC().Format(time.DateOnly)]++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user signups: %w", err)
	}

	report := &TimeSeriesReport{Data: []TimeSeriesPoint{}}
	last := truncateDay(end)
	for day := truncateDay(start); !day.After(last); day = day.AddDate(0, 0, 1) {
		key := day.Format(time.DateOnly)
		report.Data = append(report.Data, TimeSeriesPoint{Date: key, Users: perDay[key]})
	}
	return report, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PerformanceSample is one measured request or page load.
type PerformanceSample struct {
	Kind       string
	Path       string
	ValueMS    float64
	IsError    bool
	RecordedAt time.Time
}

// RecordPerformance stores a performance sample.
func (p *SQLProvider) RecordPerformance(ctx context.Context, s PerformanceSample) error {
	if s.Kind != KindAPIResponse && s.Kind != KindPageLoad {
		return fmt.Errorf("unknown performance kind %q", s.Kind)
	}
	if s.RecordedAt.IsZero() {
		s.RecordedAt = p.now()
	}
	_, err := p.db.ExecContext(ctx, p.rebind(
		`INSERT INTO performance_metrics (id, kind, path, value_ms, is_error, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`),
		uuid.New().String(), s.Kind, s.Path, s.ValueMS, s.IsError, s.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert performance sample: %w", err)
	}
	return nil
}

// RecordCost stores one cost line item.
func (p *SQLProvider) RecordCost(ctx context.Context, service string, amount float64, at time.Time) error {
	if at.IsZero() {
		at = p.now()
	}
	_, err := p.db.ExecContext(ctx, p.rebind(
		`INSERT INTO cost_records (id, service, amount, recorded_at) VALUES (?, ?, ?, ?)`),
		uuid.New().String(), service, amount, at.UTC())
	if err != nil {
		return fmt.Errorf("insert cost record: %w", err)
	}
	return nil
}

// RecordUser stores a user signup. An empty id is generated.
func (p *SQLProvider) RecordUser(ctx context.Context, id string, createdAt time.Time) error {
	if id == "" {
		id = uuid.New().String()
	}
	if createdAt.IsZero() {
		createdAt = p.now()
	}
	_, err := p.db.ExecContext(ctx, p.rebind(
		`INSERT INTO users (id, created_at) VALUES (?, ?)`), id, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}
