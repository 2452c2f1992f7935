package evaluator_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ogulcanaydogan/pitchwatch/pkg/alerts"
	"github.com/ogulcanaydogan/pitchwatch/pkg/evaluator"
	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
	"github.com/ogulcanaydogan/pitchwatch/pkg/stats"
	"github.com/ogulcanaydogan/pitchwatch/pkg/storage"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeProvider serves canned analytics figures.
type fakeProvider struct {
	perf    *stats.PerformanceReport
	perfErr error
	cost    *stats.CostReport
	costErr error
	series  *stats.TimeSeriesReport
	seriesE error
	panics  bool

	mu      sync.Mutex
	windows []model.Window
}

func (f *fakeProvider) record(w model.Window) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.windows = append(f.windows, w)
}

func (f *fakeProvider) PerformanceMetrics(_ context.Context, w model.Window) (*stats.PerformanceReport, error) {
	f.record(w)
	if f.panics {
		panic("provider exploded")
	}
	return f.perf, f.perfErr
}

func (f *fakeProvider) CostAnalysis(_ context.Context, w model.Window) (*stats.CostReport, error) {
	f.record(w)
	if f.panics {
		panic("provider exploded")
	}
	return f.cost, f.costErr
}

func (f *fakeProvider) TimeSeriesStats(_ context.Context, w model.Window) (*stats.TimeSeriesReport, error) {
	f.record(w)
	if f.panics {
		panic("provider exploded")
	}
	return f.series, f.seriesE
}

func costOf(v float64) *stats.CostReport {
	return &stats.CostReport{TotalCost: &v}
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// endpoint is an httptest server that counts requests and answers with status.
type endpoint struct {
	*httptest.Server
	hits atomic.Int32
}

func newEndpoint(t *testing.T, status int) *endpoint {
	t.Helper()
	e := &endpoint{}
	e.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		e.hits.Add(1)
		w.WriteHeader(status)
	}))
	t.Cleanup(e.Close)
	return e
}

func newTestEvaluator(t *testing.T, store *storage.SQLite, provider stats.Provider, registry *alerts.Registry, opts evaluator.Options) *evaluator.Evaluator {
	t.Helper()
	logger := testLogger()
	resolver := evaluator.NewResolver(provider, logger)
	dispatcher := evaluator.NewDispatcher(store, registry, nil, logger)
	return evaluator.New(store, resolver, dispatcher, nil, nil, logger, opts)
}

func createRule(t *testing.T, store storage.Storage, rule model.AlertRule) model.AlertRule {
	t.Helper()
	if rule.Name == "" {
		rule.Name = string(rule.MetricType) + " rule"
	}
	require.NoError(t, store.CreateRule(context.Background(), &rule))
	return rule
}

func allHistory(t *testing.T, store storage.Storage) []model.AlertHistory {
	t.Helper()
	rows, err := store.ListHistory(context.Background(), model.HistoryFilter{Limit: 1000})
	require.NoError(t, err)
	return rows
}

func historyByChannel(t *testing.T, store storage.Storage) map[string]model.AlertHistory {
	t.Helper()
	out := make(map[string]model.AlertHistory)
	for _, h := range allHistory(t, store) {
		out[h.Channel] = h
	}
	return out
}

