// Package stats serves the analytics figures alert rules are evaluated
// against: request performance, operating cost and user growth.
package stats

import (
	"context"

	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
)

// Provider answers analytics queries over a trailing window.
type Provider interface {
	PerformanceMetrics(ctx context.Context, window model.Window) (*PerformanceReport, error)
	CostAnalysis(ctx context.Context, window model.Window) (*CostReport, error)
	TimeSeriesStats(ctx context.Context, window model.Window) (*TimeSeriesReport, error)
}

// ErrorRate is the error tally for one request path.
type ErrorRate struct {
	Path          string `json:"path"`
	ErrorCount    int64  `json:"errorCount"`
	TotalRequests int64  `json:"totalRequests"`
}

// LatencyStats summarises response times in milliseconds.
type LatencyStats struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// PerformanceReport groups request metrics. Latency fields are nil when the
// window holds no samples of that kind.
type PerformanceReport struct {
	ErrorRates  []ErrorRate   `json:"errorRates,omitempty"`
	APIResponse *LatencyStats `json:"apiResponseStats,omitempty"`
	PageLoad    *LatencyStats `json:"pageLoadStats,omitempty"`
}

type CostReport struct {
	TotalCost *float64 `json:"totalCost,omitempty"`
}

// TimeSeriesPoint is one UTC day of activity.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Users int64  `json:"users"`
}

type TimeSeriesReport struct {
	Data []TimeSeriesPoint `json:"data,omitempty"`
}
