package evaluator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
	"github.com/ogulcanaydogan/pitchwatch/pkg/stats"
)

// Snapshot is a metric value observed for one rule in one pass.
type Snapshot struct {
	Value   float64
	Message string
}

// Resolver turns a rule's metric type into a current value and message.
type Resolver struct {
	provider stats.Provider
	logger   *slog.Logger
}

// NewResolver creates a Resolver querying provider.
func NewResolver(provider stats.Provider, logger *slog.Logger) *Resolver {
	return &Resolver{provider: provider, logger: logger}
}

// Resolve queries the provider for the rule's metric. ok is false when the
// provider failed, omitted the figure, or the metric type is unknown; the
// rule is then skipped for this pass.
func (r *Resolver) Resolve(ctx context.Context, rule model.AlertRule) (Snapshot, bool) {
	switch rule.MetricType {
	case model.MetricErrorRate:
		report, ok := r.performance(ctx, rule)
		if !ok || report.ErrorRates == nil {
			return Snapshot{}, false
		}
		var errCount, total int64
		for _, er := range report.ErrorRates {
			errCount += er.ErrorCount
			total += er.TotalRequests
		}
		value := 0.0
		if total > 0 {
			value = float64(errCount) / float64(total) * 100
		}
		return Snapshot{
			Value: value,
			Message: fmt.Sprintf("에러율이 %.2f%%로 임계값(%s%%)을 %s",
				value, humanize.Ftoa(rule.ThresholdValue), outcome(rule.ThresholdOperator)),
		}, true

	case model.MetricAPIResponseTime:
		report, ok := r.performance(ctx, rule)
		if !ok || report.APIResponse == nil {
			return Snapshot{}, false
		}
		value := report.APIResponse.Average
		return Snapshot{
			Value: value,
			Message: fmt.Sprintf("API 평균 응답 시간이 %.2fms로 임계값(%sms)을 %s",
				value, humanize.Ftoa(rule.ThresholdValue), outcome(rule.ThresholdOperator)),
		}, true

	case model.MetricPageLoadTime:
		report, ok := r.performance(ctx, rule)
		if !ok || report.PageLoad == nil {
			return Snapshot{}, false
		}
		value := report.PageLoad.Average
		return Snapshot{
			Value: value,
			Message: fmt.Sprintf("페이지 평균 로드 시간이 %.2fms로 임계값(%sms)을 %s",
				value, humanize.Ftoa(rule.ThresholdValue), outcome(rule.ThresholdOperator)),
		}, true

	case model.MetricCost:
		report, err := r.provider.CostAnalysis(ctx, model.Window1Month)
		if err != nil {
			r.providerFailed(rule, err)
			return Snapshot{}, false
		}
		if report == nil || report.TotalCost == nil {
			return Snapshot{}, false
		}
		value := *report.TotalCost
		return Snapshot{
			Value: value,
			Message: fmt.Sprintf("월간 비용이 %s원으로 임계값(%s원)을 %s",
				humanize.Commaf(value), humanize.Commaf(rule.ThresholdValue), outcome(rule.ThresholdOperator)),
		}, true

	case model.MetricUserCount:
		report, err := r.provider.TimeSeriesStats(ctx, model.Window7Days)
		if err != nil {
			r.providerFailed(rule, err)
			return Snapshot{}, false
		}
		if report == nil || report.Data == nil {
			return Snapshot{}, false
		}
		var users int64
		for _, point := range report.Data {
			users += point.Users
		}
		return Snapshot{
			Value: float64(users),
			Message: fmt.Sprintf("7일간 신규 사용자 수가 %s명으로 임계값(%s명)을 %s",
				humanize.Comma(users), humanize.Commaf(rule.ThresholdValue), outcome(rule.ThresholdOperator)),
		}, true

	default:
		r.logger.Warn("no resolver for metric type", "rule", rule.ID, "metric", rule.MetricType)
		return Snapshot{}, false
	}
}

func (r *Resolver) performance(ctx context.Context, rule model.AlertRule) (*stats.PerformanceReport, bool) {
	report, err := r.provider.PerformanceMetrics(ctx, model.Window24Hours)
	if err != nil {
		r.providerFailed(rule, err)
		return nil, false
	}
	return report, report != nil
}

func (r *Resolver) providerFailed(rule model.AlertRule, err error) {
	r.logger.Warn("metric provider failed",
		"rule", rule.ID,
		"metric", rule.MetricType,
		"error", err,
	)
}

// outcome words the breach direction for the alert message.
func outcome(op model.Operator) string {
	switch op {
	case model.OpLessThan, model.OpLessOrEqual:
		return "밑돌았습니다."
	case model.OpEqual:
		return "기록했습니다."
	default:
		return "초과했습니다."
	}
}
