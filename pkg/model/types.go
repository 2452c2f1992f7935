package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MetricType identifies which analytics figure a rule watches.
type MetricType string

const (
	MetricErrorRate       MetricType = "error_rate"
	MetricAPIResponseTime MetricType = "api_response_time"
	MetricPageLoadTime    MetricType = "page_load_time"
	MetricCost            MetricType = "cost"
	MetricUserCount       MetricType = "user_count"

	// Reserved by the admin UI; no resolver exists for them.
	MetricTraffic     MetricType = "traffic"
	MetricPerformance MetricType = "performance"
)

// MetricTypes lists the metric types the evaluator can resolve.
var MetricTypes = []MetricType{
	MetricErrorRate,
	MetricAPIResponseTime,
	MetricPageLoadTime,
	MetricCost,
	MetricUserCount,
}

// Operator is a threshold comparison operator.
type Operator string

const (
	OpGreaterThan    Operator = ">"
	OpGreaterOrEqual Operator = ">="
	OpLessThan       Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpEqual          Operator = "=="
)

// Operators lists every supported operator.
var Operators = []Operator{OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual, OpEqual}

// Channel names accepted in AlertRule.Channels.
const (
	ChannelWebhook = "webhook"
	ChannelSlack   = "slack"
	ChannelDiscord = "discord"
	ChannelEmail   = "email"
)

// Channels lists every supported delivery channel.
var Channels = []string{ChannelWebhook, ChannelSlack, ChannelDiscord, ChannelEmail}

// AlertStatus is the delivery state of a history row.
type AlertStatus string

const (
	StatusPending AlertStatus = "pending"
	StatusSent    AlertStatus = "sent"
	StatusFailed  AlertStatus = "failed"
)

// DefaultCheckIntervalMinutes is applied when a rule omits its interval.
const DefaultCheckIntervalMinutes = 5

// AlertRule is an operator-defined monitoring policy.
type AlertRule struct {
	ID                   string     `json:"id" db:"id"`
	Name                 string     `json:"name" db:"name"`
	Description          string     `json:"description,omitempty" db:"description"`
	MetricType           MetricType `json:"metric_type" db:"metric_type"`
	ThresholdValue       float64    `json:"threshold_value" db:"threshold_value"`
	ThresholdOperator    Operator   `json:"threshold_operator" db:"threshold_operator"`
	CheckIntervalMinutes int        `json:"check_interval_minutes" db:"check_interval_minutes"`
	CooldownMinutes      int        `json:"cooldown_minutes" db:"cooldown_minutes"`
	Enabled              bool       `json:"enabled" db:"enabled"`
	Channels             []string   `json:"channels" db:"channels"`
	LastTriggeredAt      *time.Time `json:"last_triggered_at,omitempty" db:"last_triggered_at"`
	CreatedAt            time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at" db:"updated_at"`
}

// RuleInput is the operator-writable part of an AlertRule, as accepted by
// the API and rule files. Enabled defaults to true when omitted.
type RuleInput struct {
	Name                 string     `json:"name" yaml:"name"`
	Description          string     `json:"description,omitempty" yaml:"description,omitempty"`
	MetricType           MetricType `json:"metric_type" yaml:"metric_type"`
	ThresholdValue       float64    `json:"threshold_value" yaml:"threshold_value"`
	ThresholdOperator    Operator   `json:"threshold_operator" yaml:"threshold_operator"`
	CheckIntervalMinutes int        `json:"check_interval_minutes,omitempty" yaml:"check_interval_minutes,omitempty"`
	CooldownMinutes      int        `json:"cooldown_minutes,omitempty" yaml:"cooldown_minutes,omitempty"`
	Enabled              *bool      `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Channels             []string   `json:"channels" yaml:"channels"`
}

// Rule converts the input into a new, unsaved rule.
func (in RuleInput) Rule() AlertRule {
	enabled := true
	if in.Enabled != nil {
		enabled = *in.Enabled
	}
	return AlertRule{
		Name:                 in.Name,
		Description:          in.Description,
		MetricType:           in.MetricType,
		ThresholdValue:       in.ThresholdValue,
		ThresholdOperator:    in.ThresholdOperator,
		CheckIntervalMinutes: in.CheckIntervalMinutes,
		CooldownMinutes:      in.CooldownMinutes,
		Enabled:              enabled,
		Channels:             append([]string(nil), in.Channels...),
	}
}

// Input returns the writable fields of r.
func (r AlertRule) Input() RuleInput {
	enabled := r.Enabled
	return RuleInput{
		Name:                 r.Name,
		Description:          r.Description,
		MetricType:           r.MetricType,
		ThresholdValue:       r.ThresholdValue,
		ThresholdOperator:    r.ThresholdOperator,
		CheckIntervalMinutes: r.CheckIntervalMinutes,
		CooldownMinutes:      r.CooldownMinutes,
		Enabled:              &enabled,
		Channels:             append([]string(nil), r.Channels...),
	}
}

// AlertHistory records one notification attempt for one channel.
type AlertHistory struct {
	ID             string      `json:"id" db:"id"`
	RuleID         string      `json:"rule_id" db:"rule_id"`
	MetricType     MetricType  `json:"metric_type" db:"metric_type"`
	MetricValue    float64     `json:"metric_value" db:"metric_value"`
	ThresholdValue float64     `json:"threshold_value" db:"threshold_value"`
	Message        string      `json:"message" db:"message"`
	Channel        string      `json:"channel" db:"channel"`
	Status         AlertStatus `json:"status" db:"status"`
	SentAt         *time.Time  `json:"sent_at,omitempty" db:"sent_at"`
	ErrorMessage   string      `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}

// HistoryFilter controls which history rows are listed.
type HistoryFilter struct {
	RuleID string      `json:"rule_id,omitempty"`
	Status AlertStatus `json:"status,omitempty"`
	Limit  int         `json:"limit,omitempty"`
}

// DefaultHistoryLimit is used when a HistoryFilter has no limit.
const DefaultHistoryLimit = 50

// PassResult is what one evaluation pass reports to its caller.
type PassResult struct {
	Success         bool   `json:"success"`
	AlertsTriggered int    `json:"alertsTriggered"`
	Error           string `json:"error,omitempty"`
	Skipped         bool   `json:"skipped,omitempty"`
}

// ErrInvalidRule wraps every rule validation failure.
var ErrInvalidRule = errors.New("invalid alert rule")

// Validate rejects rule configurations the evaluator could never act on.
func (r *AlertRule) Validate() error {
	var problems []string

	if strings.TrimSpace(r.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !IsKnownMetricType(r.MetricType) {
		problems = append(problems, fmt.Sprintf("unsupported metric type %q", r.MetricType))
	}
	if !IsKnownOperator(r.ThresholdOperator) {
		problems = append(problems, fmt.Sprintf("unsupported operator %q", r.ThresholdOperator))
	}
	if len(r.Channels) == 0 {
		problems = append(problems, "at least one channel is required")
	}
	for _, ch := range r.Channels {
		if !IsKnownChannel(ch) {
			problems = append(problems, fmt.Sprintf("unsupported channel %q", ch))
		}
	}
	if r.CheckIntervalMinutes < 0 {
		problems = append(problems, "check interval must not be negative")
	}
	if r.CooldownMinutes < 0 {
		problems = append(problems, "cooldown must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRule, strings.Join(problems, "; "))
	}
	return nil
}

// ApplyDefaults fills optional fields the same way rule creation always has.
func (r *AlertRule) ApplyDefaults() {
	if r.CheckIntervalMinutes == 0 {
		r.CheckIntervalMinutes = DefaultCheckIntervalMinutes
	}
	for i, ch := range r.Channels {
		r.Channels[i] = strings.ToLower(strings.TrimSpace(ch))
	}
}

// InCooldown reports whether the rule fired too recently to fire again at now.
func (r *AlertRule) InCooldown(now time.Time) bool {
	if r.CooldownMinutes <= 0 || r.LastTriggeredAt == nil {
		return false
	}
	return now.Sub(*r.LastTriggeredAt) < time.Duration(r.CooldownMinutes)*time.Minute
}

// IsKnownMetricType reports whether m has a resolver.
func IsKnownMetricType(m MetricType) bool {
	for _, known := range MetricTypes {
		if m == known {
			return true
		}
	}
	return false
}

// IsKnownOperator reports whether op is a supported comparison.
func IsKnownOperator(op Operator) bool {
	for _, known := range Operators {
		if op == known {
			return true
		}
	}
	return false
}

// IsKnownChannel reports whether ch names a delivery channel.
func IsKnownChannel(ch string) bool {
	for _, known := range Channels {
		if ch == known {
			return true
		}
	}
	return false
}

// Window is a trailing time range an analytics query covers.
type Window string

const (
	Window24Hours Window = "24hours"
	Window7Days   Window = "7days"
	Window1Month  Window = "1month"
)

// WindowBounds returns the start and end of the window ending at now.
func WindowBounds(window Window, now time.Time) (start, end time.Time) {
	end = now.UTC()
	switch window {
	case Window7Days:
		start = end.AddDate(0, 0, -7)
	case Window1Month:
		start = end.AddDate(0, -1, 0)
	default:
		start = end.Add(-24 * time.Hour)
	}
	return start, end
}
