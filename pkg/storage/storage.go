package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
)

var (
	// ErrNotFound is returned when a rule or history row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotPending is returned when a status update targets a history row
	// that already reached a terminal state.
	ErrNotPending = errors.New("history row is not pending")
)

// Storage is the persistence layer for alert rules and alert history.
type Storage interface {
	// CreateRule validates and persists a new rule, assigning its ID.
	CreateRule(ctx context.Context, rule *model.AlertRule) error

	// GetRule retrieves a rule by ID.
	GetRule(ctx context.Context, id string) (*model.AlertRule, error)

	// ListRules returns every rule ordered by creation time.
	ListRules(ctx context.Context) ([]model.AlertRule, error)

	// ListEnabledRules returns the rules the evaluator should check.
	ListEnabledRules(ctx context.Context) ([]model.AlertRule, error)

	SetRuleEnabled(ctx context.Context, id string, enabled bool) error

	// DeleteRule removes a rule together with its history.
	DeleteRule(ctx context.Context, id string) error

	// MarkRuleTriggered records when a rule last fired.
	MarkRuleTriggered(ctx context.Context, id string, at time.Time) error

	// InsertHistory appends a pending history row and returns its ID.
	InsertHistory(ctx context.Context, h *model.AlertHistory) (string, error)

	// MarkSent moves a pending row to sent.
	MarkSent(ctx context.Context, id string, at time.Time) error

	// MarkFailed moves a pending row to failed.
	MarkFailed(ctx context.Context, id, errMsg string) error

	// ListHistory returns history rows, newest first.
	ListHistory(ctx context.Context, filter model.HistoryFilter) ([]model.AlertHistory, error)

	// DB exposes the underlying handle so analytics queries share the connection.
	DB() *sql.DB

	Close() error
}

type rowScanner interface {
	Scan(dest ...any) error
}

const ruleColumns = `id, name, description, metric_type, threshold_value, threshold_operator,
	check_interval_minutes, cooldown_minutes, enabled, channels, last_triggered_at, created_at, updated_at`

const historyColumns = `id, rule_id, metric_type, metric_value, threshold_value, message,
	channel, status, sent_at, error_message, created_at`

// prepareRule fills defaults and server-assigned fields, then validates.
func prepareRule(rule *model.AlertRule) error {
	rule.ApplyDefaults()
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now
	return nil
}

// prepareHistory assigns the ID and forces the row into the pending state.
func prepareHistory(h *model.AlertHistory) {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	h.Status = model.StatusPending
	h.SentAt = nil
	h.ErrorMessage = ""
}

// scanRule reads one rule row. channels receives the dialect-specific
// encoding of the channel list and is decoded by the caller.
func scanRule(row rowScanner, channels any) (model.AlertRule, error) {
	var (
		r         model.AlertRule
		triggered sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.MetricType, &r.ThresholdValue,
		&r.ThresholdOperator, &r.CheckIntervalMinutes, &r.CooldownMinutes, &r.Enabled,
		channels, &triggered, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	if triggered.Valid {
		t := triggered.Time
		r.LastTriggeredAt = &t
	}
	return r, nil
}

func scanHistory(row rowScanner) (model.AlertHistory, error) {
	var (
		h      model.AlertHistory
		sentAt sql.NullTime
	)
	err := row.Scan(&h.ID, &h.RuleID, &h.MetricType, &h.MetricValue, &h.ThresholdValue,
		&h.Message, &h.Channel, &h.Status, &sentAt, &h.ErrorMessage, &h.CreatedAt)
	if err != nil {
		return h, err
	}
	if sentAt.Valid {
		t := sentAt.Time
		h.SentAt = &t
	}
	return h, nil
}

// buildHistoryQuery constructs the history listing query. placeholder
// renders the n-th bind parameter for the target dialect.
func buildHistoryQuery(filter model.HistoryFilter, placeholder func(n int) string) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if filter.RuleID != "" {
		args = append(args, filter.RuleID)
		conditions = append(conditions, "rule_id = "+placeholder(len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conditions = append(conditions, "status = "+placeholder(len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = model.DefaultHistoryLimit
	}

	query := "SELECT " + historyColumns + " FROM alert_history"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += " ORDER BY created_at DESC LIMIT " + placeholder(len(args))
	return query, args
}

// checkAffected converts a zero-row update into err.
func checkAffected(result sql.Result, err error) error {
	n, rerr := result.RowsAffected()
	if rerr != nil {
		return fmt.Errorf("check rows affected: %w", rerr)
	}
	if n == 0 {
		return err
	}
	return nil
}
