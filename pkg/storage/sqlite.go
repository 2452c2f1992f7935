package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLite implements Storage using an SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates an SQLite database at the given path.
func NewSQLite(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; concurrent rule evaluation queues here.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := runMigrations(db, sqliteMigrations, "INSERT INTO schema_migrations (version) VALUES (?)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) CreateRule(ctx context.Context, rule *model.AlertRule) error {
	if err := prepareRule(rule); err != nil {
		return err
	}
	channels, err := json.Marshal(rule.Channels)
	if err != nil {
		return fmt.Errorf("encode channels: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_rules (`+ruleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Name, rule.Description, rule.MetricType, rule.ThresholdValue,
		rule.ThresholdOperator, rule.CheckIntervalMinutes, rule.CooldownMinutes, rule.Enabled,
		string(channels), rule.LastTriggeredAt, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

func (s *SQLite) GetRule(ctx context.Context, id string) (*model.AlertRule, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM alert_rules WHERE id = ?", id)
	r, err := s.scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return &r, nil
}

func (s *SQLite) ListRules(ctx context.Context) ([]model.AlertRule, error) {
	return s.queryRules(ctx, "SELECT "+ruleColumns+" FROM alert_rules ORDER BY created_at, id")
}

func (s *SQLite) ListEnabledRules(ctx context.Context) ([]model.AlertRule, error) {
	return s.queryRules(ctx, "SELECT "+ruleColumns+" FROM alert_rules WHERE enabled = 1 ORDER BY created_at, id")
}

func (s *SQLite) queryRules(ctx context.Context, query string, args ...any) ([]model.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []model.AlertRule
	for rows.Next() {
		r, err := s.scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *SQLite) scanRule(row rowScanner) (model.AlertRule, error) {
	var channels string
	r, err := scanRule(row, &channels)
	if err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(channels), &r.Channels); err != nil {
		return r, fmt.Errorf("decode channels: %w", err)
	}
	return r, nil
}

func (s *SQLite) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE alert_rules SET enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return checkAffected(result, fmt.Errorf("rule %q: %w", id, ErrNotFound))
}

func (s *SQLite) DeleteRule(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_history WHERE rule_id = ?`, id); err != nil {
		return fmt.Errorf("delete rule history: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if err := checkAffected(result, fmt.Errorf("rule %q: %w", id, ErrNotFound)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func (s *SQLite) MarkRuleTriggered(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE alert_rules SET last_triggered_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark rule triggered: %w", err)
	}
	return checkAffected(result, fmt.Errorf("rule %q: %w", id, ErrNotFound))
}

func (s *SQLite) InsertHistory(ctx context.Context, h *model.AlertHistory) (string, error) {
	prepareHistory(h)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_history (`+historyColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.RuleID, h.MetricType, h.MetricValue, h.ThresholdValue, h.Message,
		h.Channel, h.Status, nil, h.ErrorMessage, h.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert alert history: %w", err)
	}
	return h.ID, nil
}

func (s *SQLite) MarkSent(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE alert_history SET status = 'sent', sent_at = ? WHERE id = ? AND status = 'pending'`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark history sent: %w", err)
	}
	return checkAffected(result, fmt.Errorf("history %q: %w", id, ErrNotPending))
}

func (s *SQLite) MarkFailed(ctx context.Context, id, errMsg string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE alert_history SET status = 'failed', error_message = ? WHERE id = ? AND status = 'pending'`,
		errMsg, id)
	if err != nil {
		return fmt.Errorf("mark history failed: %w", err)
	}
	return checkAffected(result, fmt.Errorf("history %q: %w", id, ErrNotPending))
}

func (s *SQLite) ListHistory(ctx context.Context, filter model.HistoryFilter) ([]model.AlertHistory, error) {
	query, args := buildHistoryQuery(filter, func(int) string { return "?" })
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var history []model.AlertHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Close() error {
	return s.db.Close()
}
