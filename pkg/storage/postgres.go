package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
)

// Postgres implements Storage on PostgreSQL. Rule channels are stored as a
// native TEXT[] column.
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects to PostgreSQL, verifies the connection and applies
// pending migrations.
func NewPostgres(dsn string, logger *slog.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db, postgresMigrations, "INSERT INTO schema_migrations (version) VALUES ($1)"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("connected to postgres")
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an already-open handle without running migrations.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) CreateRule(ctx context.Context, rule *model.AlertRule) error {
	if err := prepareRule(rule); err != nil {
		return err
	}

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO alert_rules (`+ruleColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rule.ID, rule.Name, rule.Description, string(rule.MetricType), rule.ThresholdValue,
		string(rule.ThresholdOperator), rule.CheckIntervalMinutes, rule.CooldownMinutes, rule.Enabled,
		pq.Array(rule.Channels), rule.LastTriggeredAt, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("rule %q already exists", rule.ID)
		}
		return fmt.Errorf("insert alert rule: %w", err)
	}
	return nil
}

func (p *Postgres) GetRule(ctx context.Context, id string) (*model.AlertRule, error) {
	row := p.db.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM alert_rules WHERE id = $1", id)
	r, err := scanPostgresRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return &r, nil
}

func (p *Postgres) ListRules(ctx context.Context) ([]model.AlertRule, error) {
	return p.queryRules(ctx, "SELECT "+ruleColumns+" FROM alert_rules ORDER BY created_at, id")
}

func (p *Postgres) ListEnabledRules(ctx context.Context) ([]model.AlertRule, error) {
	return p.queryRules(ctx, "SELECT "+ruleColumns+" FROM alert_rules WHERE enabled = TRUE ORDER BY created_at, id")
}

func (p *Postgres) queryRules(ctx context.Context, query string) ([]model.AlertRule, error) {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []model.AlertRule
	for rows.Next() {
		r, err := scanPostgresRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule row: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func scanPostgresRule(row rowScanner) (model.AlertRule, error) {
	var channels pq.StringArray
	r, err := scanRule(row, &channels)
	if err != nil {
		return r, err
	}
	r.Channels = []string(channels)
	return r, nil
}

func (p *Postgres) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE alert_rules SET enabled = $1, updated_at = NOW() WHERE id = $2`, enabled, id)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return checkAffected(result, fmt.Errorf("rule %q: %w", id, ErrNotFound))
}

func (p *Postgres) DeleteRule(ctx context.Context, id string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_history WHERE rule_id = $1`, id); err != nil {
		return fmt.Errorf("delete rule history: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
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

func (p *Postgres) MarkRuleTriggered(ctx context.Context, id string, at time.Time) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE alert_rules SET last_triggered_at = $1 WHERE id = $2`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark rule triggered: %w", err)
	}
	return checkAffected(result, fmt.Errorf("rule %q: %w", id, ErrNotFound))
}

func (p *Postgres) InsertHistory(ctx context.Context, h *model.AlertHistory) (string, error) {
	prepareHistory(h)
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO alert_history (`+historyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		h.ID, h.RuleID, string(h.MetricType), h.MetricValue, h.ThresholdValue, h.Message,
		h.Channel, string(h.Status), nil, h.ErrorMessage, h.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert alert history: %w", err)
	}
	return h.ID, nil
}

func (p *Postgres) MarkSent(ctx context.Context, id string, at time.Time) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE alert_history SET status = 'sent', sent_at = $1 WHERE id = $2 AND status = 'pending'`,
		at.UTC(), id)
	if err != nil {
		return fmt.Errorf("mark history sent: %w", err)
	}
	return checkAffected(result, fmt.Errorf("history %q: %w", id, ErrNotPending))
}

func (p *Postgres) MarkFailed(ctx context.Context, id, errMsg string) error {
	result, err := p.db.ExecContext(ctx,
		`UPDATE alert_history SET status = 'failed', error_message = $1 WHERE id = $2 AND status = 'pending'`,
		errMsg, id)
	if err != nil {
		return fmt.Errorf("mark history failed: %w", err)
	}
	return checkAffected(result, fmt.Errorf("history %q: %w", id, ErrNotPending))
}

func (p *Postgres) ListHistory(ctx context.Context, filter model.HistoryFilter) ([]model.AlertHistory, error) {
	query, args := buildHistoryQuery(filter, func(n int) string { return "$" + strconv.Itoa(n) })
	rows, err := p.db.QueryContext(ctx, query, args...)
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

func (p *Postgres) DB() *sql.DB { return p.db }

func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
