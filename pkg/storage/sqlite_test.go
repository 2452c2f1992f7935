package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
	"github.com/ogulcanaydogan/pitchwatch/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func costRule(name string) *model.AlertRule {
	return &model.AlertRule{
		Name:              name,
		MetricType:        model.MetricCost,
		ThresholdValue:    1_000_000,
		ThresholdOperator: model.OpGreaterThan,
		Enabled:           true,
		Channels:          []string{"webhook", "slack"},
	}
}

func TestSQLite_CreateRule(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rule := costRule("monthly cost")
	require.NoError(t, db.CreateRule(ctx, rule))
	assert.NotEmpty(t, rule.ID)
	assert.Equal(t, model.DefaultCheckIntervalMinutes, rule.CheckIntervalMinutes)
	assert.False(t, rule.CreatedAt.IsZero())

	got, err := db.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "monthly cost", got.Name)
	assert.Equal(t, model.MetricCost, got.MetricType)
	assert.Equal(t, model.OpGreaterThan, got.ThresholdOperator)
	assert.InDelta(t, 1_000_000, got.ThresholdValue, 0.001)
	assert.True(t, got.Enabled)
	assert.Equal(t, []string{"webhook", "slack"}, got.Channels)
	assert.Nil(t, got.LastTriggeredAt)
}

func TestSQLite_CreateRule_Invalid(t *testing.T) {
	db := newTestDB(t)

	rule := costRule("bad")
	rule.ThresholdOperator = "!="
	err := db.CreateRule(context.Background(), rule)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrInvalidRule)

	rules, err := db.ListRules(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestSQLite_GetRule_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetRule(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLite_ListEnabledRules(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := costRule("first")
	second := costRule("second")
	second.Enabled = false
	third := costRule("third")
	for _, r := range []*model.AlertRule{first, second, third} {
		require.NoError(t, db.CreateRule(ctx, r))
	}

	all, err := db.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	enabled, err := db.ListEnabledRules(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, "first", enabled[0].Name)
	assert.Equal(t, "third", enabled[1].Name)
}

func TestSQLite_SetRuleEnabled(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rule := costRule("toggle")
	require.NoError(t, db.CreateRule(ctx, rule))
	require.NoError(t, db.SetRuleEnabled(ctx, rule.ID, false))

	enabled, err := db.ListEnabledRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, enabled)

	err = db.SetRuleEnabled(ctx, "missing", true)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLite_DeleteRule(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rule := costRule("doomed")
	require.NoError(t, db.CreateRule(ctx, rule))
	_, err := db.InsertHistory(ctx, &model.AlertHistory{RuleID: rule.ID, MetricType: model.MetricCost, Channel: "webhook", Message: "m"})
	require.NoError(t, err)

	require.NoError(t, db.DeleteRule(ctx, rule.ID))

	_, err = db.GetRule(ctx, rule.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	history, err := db.ListHistory(ctx, model.HistoryFilter{RuleID: rule.ID})
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.ErrorIs(t, db.DeleteRule(ctx, rule.ID), storage.ErrNotFound)
}

func TestSQLite_MarkRuleTriggered(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rule := costRule("fires")
	require.NoError(t, db.CreateRule(ctx, rule))

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.MarkRuleTriggered(ctx, rule.ID, at))

	got, err := db.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, at.Equal(*got.LastTriggeredAt))
}

func TestSQLite_HistoryLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	h := &model.AlertHistory{
		RuleID:         "rule-1",
		MetricType:     model.MetricCost,
		MetricValue:    1_500_000,
		ThresholdValue: 1_000_000,
		Message:        "over budget",
		Channel:        "webhook",
		Status:         model.StatusSent,
	}
	id, err := db.InsertHistory(ctx, h)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	rows, err := db.ListHistory(ctx, model.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.StatusPending, rows[0].Status, "inserted rows always start pending")
	assert.Nil(t, rows[0].SentAt)

	sentAt := time.Now().UTC()
	require.NoError(t, db.MarkSent(ctx, id, sentAt))

	rows, err = db.ListHistory(ctx, model.HistoryFilter{})
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, rows[0].Status)
	require.NotNil(t, rows[0].SentAt)
}

func TestSQLite_StatusNeverRegresses(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.InsertHistory(ctx, &model.AlertHistory{RuleID: "r", MetricType: model.MetricCost, Channel: "slack", Message: "m"})
	require.NoError(t, err)
	require.NoError(t, db.MarkFailed(ctx, id, "connection refused"))

	err = db.MarkSent(ctx, id, time.Now())
	assert.ErrorIs(t, err, storage.ErrNotPending)
	err = db.MarkFailed(ctx, id, "again")
	assert.ErrorIs(t, err, storage.ErrNotPending)

	rows, err := db.ListHistory(ctx, model.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.StatusFailed, rows[0].Status)
	assert.Equal(t, "connection refused", rows[0].ErrorMessage)
	assert.Nil(t, rows[0].SentAt)
}

func TestSQLite_UpdateTargetsExactRow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	older, err := db.InsertHistory(ctx, &model.AlertHistory{RuleID: "r", MetricType: model.MetricCost, Channel: "webhook", Message: "1"})
	require.NoError(t, err)
	newer, err := db.InsertHistory(ctx, &model.AlertHistory{RuleID: "r", MetricType: model.MetricCost, Channel: "slack", Message: "2"})
	require.NoError(t, err)

	require.NoError(t, db.MarkSent(ctx, older, time.Now()))

	status := map[string]model.AlertStatus{}
	rows, err := db.ListHistory(ctx, model.HistoryFilter{RuleID: "r"})
	require.NoError(t, err)
	for _, r := range rows {
		status[r.ID] = r.Status
	}
	assert.Equal(t, model.StatusSent, status[older])
	assert.Equal(t, model.StatusPending, status[newer])
}

func TestSQLite_ListHistory_Filter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := db.InsertHistory(ctx, &model.AlertHistory{RuleID: "a", MetricType: model.MetricCost, Channel: "webhook", Message: "m"})
		require.NoError(t, err)
	}
	id, err := db.InsertHistory(ctx, &model.AlertHistory{RuleID: "b", MetricType: model.MetricUserCount, Channel: "slack", Message: "m"})
	require.NoError(t, err)
	require.NoError(t, db.MarkFailed(ctx, id, "boom"))

	byRule, err := db.ListHistory(ctx, model.HistoryFilter{RuleID: "a"})
	require.NoError(t, err)
	assert.Len(t, byRule, 3)

	failed, err := db.ListHistory(ctx, model.HistoryFilter{Status: model.StatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].RuleID)

	limited, err := db.ListHistory(ctx, model.HistoryFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSQLite_MigrationsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, db1.CreateRule(context.Background(), costRule("kept")))
	db1.Close()

	db2, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	defer db2.Close()

	rules, err := db2.ListRules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules, 1)
}
