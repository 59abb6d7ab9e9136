package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/internal/core/alerting"
	"github.com/noa10/mataresit-sub018/internal/database/models"
	"github.com/noa10/mataresit-sub018/pkg/errors"
)

const ruleColumns = `id, name, metric, operator, threshold, window_seconds, frequency_seconds,
	consecutive_failures, severity, channel_ids, escalation_policy_id, max_per_window,
	cooldown_seconds, active, last_evaluated_at, created_at, updated_at`

// RuleRepository implements alerting.RuleStore on SQLite.
type RuleRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository(db *sqlx.DB, log *logrus.Logger) *RuleRepository {
	return &RuleRepository{db: db, log: log}
}

func (r *RuleRepository) ListActive(ctx context.Context) ([]*alerting.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE active = 1 ORDER BY name`
	return r.queryRules(ctx, query)
}

func (r *RuleRepository) List(ctx context.Context) ([]*alerting.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules ORDER BY name`
	return r.queryRules(ctx, query)
}

func (r *RuleRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]*alerting.AlertRule, error) {
	var rows []*models.RuleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithError(err).Error("Failed to list alert rules")
		return nil, fmt.Errorf("failed to list alert rules: %w", err)
	}

	rules := make([]*alerting.AlertRule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.ToRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (r *RuleRepository) Get(ctx context.Context, id string) (*alerting.AlertRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM alert_rules WHERE id = ?`

	var row models.RuleRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "rule %s", id)
		}
		r.log.WithError(err).WithField("rule_id", id).Error("Failed to get alert rule")
		return nil, fmt.Errorf("failed to get alert rule: %w", err)
	}
	return row.ToRule()
}

func (r *RuleRepository) Create(ctx context.Context, rule *alerting.AlertRule) error {
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	row, err := models.NewRuleRow(rule)
	if err != nil {
		return err
	}

	query := `INSERT INTO alert_rules (` + ruleColumns + `)
		VALUES (:id, :name, :metric, :operator, :threshold, :window_seconds, :frequency_seconds,
			:consecutive_failures, :severity, :channel_ids, :escalation_policy_id, :max_per_window,
			:cooldown_seconds, :active, :last_evaluated_at, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		r.log.WithError(err).WithField("rule_id", rule.ID).Error("Failed to create alert rule")
		return fmt.Errorf("failed to create alert rule: %w", err)
	}
	return nil
}

func (r *RuleRepository) Update(ctx context.Context, rule *alerting.AlertRule) error {
	rule.UpdatedAt = time.Now().UTC()

	row, err := models.NewRuleRow(rule)
	if err != nil {
		return err
	}

	query := `UPDATE alert_rules SET
			name = :name, metric = :metric, operator = :operator, threshold = :threshold,
			window_seconds = :window_seconds, frequency_seconds = :frequency_seconds,
			consecutive_failures = :consecutive_failures, severity = :severity,
			channel_ids = :channel_ids, escalation_policy_id = :escalation_policy_id,
			max_per_window = :max_per_window, cooldown_seconds = :cooldown_seconds,
			active = :active, updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		r.log.WithError(err).WithField("rule_id", rule.ID).Error("Failed to update alert rule")
		return fmt.Errorf("failed to update alert rule: %w", err)
	}
	return requireRowAffected(result, "rule", rule.ID)
}

func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		r.log.WithError(err).WithField("rule_id", id).Error("Failed to delete alert rule")
		return fmt.Errorf("failed to delete alert rule: %w", err)
	}
	return requireRowAffected(result, "rule", id)
}

func (r *RuleRepository) TouchEvaluated(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE alert_rules SET last_evaluated_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("failed to record evaluation time: %w", err)
	}
	return nil
}

// requireRowAffected maps zero-row writes onto not-found.
func requireRowAffected(result sql.Result, kind, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "%s %s", kind, id)
	}
	return nil
}
