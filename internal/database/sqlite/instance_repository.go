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

const instanceColumns = `id, rule_id, rule_name, state, severity, value, version, triggered_at,
	acknowledged_by, acknowledged_at, acknowledge_note, resolved_by, resolved_at, resolve_note,
	escalation_cursor`

// InstanceRepository implements alerting.InstanceStore on SQLite.
type InstanceRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewInstanceRepository creates a new InstanceRepository.
func NewInstanceRepository(db *sqlx.DB, log *logrus.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, log: log}
}

func (r *InstanceRepository) Insert(ctx context.Context, inst *alerting.AlertInstance) error {
	row := models.NewInstanceRow(inst)

	query := `INSERT INTO alert_instances (` + instanceColumns + `)
		VALUES (:id, :rule_id, :rule_name, :state, :severity, :value, :version, :triggered_at,
			:acknowledged_by, :acknowledged_at, :acknowledge_note, :resolved_by, :resolved_at,
			:resolve_note, :escalation_cursor)`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		r.log.WithError(err).WithField("alert_id", inst.ID).Error("Failed to insert alert instance")
		return fmt.Errorf("failed to insert alert instance: %w", err)
	}
	return nil
}

func (r *InstanceRepository) Update(ctx context.Context, inst *alerting.AlertInstance) error {
	row := models.NewInstanceRow(inst)

	query := `UPDATE alert_instances SET
			state = :state, value = :value, version = :version,
			acknowledged_by = :acknowledged_by, acknowledged_at = :acknowledged_at,
			acknowledge_note = :acknowledge_note, resolved_by = :resolved_by,
			resolved_at = :resolved_at, resolve_note = :resolve_note,
			escalation_cursor = :escalation_cursor
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		r.log.WithError(err).WithField("alert_id", inst.ID).Error("Failed to update alert instance")
		return fmt.Errorf("failed to update alert instance: %w", err)
	}
	return requireRowAffected(result, "alert", inst.ID)
}

func (r *InstanceRepository) Get(ctx context.Context, id string) (*alerting.AlertInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM alert_instances WHERE id = ?`

	var row models.InstanceRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "alert %s", id)
		}
		r.log.WithError(err).WithField("alert_id", id).Error("Failed to get alert instance")
		return nil, fmt.Errorf("failed to get alert instance: %w", err)
	}
	return row.ToInstance(), nil
}

func (r *InstanceRepository) List(ctx context.Context, filter alerting.InstanceFilter) ([]*alerting.AlertInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM alert_instances WHERE 1=1`
	var args []interface{}

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	if filter.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(filter.Severity))
	}
	if filter.RuleID != "" {
		query += ` AND rule_id = ?`
		args = append(args, filter.RuleID)
	}
	if !filter.Since.IsZero() {
		query += ` AND triggered_at >= ?`
		args = append(args, filter.Since)
	}
	query += ` ORDER BY triggered_at DESC`

	var rows []*models.InstanceRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithError(err).Error("Failed to list alert instances")
		return nil, fmt.Errorf("failed to list alert instances: %w", err)
	}

	instances := make([]*alerting.AlertInstance, len(rows))
	for i, row := range rows {
		instances[i] = row.ToInstance()
	}
	return instances, nil
}

func (r *InstanceRepository) ListLive(ctx context.Context) ([]*alerting.AlertInstance, error) {
	query := `SELECT ` + instanceColumns + ` FROM alert_instances
		WHERE state IN ('active', 'acknowledged') ORDER BY triggered_at`

	var rows []*models.InstanceRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		r.log.WithError(err).Error("Failed to list live alert instances")
		return nil, fmt.Errorf("failed to list live alert instances: %w", err)
	}

	instances := make([]*alerting.AlertInstance, len(rows))
	for i, row := range rows {
		instances[i] = row.ToInstance()
	}
	return instances, nil
}

func (r *InstanceRepository) AppendEvent(ctx context.Context, event *alerting.AlertEvent) error {
	row := models.NewEventRow(event)

	query := `INSERT INTO alert_events (instance_id, type, actor, note, value, level, timestamp)
		VALUES (:instance_id, :type, :actor, :note, :value, :level, :timestamp)`

	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		r.log.WithError(err).WithField("alert_id", event.InstanceID).Error("Failed to append alert event")
		return fmt.Errorf("failed to append alert event: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

func (r *InstanceRepository) ListEvents(ctx context.Context, instanceID string) ([]*alerting.AlertEvent, error) {
	query := `SELECT id, instance_id, type, actor, note, value, level, timestamp
		FROM alert_events WHERE instance_id = ? ORDER BY id`

	var rows []*models.EventRow
	if err := r.db.SelectContext(ctx, &rows, query, instanceID); err != nil {
		r.log.WithError(err).WithField("alert_id", instanceID).Error("Failed to list alert events")
		return nil, fmt.Errorf("failed to list alert events: %w", err)
	}

	events := make([]*alerting.AlertEvent, len(rows))
	for i, row := range rows {
		events[i] = row.ToEvent()
	}
	return events, nil
}

func (r *InstanceRepository) PurgeResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	// Events cascade via the foreign key.
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM alert_instances WHERE state = 'resolved' AND resolved_at < ?`, cutoff)
	if err != nil {
		r.log.WithError(err).Error("Failed to purge resolved alert instances")
		return 0, fmt.Errorf("failed to purge resolved alert instances: %w", err)
	}
	return result.RowsAffected()
}
