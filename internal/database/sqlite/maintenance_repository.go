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

// MaintenanceRepository implements alerting.MaintenanceStore on SQLite.
type MaintenanceRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewMaintenanceRepository creates a new MaintenanceRepository.
func NewMaintenanceRepository(db *sqlx.DB, log *logrus.Logger) *MaintenanceRepository {
	return &MaintenanceRepository{db: db, log: log}
}

func (r *MaintenanceRepository) ListActive(ctx context.Context, now time.Time) ([]*alerting.MaintenanceWindow, error) {
	query := `SELECT id, name, starts_at, ends_at, scope, rule_ids, active, created_at
		FROM maintenance_windows WHERE active = 1 AND starts_at <= ? AND ends_at > ?`
	return r.queryWindows(ctx, query, now, now)
}

func (r *MaintenanceRepository) List(ctx context.Context) ([]*alerting.MaintenanceWindow, error) {
	query := `SELECT id, name, starts_at, ends_at, scope, rule_ids, active, created_at
		FROM maintenance_windows ORDER BY starts_at DESC`
	return r.queryWindows(ctx, query)
}

func (r *MaintenanceRepository) queryWindows(ctx context.Context, query string, args ...interface{}) ([]*alerting.MaintenanceWindow, error) {
	var rows []*models.MaintenanceRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithError(err).Error("Failed to list maintenance windows")
		return nil, fmt.Errorf("failed to list maintenance windows: %w", err)
	}

	windows := make([]*alerting.MaintenanceWindow, 0, len(rows))
	for _, row := range rows {
		w, err := row.ToWindow()
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func (r *MaintenanceRepository) Get(ctx context.Context, id string) (*alerting.MaintenanceWindow, error) {
	query := `SELECT id, name, starts_at, ends_at, scope, rule_ids, active, created_at
		FROM maintenance_windows WHERE id = ?`

	var row models.MaintenanceRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "maintenance window %s", id)
		}
		r.log.WithError(err).WithField("window_id", id).Error("Failed to get maintenance window")
		return nil, fmt.Errorf("failed to get maintenance window: %w", err)
	}
	return row.ToWindow()
}

func (r *MaintenanceRepository) Create(ctx context.Context, w *alerting.MaintenanceWindow) error {
	w.CreatedAt = time.Now().UTC()

	row, err := models.NewMaintenanceRow(w)
	if err != nil {
		return err
	}

	query := `INSERT INTO maintenance_windows (id, name, starts_at, ends_at, scope, rule_ids, active, created_at)
		VALUES (:id, :name, :starts_at, :ends_at, :scope, :rule_ids, :active, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		r.log.WithError(err).WithField("window_id", w.ID).Error("Failed to create maintenance window")
		return fmt.Errorf("failed to create maintenance window: %w", err)
	}
	return nil
}

func (r *MaintenanceRepository) Update(ctx context.Context, w *alerting.MaintenanceWindow) error {
	row, err := models.NewMaintenanceRow(w)
	if err != nil {
		return err
	}

	query := `UPDATE maintenance_windows SET
			name = :name, starts_at = :starts_at, ends_at = :ends_at, scope = :scope,
			rule_ids = :rule_ids, active = :active
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		r.log.WithError(err).WithField("window_id", w.ID).Error("Failed to update maintenance window")
		return fmt.Errorf("failed to update maintenance window: %w", err)
	}
	return requireRowAffected(result, "maintenance window", w.ID)
}

func (r *MaintenanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM maintenance_windows WHERE id = ?`, id)
	if err != nil {
		r.log.WithError(err).WithField("window_id", id).Error("Failed to delete maintenance window")
		return fmt.Errorf("failed to delete maintenance window: %w", err)
	}
	return requireRowAffected(result, "maintenance window", id)
}
