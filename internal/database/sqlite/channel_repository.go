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

// ChannelRepository implements alerting.ChannelStore on SQLite.
type ChannelRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewChannelRepository creates a new ChannelRepository.
func NewChannelRepository(db *sqlx.DB, log *logrus.Logger) *ChannelRepository {
	return &ChannelRepository{db: db, log: log}
}

func (r *ChannelRepository) Get(ctx context.Context, id string) (*alerting.NotificationChannel, error) {
	query := `SELECT id, name, type, config, enabled, created_at, updated_at
		FROM notification_channels WHERE id = ?`

	var row models.ChannelRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "channel %s", id)
		}
		r.log.WithError(err).WithField("channel_id", id).Error("Failed to get notification channel")
		return nil, fmt.Errorf("failed to get notification channel: %w", err)
	}
	return row.ToChannel()
}

func (r *ChannelRepository) List(ctx context.Context) ([]*alerting.NotificationChannel, error) {
	query := `SELECT id, name, type, config, enabled, created_at, updated_at
		FROM notification_channels ORDER BY name`

	var rows []*models.ChannelRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		r.log.WithError(err).Error("Failed to list notification channels")
		return nil, fmt.Errorf("failed to list notification channels: %w", err)
	}

	channels := make([]*alerting.NotificationChannel, 0, len(rows))
	for _, row := range rows {
		ch, err := row.ToChannel()
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}

func (r *ChannelRepository) Create(ctx context.Context, ch *alerting.NotificationChannel) error {
	now := time.Now().UTC()
	ch.CreatedAt = now
	ch.UpdatedAt = now

	row, err := models.NewChannelRow(ch)
	if err != nil {
		return err
	}

	query := `INSERT INTO notification_channels (id, name, type, config, enabled, created_at, updated_at)
		VALUES (:id, :name, :type, :config, :enabled, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		r.log.WithError(err).WithField("channel_id", ch.ID).Error("Failed to create notification channel")
		return fmt.Errorf("failed to create notification channel: %w", err)
	}
	return nil
}

func (r *ChannelRepository) Update(ctx context.Context, ch *alerting.NotificationChannel) error {
	ch.UpdatedAt = time.Now().UTC()

	row, err := models.NewChannelRow(ch)
	if err != nil {
		return err
	}

	query := `UPDATE notification_channels SET
			name = :name, type = :type, config = :config, enabled = :enabled, updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		r.log.WithError(err).WithField("channel_id", ch.ID).Error("Failed to update notification channel")
		return fmt.Errorf("failed to update notification channel: %w", err)
	}
	return requireRowAffected(result, "channel", ch.ID)
}

func (r *ChannelRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notification_channels WHERE id = ?`, id)
	if err != nil {
		r.log.WithError(err).WithField("channel_id", id).Error("Failed to delete notification channel")
		return fmt.Errorf("failed to delete notification channel: %w", err)
	}
	return requireRowAffected(result, "channel", id)
}
