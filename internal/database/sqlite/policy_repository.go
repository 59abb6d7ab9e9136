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

// PolicyRepository implements alerting.PolicyStore on SQLite.
type PolicyRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

// NewPolicyRepository creates a new PolicyRepository.
func NewPolicyRepository(db *sqlx.DB, log *logrus.Logger) *PolicyRepository {
	return &PolicyRepository{db: db, log: log}
}

func (r *PolicyRepository) Get(ctx context.Context, id string) (*alerting.EscalationPolicy, error) {
	query := `SELECT id, name, levels, created_at, updated_at FROM escalation_policies WHERE id = ?`

	var row models.PolicyRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.Wrapf(errors.ErrNotFound, "escalation policy %s", id)
		}
		r.log.WithError(err).WithField("policy_id", id).Error("Failed to get escalation policy")
		return nil, fmt.Errorf("failed to get escalation policy: %w", err)
	}
	return row.ToPolicy()
}

func (r *PolicyRepository) List(ctx context.Context) ([]*alerting.EscalationPolicy, error) {
	query := `SELECT id, name, levels, created_at, updated_at FROM escalation_policies ORDER BY name`

	var rows []*models.PolicyRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		r.log.WithError(err).Error("Failed to list escalation policies")
		return nil, fmt.Errorf("failed to list escalation policies: %w", err)
	}

	policies := make([]*alerting.EscalationPolicy, 0, len(rows))
	for _, row := range rows {
		policy, err := row.ToPolicy()
		if err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}
	return policies, nil
}

func (r *PolicyRepository) Create(ctx context.Context, p *alerting.EscalationPolicy) error {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	row, err := models.NewPolicyRow(p)
	if err != nil {
		return err
	}

	query := `INSERT INTO escalation_policies (id, name, levels, created_at, updated_at)
		VALUES (:id, :name, :levels, :created_at, :updated_at)`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		r.log.WithError(err).WithField("policy_id", p.ID).Error("Failed to create escalation policy")
		return fmt.Errorf("failed to create escalation policy: %w", err)
	}
	return nil
}

func (r *PolicyRepository) Update(ctx context.Context, p *alerting.EscalationPolicy) error {
	p.UpdatedAt = time.Now().UTC()

	row, err := models.NewPolicyRow(p)
	if err != nil {
		return err
	}

	query := `UPDATE escalation_policies SET name = :name, levels = :levels, updated_at = :updated_at
		WHERE id = :id`

	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		r.log.WithError(err).WithField("policy_id", p.ID).Error("Failed to update escalation policy")
		return fmt.Errorf("failed to update escalation policy: %w", err)
	}
	return requireRowAffected(result, "escalation policy", p.ID)
}

func (r *PolicyRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM escalation_policies WHERE id = ?`, id)
	if err != nil {
		r.log.WithError(err).WithField("policy_id", id).Error("Failed to delete escalation policy")
		return fmt.Errorf("failed to delete escalation policy: %w", err)
	}
	return requireRowAffected(result, "escalation policy", id)
}
