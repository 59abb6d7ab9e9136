package database

import (
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/internal/core/alerting"
	"github.com/noa10/mataresit-sub018/internal/database/sqlite"
)

// Repositories holds all repository instances.
type Repositories struct {
	Rules       alerting.RuleStore
	Instances   alerting.InstanceStore
	Channels    alerting.ChannelStore
	Policies    alerting.PolicyStore
	Maintenance alerting.MaintenanceStore
}

// NewRepositories creates all repository instances.
func NewRepositories(db *sqlx.DB, logger *logrus.Logger) *Repositories {
	return &Repositories{
		Rules:       sqlite.NewRuleRepository(db, logger),
		Instances:   sqlite.NewInstanceRepository(db, logger),
		Channels:    sqlite.NewChannelRepository(db, logger),
		Policies:    sqlite.NewPolicyRepository(db, logger),
		Maintenance: sqlite.NewMaintenanceRepository(db, logger),
	}
}
