package alerting

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// seedFile is the on-disk bootstrap format for definitions. Durations use Go
// syntax ("5m", "1h30m").
type seedFile struct {
	Channels []seedChannel `yaml:"channels"`
	Policies []seedPolicy  `yaml:"escalation_policies"`
	Rules    []seedRule    `yaml:"rules"`
	Windows  []seedWindow  `yaml:"maintenance_windows"`
}

type seedChannel struct {
	ID     string            `yaml:"id"`
	Name   string            `yaml:"name"`
	Type   string            `yaml:"type"`
	Config map[string]string `yaml:"config"`
}

type seedPolicy struct {
	ID     string      `yaml:"id"`
	Name   string      `yaml:"name"`
	Levels []seedLevel `yaml:"levels"`
}

type seedLevel struct {
	Delay      string   `yaml:"delay"`
	ChannelIDs []string `yaml:"channel_ids"`
}

type seedRule struct {
	ID                  string   `yaml:"id"`
	Name                string   `yaml:"name"`
	Metric              string   `yaml:"metric"`
	Operator            string   `yaml:"operator"`
	Threshold           float64  `yaml:"threshold"`
	Window              string   `yaml:"window"`
	Frequency           string   `yaml:"frequency"`
	ConsecutiveFailures int      `yaml:"consecutive_failures"`
	Severity            string   `yaml:"severity"`
	ChannelIDs          []string `yaml:"channel_ids"`
	EscalationPolicyID  string   `yaml:"escalation_policy_id"`
	MaxPerWindow        int      `yaml:"max_per_window"`
	Cooldown            string   `yaml:"cooldown"`
}

type seedWindow struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	StartsAt string   `yaml:"starts_at"`
	EndsAt   string   `yaml:"ends_at"`
	Scope    string   `yaml:"scope"`
	RuleIDs  []string `yaml:"rule_ids"`
}

// SeedStores groups the stores the loader writes to.
type SeedStores struct {
	Rules    RuleStore
	Channels ChannelStore
	Policies PolicyStore
	Windows  MaintenanceStore
}

// LoadSeedFile reads a YAML definition file and inserts the definitions that
// do not exist yet. Every definition goes through the same validation as the
// API save path; an invalid definition aborts the load.
func LoadSeedFile(ctx context.Context, path string, stores SeedStores, logger *logrus.Logger) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	for _, sc := range seed.Channels {
		ch := &NotificationChannel{
			ID:      orUUID(sc.ID),
			Name:    sc.Name,
			Type:    ChannelType(sc.Type),
			Config:  sc.Config,
			Enabled: true,
		}
		if err := ch.Validate(); err != nil {
			return err
		}
		if existing, err := stores.Channels.Get(ctx, ch.ID); err == nil && existing != nil {
			continue
		}
		if err := stores.Channels.Create(ctx, ch); err != nil {
			return fmt.Errorf("seed channel %s: %w", ch.Name, err)
		}
	}

	for _, sp := range seed.Policies {
		policy := &EscalationPolicy{ID: orUUID(sp.ID), Name: sp.Name}
		for _, sl := range sp.Levels {
			delay, err := time.ParseDuration(sl.Delay)
			if err != nil {
				return fmt.Errorf("seed policy %s: bad delay %q: %w", sp.Name, sl.Delay, err)
			}
			policy.Levels = append(policy.Levels, EscalationLevel{Delay: delay, ChannelIDs: sl.ChannelIDs})
		}
		if err := policy.Validate(); err != nil {
			return err
		}
		if existing, err := stores.Policies.Get(ctx, policy.ID); err == nil && existing != nil {
			continue
		}
		if err := stores.Policies.Create(ctx, policy); err != nil {
			return fmt.Errorf("seed policy %s: %w", policy.Name, err)
		}
	}

	for _, sr := range seed.Rules {
		rule, err := sr.toRule()
		if err != nil {
			return err
		}
		if err := rule.Validate(); err != nil {
			return err
		}
		if existing, err := stores.Rules.Get(ctx, rule.ID); err == nil && existing != nil {
			continue
		}
		if err := stores.Rules.Create(ctx, rule); err != nil {
			return fmt.Errorf("seed rule %s: %w", rule.Name, err)
		}
	}

	for _, sw := range seed.Windows {
		window, err := sw.toWindow()
		if err != nil {
			return err
		}
		if err := window.Validate(); err != nil {
			return err
		}
		if existing, err := stores.Windows.Get(ctx, window.ID); err == nil && existing != nil {
			continue
		}
		if err := stores.Windows.Create(ctx, window); err != nil {
			return fmt.Errorf("seed maintenance window %s: %w", window.Name, err)
		}
	}

	logger.WithFields(logrus.Fields{
		"channels": len(seed.Channels),
		"policies": len(seed.Policies),
		"rules":    len(seed.Rules),
		"windows":  len(seed.Windows),
	}).Info("Definition seed file loaded")

	return nil
}

func (sr seedRule) toRule() (*AlertRule, error) {
	window, err := time.ParseDuration(sr.Window)
	if err != nil {
		return nil, fmt.Errorf("seed rule %s: bad window %q: %w", sr.Name, sr.Window, err)
	}
	frequency, err := time.ParseDuration(sr.Frequency)
	if err != nil {
		return nil, fmt.Errorf("seed rule %s: bad frequency %q: %w", sr.Name, sr.Frequency, err)
	}

	var cooldown time.Duration
	if sr.Cooldown != "" {
		cooldown, err = time.ParseDuration(sr.Cooldown)
		if err != nil {
			return nil, fmt.Errorf("seed rule %s: bad cooldown %q: %w", sr.Name, sr.Cooldown, err)
		}
	}

	return &AlertRule{
		ID:                  orUUID(sr.ID),
		Name:                sr.Name,
		Metric:              sr.Metric,
		Operator:            Operator(sr.Operator),
		Threshold:           sr.Threshold,
		Window:              window,
		Frequency:           frequency,
		ConsecutiveFailures: sr.ConsecutiveFailures,
		Severity:            Severity(sr.Severity),
		ChannelIDs:          sr.ChannelIDs,
		EscalationPolicyID:  sr.EscalationPolicyID,
		RateLimit:           RateLimitConfig{MaxPerWindow: sr.MaxPerWindow, Cooldown: cooldown},
		Active:              true,
	}, nil
}

func (sw seedWindow) toWindow() (*MaintenanceWindow, error) {
	start, err := time.Parse(time.RFC3339, sw.StartsAt)
	if err != nil {
		return nil, fmt.Errorf("seed window %s: bad starts_at %q: %w", sw.Name, sw.StartsAt, err)
	}
	end, err := time.Parse(time.RFC3339, sw.EndsAt)
	if err != nil {
		return nil, fmt.Errorf("seed window %s: bad ends_at %q: %w", sw.Name, sw.EndsAt, err)
	}

	scope := sw.Scope
	if scope == "" {
		scope = ScopeAll
	}

	return &MaintenanceWindow{
		ID:       orUUID(sw.ID),
		Name:     sw.Name,
		StartsAt: start,
		EndsAt:   end,
		Scope:    scope,
		RuleIDs:  sw.RuleIDs,
		Active:   true,
	}, nil
}

func orUUID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}
