// Package models holds the database row shapes for the alerting domain and
// the conversions between rows and domain types. Slice-valued fields are
// stored as JSON text columns.
package models

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/noa10/mataresit-sub018/internal/core/alerting"
)

// RuleRow mirrors the alert_rules table.
type RuleRow struct {
	ID                  string         `db:"id"`
	Name                string         `db:"name"`
	Metric              string         `db:"metric"`
	Operator            string         `db:"operator"`
	Threshold           float64        `db:"threshold"`
	WindowSeconds       int64          `db:"window_seconds"`
	FrequencySeconds    int64          `db:"frequency_seconds"`
	ConsecutiveFailures int            `db:"consecutive_failures"`
	Severity            string         `db:"severity"`
	ChannelIDs          string         `db:"channel_ids"`
	EscalationPolicyID  sql.NullString `db:"escalation_policy_id"`
	MaxPerWindow        int            `db:"max_per_window"`
	CooldownSeconds     int64          `db:"cooldown_seconds"`
	Active              bool           `db:"active"`
	LastEvaluatedAt     sql.NullTime   `db:"last_evaluated_at"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

// NewRuleRow converts a domain rule into its row shape.
func NewRuleRow(rule *alerting.AlertRule) (*RuleRow, error) {
	channels, err := marshalStrings(rule.ChannelIDs)
	if err != nil {
		return nil, fmt.Errorf("encode channel ids: %w", err)
	}

	row := &RuleRow{
		ID:                  rule.ID,
		Name:                rule.Name,
		Metric:              rule.Metric,
		Operator:            string(rule.Operator),
		Threshold:           rule.Threshold,
		WindowSeconds:       int64(rule.Window / time.Second),
		FrequencySeconds:    int64(rule.Frequency / time.Second),
		ConsecutiveFailures: rule.ConsecutiveFailures,
		Severity:            string(rule.Severity),
		ChannelIDs:          channels,
		MaxPerWindow:        rule.RateLimit.MaxPerWindow,
		CooldownSeconds:     int64(rule.RateLimit.Cooldown / time.Second),
		Active:              rule.Active,
		CreatedAt:           rule.CreatedAt,
		UpdatedAt:           rule.UpdatedAt,
	}
	if rule.EscalationPolicyID != "" {
		row.EscalationPolicyID = sql.NullString{String: rule.EscalationPolicyID, Valid: true}
	}
	if !rule.LastEvaluatedAt.IsZero() {
		row.LastEvaluatedAt = sql.NullTime{Time: rule.LastEvaluatedAt, Valid: true}
	}
	return row, nil
}

// ToRule converts the row back to the domain type.
func (r *RuleRow) ToRule() (*alerting.AlertRule, error) {
	channels, err := unmarshalStrings(r.ChannelIDs)
	if err != nil {
		return nil, fmt.Errorf("decode channel ids for rule %s: %w", r.ID, err)
	}

	rule := &alerting.AlertRule{
		ID:                  r.ID,
		Name:                r.Name,
		Metric:              r.Metric,
		Operator:            alerting.Operator(r.Operator),
		Threshold:           r.Threshold,
		Window:              time.Duration(r.WindowSeconds) * time.Second,
		Frequency:           time.Duration(r.FrequencySeconds) * time.Second,
		ConsecutiveFailures: r.ConsecutiveFailures,
		Severity:            alerting.Severity(r.Severity),
		ChannelIDs:          channels,
		RateLimit: alerting.RateLimitConfig{
			MaxPerWindow: r.MaxPerWindow,
			Cooldown:     time.Duration(r.CooldownSeconds) * time.Second,
		},
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.EscalationPolicyID.Valid {
		rule.EscalationPolicyID = r.EscalationPolicyID.String
	}
	if r.LastEvaluatedAt.Valid {
		rule.LastEvaluatedAt = r.LastEvaluatedAt.Time
	}
	return rule, nil
}

// InstanceRow mirrors the alert_instances table.
type InstanceRow struct {
	ID               string       `db:"id"`
	RuleID           string       `db:"rule_id"`
	RuleName         string       `db:"rule_name"`
	State            string       `db:"state"`
	Severity         string       `db:"severity"`
	Value            float64      `db:"value"`
	Version          int64        `db:"version"`
	TriggeredAt      time.Time    `db:"triggered_at"`
	AcknowledgedBy   string       `db:"acknowledged_by"`
	AcknowledgedAt   sql.NullTime `db:"acknowledged_at"`
	AcknowledgeNote  string       `db:"acknowledge_note"`
	ResolvedBy       string       `db:"resolved_by"`
	ResolvedAt       sql.NullTime `db:"resolved_at"`
	ResolveNote      string       `db:"resolve_note"`
	EscalationCursor int          `db:"escalation_cursor"`
}

// NewInstanceRow converts a domain instance into its row shape.
func NewInstanceRow(inst *alerting.AlertInstance) *InstanceRow {
	row := &InstanceRow{
		ID:               inst.ID,
		RuleID:           inst.RuleID,
		RuleName:         inst.RuleName,
		State:            string(inst.State),
		Severity:         string(inst.Severity),
		Value:            inst.Value,
		Version:          inst.Version,
		TriggeredAt:      inst.TriggeredAt,
		AcknowledgedBy:   inst.AcknowledgedBy,
		AcknowledgeNote:  inst.AcknowledgeNote,
		ResolvedBy:       inst.ResolvedBy,
		ResolveNote:      inst.ResolveNote,
		EscalationCursor: inst.EscalationCursor,
	}
	if inst.AcknowledgedAt != nil {
		row.AcknowledgedAt = sql.NullTime{Time: *inst.AcknowledgedAt, Valid: true}
	}
	if inst.ResolvedAt != nil {
		row.ResolvedAt = sql.NullTime{Time: *inst.ResolvedAt, Valid: true}
	}
	return row
}

// ToInstance converts the row back to the domain type.
func (r *InstanceRow) ToInstance() *alerting.AlertInstance {
	inst := &alerting.AlertInstance{
		ID:               r.ID,
		RuleID:           r.RuleID,
		RuleName:         r.RuleName,
		State:            alerting.InstanceState(r.State),
		Severity:         alerting.Severity(r.Severity),
		Value:            r.Value,
		Version:          r.Version,
		TriggeredAt:      r.TriggeredAt,
		AcknowledgedBy:   r.AcknowledgedBy,
		AcknowledgeNote:  r.AcknowledgeNote,
		ResolvedBy:       r.ResolvedBy,
		ResolveNote:      r.ResolveNote,
		EscalationCursor: r.EscalationCursor,
	}
	if r.AcknowledgedAt.Valid {
		t := r.AcknowledgedAt.Time
		inst.AcknowledgedAt = &t
	}
	if r.ResolvedAt.Valid {
		t := r.ResolvedAt.Time
		inst.ResolvedAt = &t
	}
	return inst
}

// EventRow mirrors the alert_events table.
type EventRow struct {
	ID         int64     `db:"id"`
	InstanceID string    `db:"instance_id"`
	Type       string    `db:"type"`
	Actor      string    `db:"actor"`
	Note       string    `db:"note"`
	Value      float64   `db:"value"`
	Level      int       `db:"level"`
	Timestamp  time.Time `db:"timestamp"`
}

// NewEventRow converts a domain event into its row shape.
func NewEventRow(event *alerting.AlertEvent) *EventRow {
	return &EventRow{
		ID:         event.ID,
		InstanceID: event.InstanceID,
		Type:       string(event.Type),
		Actor:      event.Actor,
		Note:       event.Note,
		Value:      event.Value,
		Level:      event.Level,
		Timestamp:  event.Timestamp,
	}
}

// ToEvent converts the row back to the domain type.
func (r *EventRow) ToEvent() *alerting.AlertEvent {
	return &alerting.AlertEvent{
		ID:         r.ID,
		InstanceID: r.InstanceID,
		Type:       alerting.EventType(r.Type),
		Actor:      r.Actor,
		Note:       r.Note,
		Value:      r.Value,
		Level:      r.Level,
		Timestamp:  r.Timestamp,
	}
}

// ChannelRow mirrors the notification_channels table.
type ChannelRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Type      string    `db:"type"`
	Config    string    `db:"config"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// NewChannelRow converts a domain channel into its row shape.
func NewChannelRow(ch *alerting.NotificationChannel) (*ChannelRow, error) {
	cfg := ch.Config
	if cfg == nil {
		cfg = map[string]string{}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("encode channel config: %w", err)
	}

	return &ChannelRow{
		ID:        ch.ID,
		Name:      ch.Name,
		Type:      string(ch.Type),
		Config:    string(raw),
		Enabled:   ch.Enabled,
		CreatedAt: ch.CreatedAt,
		UpdatedAt: ch.UpdatedAt,
	}, nil
}

// ToChannel converts the row back to the domain type.
func (r *ChannelRow) ToChannel() (*alerting.NotificationChannel, error) {
	var cfg map[string]string
	if err := json.Unmarshal([]byte(r.Config), &cfg); err != nil {
		return nil, fmt.Errorf("decode config for channel %s: %w", r.ID, err)
	}

	return &alerting.NotificationChannel{
		ID:        r.ID,
		Name:      r.Name,
		Type:      alerting.ChannelType(r.Type),
		Config:    cfg,
		Enabled:   r.Enabled,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// PolicyRow mirrors the escalation_policies table. Levels are stored as a
// JSON array ordered by delay.
type PolicyRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Levels    string    `db:"levels"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type policyLevelJSON struct {
	DelaySeconds int64    `json:"delay_seconds"`
	ChannelIDs   []string `json:"channel_ids"`
}

// NewPolicyRow converts a domain policy into its row shape.
func NewPolicyRow(p *alerting.EscalationPolicy) (*PolicyRow, error) {
	levels := make([]policyLevelJSON, len(p.Levels))
	for i, level := range p.Levels {
		levels[i] = policyLevelJSON{
			DelaySeconds: int64(level.Delay / time.Second),
			ChannelIDs:   level.ChannelIDs,
		}
	}
	raw, err := json.Marshal(levels)
	if err != nil {
		return nil, fmt.Errorf("encode policy levels: %w", err)
	}

	return &PolicyRow{
		ID:        p.ID,
		Name:      p.Name,
		Levels:    string(raw),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}, nil
}

// ToPolicy converts the row back to the domain type.
func (r *PolicyRow) ToPolicy() (*alerting.EscalationPolicy, error) {
	var levels []policyLevelJSON
	if err := json.Unmarshal([]byte(r.Levels), &levels); err != nil {
		return nil, fmt.Errorf("decode levels for policy %s: %w", r.ID, err)
	}

	policy := &alerting.EscalationPolicy{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	for _, level := range levels {
		policy.Levels = append(policy.Levels, alerting.EscalationLevel{
			Delay:      time.Duration(level.DelaySeconds) * time.Second,
			ChannelIDs: level.ChannelIDs,
		})
	}
	return policy, nil
}

// MaintenanceRow mirrors the maintenance_windows table.
type MaintenanceRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	StartsAt  time.Time `db:"starts_at"`
	EndsAt    time.Time `db:"ends_at"`
	Scope     string    `db:"scope"`
	RuleIDs   string    `db:"rule_ids"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}

// NewMaintenanceRow converts a domain window into its row shape.
func NewMaintenanceRow(w *alerting.MaintenanceWindow) (*MaintenanceRow, error) {
	rules, err := marshalStrings(w.RuleIDs)
	if err != nil {
		return nil, fmt.Errorf("encode rule ids: %w", err)
	}

	return &MaintenanceRow{
		ID:        w.ID,
		Name:      w.Name,
		StartsAt:  w.StartsAt,
		EndsAt:    w.EndsAt,
		Scope:     w.Scope,
		RuleIDs:   rules,
		Active:    w.Active,
		CreatedAt: w.CreatedAt,
	}, nil
}

// ToWindow converts the row back to the domain type.
func (r *MaintenanceRow) ToWindow() (*alerting.MaintenanceWindow, error) {
	rules, err := unmarshalStrings(r.RuleIDs)
	if err != nil {
		return nil, fmt.Errorf("decode rule ids for window %s: %w", r.ID, err)
	}

	return &alerting.MaintenanceWindow{
		ID:        r.ID,
		Name:      r.Name,
		StartsAt:  r.StartsAt,
		EndsAt:    r.EndsAt,
		Scope:     r.Scope,
		RuleIDs:   rules,
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}, nil
}

func marshalStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, err
	}
	return values, nil
}
