package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noa10/mataresit-sub018/internal/config"
	"github.com/noa10/mataresit-sub018/internal/core/alerting"
	"github.com/noa10/mataresit-sub018/internal/core/metricstore"
	"github.com/noa10/mataresit-sub018/internal/core/notify"
	"github.com/noa10/mataresit-sub018/internal/database"
	"github.com/noa10/mataresit-sub018/internal/websocket"
	"github.com/noa10/mataresit-sub018/pkg/errors"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// In-memory stores backing the handlers under test.

type memRuleStore struct {
	mu    sync.Mutex
	rules map[string]*alerting.AlertRule
}

func newMemRuleStore() *memRuleStore {
	return &memRuleStore{rules: make(map[string]*alerting.AlertRule)}
}

func (s *memRuleStore) ListActive(ctx context.Context) ([]*alerting.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerting.AlertRule
	for _, r := range s.rules {
		if r.Active {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memRuleStore) List(ctx context.Context) ([]*alerting.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerting.AlertRule
	for _, r := range s.rules {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (s *memRuleStore) Get(ctx context.Context, id string) (*alerting.AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "rule %s", id)
	}
	c := *r
	return &c, nil
}

func (s *memRuleStore) Create(ctx context.Context, rule *alerting.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *rule
	s.rules[rule.ID] = &c
	return nil
}

func (s *memRuleStore) Update(ctx context.Context, rule *alerting.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[rule.ID]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "rule %s", rule.ID)
	}
	c := *rule
	s.rules[rule.ID] = &c
	return nil
}

func (s *memRuleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "rule %s", id)
	}
	delete(s.rules, id)
	return nil
}

func (s *memRuleStore) TouchEvaluated(ctx context.Context, id string, at time.Time) error {
	return nil
}

type memInstanceStore struct {
	mu        sync.Mutex
	instances map[string]*alerting.AlertInstance
	events    []*alerting.AlertEvent
}

func newMemInstanceStore() *memInstanceStore {
	return &memInstanceStore{instances: make(map[string]*alerting.AlertInstance)}
}

func (s *memInstanceStore) Insert(ctx context.Context, inst *alerting.AlertInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *memInstanceStore) Update(ctx context.Context, inst *alerting.AlertInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[inst.ID]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "alert %s", inst.ID)
	}
	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *memInstanceStore) Get(ctx context.Context, id string) (*alerting.AlertInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "alert %s", id)
	}
	return inst.Clone(), nil
}

func (s *memInstanceStore) List(ctx context.Context, filter alerting.InstanceFilter) ([]*alerting.AlertInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerting.AlertInstance
	for _, inst := range s.instances {
		if filter.State != "" && inst.State != filter.State {
			continue
		}
		if filter.Severity != "" && inst.Severity != filter.Severity {
			continue
		}
		if filter.RuleID != "" && inst.RuleID != filter.RuleID {
			continue
		}
		if !filter.Since.IsZero() && inst.TriggeredAt.Before(filter.Since) {
			continue
		}
		out = append(out, inst.Clone())
	}
	return out, nil
}

func (s *memInstanceStore) ListLive(ctx context.Context) ([]*alerting.AlertInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerting.AlertInstance
	for _, inst := range s.instances {
		if inst.Live() {
			out = append(out, inst.Clone())
		}
	}
	return out, nil
}

func (s *memInstanceStore) AppendEvent(ctx context.Context, event *alerting.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := *event
	e.ID = int64(len(s.events) + 1)
	s.events = append(s.events, &e)
	return nil
}

func (s *memInstanceStore) ListEvents(ctx context.Context, instanceID string) ([]*alerting.AlertEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerting.AlertEvent
	for _, e := range s.events {
		if e.InstanceID == instanceID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memInstanceStore) PurgeResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type memChannelStore struct {
	mu       sync.Mutex
	channels map[string]*alerting.NotificationChannel
}

func newMemChannelStore() *memChannelStore {
	return &memChannelStore{channels: make(map[string]*alerting.NotificationChannel)}
}

func (s *memChannelStore) Get(ctx context.Context, id string) (*alerting.NotificationChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "channel %s", id)
	}
	c := *ch
	return &c, nil
}

func (s *memChannelStore) List(ctx context.Context) ([]*alerting.NotificationChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerting.NotificationChannel
	for _, ch := range s.channels {
		c := *ch
		out = append(out, &c)
	}
	return out, nil
}

func (s *memChannelStore) Create(ctx context.Context, ch *alerting.NotificationChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *ch
	s.channels[ch.ID] = &c
	return nil
}

func (s *memChannelStore) Update(ctx context.Context, ch *alerting.NotificationChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[ch.ID]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "channel %s", ch.ID)
	}
	c := *ch
	s.channels[ch.ID] = &c
	return nil
}

func (s *memChannelStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[id]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "channel %s", id)
	}
	delete(s.channels, id)
	return nil
}

type memPolicyStore struct {
	mu       sync.Mutex
	policies map[string]*alerting.EscalationPolicy
}

func newMemPolicyStore() *memPolicyStore {
	return &memPolicyStore{policies: make(map[string]*alerting.EscalationPolicy)}
}

func (s *memPolicyStore) Get(ctx context.Context, id string) (*alerting.EscalationPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "policy %s", id)
	}
	c := *p
	return &c, nil
}

func (s *memPolicyStore) List(ctx context.Context) ([]*alerting.EscalationPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerting.EscalationPolicy
	for _, p := range s.policies {
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

func (s *memPolicyStore) Create(ctx context.Context, p *alerting.EscalationPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.policies[p.ID] = &c
	return nil
}

func (s *memPolicyStore) Update(ctx context.Context, p *alerting.EscalationPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ID]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "policy %s", p.ID)
	}
	c := *p
	s.policies[p.ID] = &c
	return nil
}

func (s *memPolicyStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[id]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "policy %s", id)
	}
	delete(s.policies, id)
	return nil
}

type memMaintenanceStore struct {
	mu      sync.Mutex
	windows map[string]*alerting.MaintenanceWindow
}

func newMemMaintenanceStore() *memMaintenanceStore {
	return &memMaintenanceStore{windows: make(map[string]*alerting.MaintenanceWindow)}
}

func (s *memMaintenanceStore) ListActive(ctx context.Context, now time.Time) ([]*alerting.MaintenanceWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerting.MaintenanceWindow
	for _, w := range s.windows {
		if w.Active && !now.Before(w.StartsAt) && now.Before(w.EndsAt) {
			c := *w
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memMaintenanceStore) List(ctx context.Context) ([]*alerting.MaintenanceWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*alerting.MaintenanceWindow
	for _, w := range s.windows {
		c := *w
		out = append(out, &c)
	}
	return out, nil
}

func (s *memMaintenanceStore) Get(ctx context.Context, id string) (*alerting.MaintenanceWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "maintenance window %s", id)
	}
	c := *w
	return &c, nil
}

func (s *memMaintenanceStore) Create(ctx context.Context, w *alerting.MaintenanceWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *w
	s.windows[w.ID] = &c
	return nil
}

func (s *memMaintenanceStore) Update(ctx context.Context, w *alerting.MaintenanceWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[w.ID]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "maintenance window %s", w.ID)
	}
	c := *w
	s.windows[w.ID] = &c
	return nil
}

func (s *memMaintenanceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[id]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "maintenance window %s", id)
	}
	delete(s.windows, id)
	return nil
}

type fakeTransport struct {
	mu   sync.Mutex
	sent int
}

func (t *fakeTransport) Send(ctx context.Context, ch notify.Channel, msg *notify.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent++
	return nil
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

type apiFixture struct {
	router    *gin.Engine
	rules     *memRuleStore
	alerts    *memInstanceStore
	channels  *memChannelStore
	policies  *memPolicyStore
	windows   *memMaintenanceStore
	instances *alerting.InstanceManager
	evaluator *alerting.Evaluator
	transport *fakeTransport
	samples   *metricstore.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := testLogger()
	f := &apiFixture{
		rules:     newMemRuleStore(),
		alerts:    newMemInstanceStore(),
		channels:  newMemChannelStore(),
		policies:  newMemPolicyStore(),
		windows:   newMemMaintenanceStore(),
		transport: &fakeTransport{},
	}

	f.instances = alerting.NewInstanceManager(f.alerts, logger)
	health := alerting.NewHealthMonitor(alerting.HealthMonitorConfig{}, logger)
	dispatcher := alerting.NewDispatcher(f.channels, f.transport, health, alerting.DispatcherConfig{
		SendTimeout: time.Second,
		Retry: &errors.RetryPolicy{
			MaxAttempts:   1,
			InitialDelay:  time.Millisecond,
			MaxDelay:      time.Millisecond,
			BackoffFactor: 2,
		},
	}, logger)

	repos := &database.Repositories{
		Rules:       f.rules,
		Instances:   f.alerts,
		Channels:    f.channels,
		Policies:    f.policies,
		Maintenance: f.windows,
	}

	f.samples = metricstore.New(logger)
	f.evaluator = alerting.NewEvaluator(f.samples, time.Second, logger)
	suppression := alerting.NewSuppressionManager(f.windows, logger)
	escalation := alerting.NewEscalationEngine(f.policies, f.instances, dispatcher, logger)
	engine := alerting.NewEngine(alerting.EngineConfig{
		EvaluationInterval: time.Hour,
	}, f.rules, f.evaluator, suppression, f.instances, dispatcher, escalation, health, nil, logger)

	h := NewHandlers(&config.Config{}, repos, logger, websocket.NewHub(logger), engine, f.instances, dispatcher, health, f.samples)

	r := gin.New()
	r.GET("/api/v1/alerts", h.ListAlerts)
	r.GET("/api/v1/alerts/statistics", h.AlertStatistics)
	r.GET("/api/v1/alerts/:id", h.GetAlert)
	r.GET("/api/v1/alerts/:id/history", h.AlertHistory)
	r.POST("/api/v1/alerts/:id/acknowledge", h.AcknowledgeAlert)
	r.POST("/api/v1/alerts/:id/resolve", h.ResolveAlert)
	r.GET("/api/v1/rules", h.ListRules)
	r.POST("/api/v1/rules", h.CreateRule)
	r.PUT("/api/v1/rules/:id", h.UpdateRule)
	r.DELETE("/api/v1/rules/:id", h.DeleteRule)
	r.POST("/api/v1/channels", h.CreateChannel)
	r.POST("/api/v1/channels/:id/test", h.TestChannel)
	r.POST("/api/v1/escalation-policies", h.CreatePolicy)
	r.POST("/api/v1/maintenance-windows", h.CreateWindow)
	r.GET("/api/v1/metrics/samples", h.ListSamples)
	r.POST("/api/v1/metrics/samples", h.IngestSample)
	r.GET("/api/v1/dashboard", h.GetDashboard)
	r.GET("/health", h.Health)
	f.router = r

	return f
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) trigger(t *testing.T, ruleID string) *alerting.AlertInstance {
	t.Helper()

	rule := &alerting.AlertRule{
		ID:                  ruleID,
		Name:                "cpu high",
		Metric:              "cpu_percent",
		Operator:            alerting.OpGreaterThan,
		Threshold:           90,
		Window:              5 * time.Minute,
		Frequency:           time.Minute,
		ConsecutiveFailures: 1,
		Severity:            alerting.SeverityCritical,
		ChannelIDs:          []string{"ch-1"},
		Active:              true,
	}
	require.NoError(t, f.rules.Create(context.Background(), rule))

	inst, created, err := f.instances.Trigger(context.Background(), rule, 95, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, created)
	return inst
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var envelope struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.True(t, envelope.Success)
	return envelope.Data
}

func TestGetAlert(t *testing.T) {
	f := newAPIFixture(t)
	inst := f.trigger(t, "r1")

	w := f.do(t, http.MethodGet, "/api/v1/alerts/"+inst.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, inst.ID, data["id"])
	assert.Equal(t, "active", data["state"])
}

func TestGetAlertNotFound(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/alerts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListAlertsFiltered(t *testing.T) {
	f := newAPIFixture(t)
	f.trigger(t, "r1")
	f.trigger(t, "r2")

	w := f.do(t, http.MethodGet, "/api/v1/alerts?rule_id=r1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "r1", envelope.Data[0]["rule_id"])
}

func TestAcknowledgeAlert(t *testing.T) {
	f := newAPIFixture(t)
	inst := f.trigger(t, "r1")

	w := f.do(t, http.MethodPost, "/api/v1/alerts/"+inst.ID+"/acknowledge",
		gin.H{"actor": "ops", "note": "looking"})
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, "acknowledged", data["state"])
	assert.Equal(t, "ops", data["acknowledged_by"])
}

func TestAcknowledgeAlertTwiceConflicts(t *testing.T) {
	f := newAPIFixture(t)
	inst := f.trigger(t, "r1")

	w := f.do(t, http.MethodPost, "/api/v1/alerts/"+inst.ID+"/acknowledge", gin.H{"actor": "ops"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/alerts/"+inst.ID+"/acknowledge", gin.H{"actor": "ops"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAcknowledgeAlertRequiresActor(t *testing.T) {
	f := newAPIFixture(t)
	inst := f.trigger(t, "r1")

	w := f.do(t, http.MethodPost, "/api/v1/alerts/"+inst.ID+"/acknowledge", gin.H{"note": "no actor"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveAlert(t *testing.T) {
	f := newAPIFixture(t)
	inst := f.trigger(t, "r1")

	w := f.do(t, http.MethodPost, "/api/v1/alerts/"+inst.ID+"/resolve", gin.H{"actor": "ops"})
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, "resolved", data["state"])

	w = f.do(t, http.MethodPost, "/api/v1/alerts/"+inst.ID+"/resolve", gin.H{"actor": "ops"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAlertHistory(t *testing.T) {
	f := newAPIFixture(t)
	inst := f.trigger(t, "r1")
	f.do(t, http.MethodPost, "/api/v1/alerts/"+inst.ID+"/acknowledge", gin.H{"actor": "ops"})

	w := f.do(t, http.MethodGet, "/api/v1/alerts/"+inst.ID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 2)
	assert.Equal(t, "triggered", envelope.Data[0]["type"])
	assert.Equal(t, "acknowledged", envelope.Data[1]["type"])
}

func TestAlertStatistics(t *testing.T) {
	f := newAPIFixture(t)
	inst := f.trigger(t, "r1")
	f.do(t, http.MethodPost, "/api/v1/alerts/"+inst.ID+"/resolve", gin.H{"actor": "ops"})

	w := f.do(t, http.MethodGet, "/api/v1/alerts/statistics?range_days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, float64(1), data["total"])
}

func TestAlertStatisticsRejectsBadRange(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/alerts/statistics?range_days=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRule(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/rules", gin.H{
		"name":                 "memory high",
		"metric":               "memory_percent",
		"operator":             "gt",
		"threshold":            85,
		"window":               300000000000,
		"frequency":            60000000000,
		"consecutive_failures": 2,
		"severity":             "warning",
		"channel_ids":          []string{"ch-1"},
		"active":               true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.NotEmpty(t, data["id"])

	rules, err := f.rules.List(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "memory high", rules[0].Name)
}

func TestCreateRuleRejectsInvalid(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/rules", gin.H{
		"name":      "bad rule",
		"metric":    "cpu_percent",
		"operator":  "between",
		"threshold": 90,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateRuleRejectsUnknownPolicy(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/rules", gin.H{
		"name":                 "cpu high",
		"metric":               "cpu_percent",
		"operator":             "gt",
		"threshold":            90,
		"window":               300000000000,
		"frequency":            60000000000,
		"consecutive_failures": 1,
		"severity":             "critical",
		"escalation_policy_id": "missing",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateRuleNotFound(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPut, "/api/v1/rules/missing", gin.H{
		"name":                 "cpu high",
		"metric":               "cpu_percent",
		"operator":             "gt",
		"threshold":            90,
		"window":               300000000000,
		"frequency":            60000000000,
		"consecutive_failures": 1,
		"severity":             "critical",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteRule(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.rules.Create(context.Background(), &alerting.AlertRule{ID: "r1", Name: "x"}))

	w := f.do(t, http.MethodDelete, "/api/v1/rules/r1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/v1/rules/r1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteRuleForgetsRuleState(t *testing.T) {
	f := newAPIFixture(t)

	rule := &alerting.AlertRule{
		ID:                  "r1",
		Name:                "cpu high",
		Metric:              "cpu_percent",
		Operator:            alerting.OpGreaterThan,
		Threshold:           90,
		Window:              5 * time.Minute,
		Frequency:           time.Minute,
		ConsecutiveFailures: 3,
		Severity:            alerting.SeverityCritical,
		Active:              true,
	}
	require.NoError(t, f.rules.Create(context.Background(), rule))

	// Build up a breach streak below the consecutive threshold.
	now := time.Now().UTC()
	require.NoError(t, f.samples.Record(metricstore.Sample{Metric: "cpu_percent", Value: 95, ObservedAt: now}))
	_, err := f.evaluator.Evaluate(context.Background(), rule, false, now)
	require.NoError(t, err)
	require.Equal(t, 1, f.evaluator.Streak("r1"))

	w := f.do(t, http.MethodDelete, "/api/v1/rules/r1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Zero(t, f.evaluator.Streak("r1"))
}

func TestCreateChannelAndTestSend(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/channels", gin.H{
		"id":      "ch-1",
		"name":    "oncall",
		"type":    "webhook",
		"config":  gin.H{"url": "https://hooks.example.com/alerts"},
		"enabled": true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/channels/ch-1/test", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, "delivered", data["status"])
	assert.Equal(t, 1, f.transport.count())
}

func TestTestChannelUnknown(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/channels/missing/test", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, "failed", data["status"])
	assert.Zero(t, f.transport.count())
}

func TestCreatePolicyRejectsNonIncreasingDelays(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/escalation-policies", gin.H{
		"name": "p1",
		"levels": []gin.H{
			{"delay": 60000000000, "channel_ids": []string{"ch-1"}},
			{"delay": 60000000000, "channel_ids": []string{"ch-2"}},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateMaintenanceWindowRejectsInvertedRange(t *testing.T) {
	f := newAPIFixture(t)

	now := time.Now().UTC()
	w := f.do(t, http.MethodPost, "/api/v1/maintenance-windows", gin.H{
		"name":      "deploy",
		"starts_at": now.Format(time.RFC3339),
		"ends_at":   now.Add(-time.Hour).Format(time.RFC3339),
		"scope":     "all",
		"active":    true,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestSample(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/metrics/samples", gin.H{
		"metric": "cpu_percent",
		"value":  95.5,
	})
	require.Equal(t, http.StatusOK, w.Code)

	value, _, err := f.samples.Latest(context.Background(), "cpu_percent")
	require.NoError(t, err)
	assert.Equal(t, 95.5, value)
}

func TestIngestSampleRequiresMetric(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/metrics/samples", gin.H{"value": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSamples(t *testing.T) {
	f := newAPIFixture(t)
	require.NoError(t, f.samples.Record(metricstore.Sample{Metric: "cpu_percent", Value: 10}))

	w := f.do(t, http.MethodGet, "/api/v1/metrics/samples", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "cpu_percent", envelope.Data[0]["metric"])
}

func TestDashboard(t *testing.T) {
	f := newAPIFixture(t)
	f.trigger(t, "r1")

	w := f.do(t, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, float64(1), data["active_alerts"])

	health, ok := data["health"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "healthy", health["status"])
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}
