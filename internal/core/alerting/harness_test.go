package alerting

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/noa10/mataresit-sub018/internal/core/notify"
	"github.com/noa10/mataresit-sub018/pkg/errors"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// scriptedSource returns queued samples per metric, then keeps repeating the
// last one. Errors can be injected per metric.
type scriptedSource struct {
	mu      sync.Mutex
	samples map[string][]sample
	lasts   map[string]sample
	errs    map[string]error
}

type sample struct {
	value      float64
	observedAt time.Time
}

func newScriptedSource() *scriptedSource {
	return &scriptedSource{
		samples: make(map[string][]sample),
		lasts:   make(map[string]sample),
		errs:    make(map[string]error),
	}
}

func (s *scriptedSource) push(metric string, value float64, observedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples[metric] = append(s.samples[metric], sample{value, observedAt})
}

func (s *scriptedSource) fail(metric string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[metric] = err
}

func (s *scriptedSource) Latest(ctx context.Context, metric string) (float64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.errs[metric]; err != nil {
		return 0, time.Time{}, err
	}
	queue := s.samples[metric]
	if len(queue) == 0 {
		if last, ok := s.lasts[metric]; ok {
			return last.value, last.observedAt, nil
		}
		return 0, time.Time{}, fmt.Errorf("no sample for metric %s", metric)
	}
	next := queue[0]
	s.samples[metric] = queue[1:]
	s.lasts[metric] = next
	return next.value, next.observedAt, nil
}

// fakeTransport records every send and can fail selected channels.
type fakeTransport struct {
	mu    sync.Mutex
	sent  []sentMessage
	fails map[string]error
}

type sentMessage struct {
	channelID string
	msg       notify.Message
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fails: make(map[string]error)}
}

func (t *fakeTransport) failChannel(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fails[id] = err
}

func (t *fakeTransport) Send(ctx context.Context, ch notify.Channel, msg *notify.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.fails[ch.ID]; err != nil {
		return err
	}
	t.sent = append(t.sent, sentMessage{channelID: ch.ID, msg: *msg})
	return nil
}

func (t *fakeTransport) sentTo(channelID string) []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []sentMessage
	for _, s := range t.sent {
		if s.channelID == channelID {
			out = append(out, s)
		}
	}
	return out
}

func (t *fakeTransport) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

// fakeCollector records metric calls for assertions.
type fakeCollector struct {
	mu         sync.Mutex
	deliveries map[string]int
	circuits   map[string]string
}

func newFakeCollector() *fakeCollector {
	return &fakeCollector{
		deliveries: make(map[string]int),
		circuits:   make(map[string]string),
	}
}

func (c *fakeCollector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
}

func (c *fakeCollector) RecordEvaluation(outcome string) {}

func (c *fakeCollector) RecordTransition(severity, event string) {}

func (c *fakeCollector) RecordDelivery(channelType, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deliveries[channelType+"/"+result]++
}

func (c *fakeCollector) SetCircuitState(channelID, state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.circuits[channelID] = state
}

func (c *fakeCollector) SetActiveAlerts(count float64) {}

func (c *fakeCollector) Handler() http.Handler { return nil }

func (c *fakeCollector) deliveryCount(channelType, result string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deliveries[channelType+"/"+result]
}

func (c *fakeCollector) circuitState(channelID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.circuits[channelID]
}

// memRuleStore is an in-memory RuleStore.
type memRuleStore struct {
	mu      sync.Mutex
	rules   map[string]*AlertRule
	listErr error
}

func newMemRuleStore() *memRuleStore {
	return &memRuleStore{rules: make(map[string]*AlertRule)}
}

func (s *memRuleStore) ListActive(ctx context.Context) ([]*AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*AlertRule
	for _, r := range s.rules {
		if r.Active {
			c := *r
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memRuleStore) List(ctx context.Context) ([]*AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*AlertRule
	for _, r := range s.rules {
		c := *r
		out = append(out, &c)
	}
	return out, nil
}

func (s *memRuleStore) Get(ctx context.Context, id string) (*AlertRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "rule %s", id)
	}
	c := *r
	return &c, nil
}

func (s *memRuleStore) Create(ctx context.Context, rule *AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *rule
	s.rules[rule.ID] = &c
	return nil
}

func (s *memRuleStore) Update(ctx context.Context, rule *AlertRule) error {
	return s.Create(ctx, rule)
}

func (s *memRuleStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rules, id)
	return nil
}

func (s *memRuleStore) TouchEvaluated(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rules[id]; ok {
		r.LastEvaluatedAt = at
	}
	return nil
}

// memInstanceStore is an in-memory InstanceStore.
type memInstanceStore struct {
	mu        sync.Mutex
	instances map[string]*AlertInstance
	events    map[string][]*AlertEvent
	nextEvent int64
	insertErr error
}

func newMemInstanceStore() *memInstanceStore {
	return &memInstanceStore{
		instances: make(map[string]*AlertInstance),
		events:    make(map[string][]*AlertEvent),
	}
}

func (s *memInstanceStore) Insert(ctx context.Context, inst *AlertInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *memInstanceStore) Update(ctx context.Context, inst *AlertInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[inst.ID] = inst.Clone()
	return nil
}

func (s *memInstanceStore) Get(ctx context.Context, id string) (*AlertInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "alert %s", id)
	}
	return inst.Clone(), nil
}

func (s *memInstanceStore) List(ctx context.Context, filter InstanceFilter) ([]*AlertInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*AlertInstance
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
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.After(out[j].TriggeredAt) })
	return out, nil
}

func (s *memInstanceStore) ListLive(ctx context.Context) ([]*AlertInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*AlertInstance
	for _, inst := range s.instances {
		if inst.Live() {
			out = append(out, inst.Clone())
		}
	}
	return out, nil
}

func (s *memInstanceStore) AppendEvent(ctx context.Context, event *AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEvent++
	e := *event
	e.ID = s.nextEvent
	s.events[event.InstanceID] = append(s.events[event.InstanceID], &e)
	return nil
}

func (s *memInstanceStore) ListEvents(ctx context.Context, instanceID string) ([]*AlertEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*AlertEvent(nil), s.events[instanceID]...), nil
}

func (s *memInstanceStore) PurgeResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, inst := range s.instances {
		if inst.State == StateResolved && inst.ResolvedAt != nil && inst.ResolvedAt.Before(cutoff) {
			delete(s.instances, id)
			delete(s.events, id)
			removed++
		}
	}
	return removed, nil
}

// memChannelStore is an in-memory ChannelStore.
type memChannelStore struct {
	mu       sync.Mutex
	channels map[string]*NotificationChannel
}

func newMemChannelStore() *memChannelStore {
	return &memChannelStore{channels: make(map[string]*NotificationChannel)}
}

func (s *memChannelStore) Get(ctx context.Context, id string) (*NotificationChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "channel %s", id)
	}
	c := *ch
	return &c, nil
}

func (s *memChannelStore) List(ctx context.Context) ([]*NotificationChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*NotificationChannel
	for _, ch := range s.channels {
		c := *ch
		out = append(out, &c)
	}
	return out, nil
}

func (s *memChannelStore) Create(ctx context.Context, ch *NotificationChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *ch
	s.channels[ch.ID] = &c
	return nil
}

func (s *memChannelStore) Update(ctx context.Context, ch *NotificationChannel) error {
	return s.Create(ctx, ch)
}

func (s *memChannelStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, id)
	return nil
}

// memPolicyStore is an in-memory PolicyStore.
type memPolicyStore struct {
	mu       sync.Mutex
	policies map[string]*EscalationPolicy
}

func newMemPolicyStore() *memPolicyStore {
	return &memPolicyStore{policies: make(map[string]*EscalationPolicy)}
}

func (s *memPolicyStore) Get(ctx context.Context, id string) (*EscalationPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "policy %s", id)
	}
	c := *p
	return &c, nil
}

func (s *memPolicyStore) List(ctx context.Context) ([]*EscalationPolicy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*EscalationPolicy
	for _, p := range s.policies {
		c := *p
		out = append(out, &c)
	}
	return out, nil
}

func (s *memPolicyStore) Create(ctx context.Context, p *EscalationPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.policies[p.ID] = &c
	return nil
}

func (s *memPolicyStore) Update(ctx context.Context, p *EscalationPolicy) error {
	return s.Create(ctx, p)
}

func (s *memPolicyStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.policies, id)
	return nil
}

// memMaintenanceStore is an in-memory MaintenanceStore.
type memMaintenanceStore struct {
	mu      sync.Mutex
	windows map[string]*MaintenanceWindow
	listErr error
}

func newMemMaintenanceStore() *memMaintenanceStore {
	return &memMaintenanceStore{windows: make(map[string]*MaintenanceWindow)}
}

func (s *memMaintenanceStore) ListActive(ctx context.Context, now time.Time) ([]*MaintenanceWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*MaintenanceWindow
	for _, w := range s.windows {
		if w.Active && !now.Before(w.StartsAt) && now.Before(w.EndsAt) {
			c := *w
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memMaintenanceStore) List(ctx context.Context) ([]*MaintenanceWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*MaintenanceWindow
	for _, w := range s.windows {
		c := *w
		out = append(out, &c)
	}
	return out, nil
}

func (s *memMaintenanceStore) Get(ctx context.Context, id string) (*MaintenanceWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "maintenance window %s", id)
	}
	c := *w
	return &c, nil
}

func (s *memMaintenanceStore) Create(ctx context.Context, w *MaintenanceWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *w
	s.windows[w.ID] = &c
	return nil
}

func (s *memMaintenanceStore) Update(ctx context.Context, w *MaintenanceWindow) error {
	return s.Create(ctx, w)
}

func (s *memMaintenanceStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, id)
	return nil
}

// capturedEvent is what the fake publisher records.
type capturedEvent struct {
	event string
	inst  *AlertInstance
}

type fakePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *fakePublisher) PublishAlertEvent(event string, inst *AlertInstance) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{event: event, inst: inst})
}

func (p *fakePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.event
	}
	return out
}

func testRule(id string) *AlertRule {
	return &AlertRule{
		ID:                  id,
		Name:                "cpu high",
		Metric:              "cpu_percent",
		Operator:            OpGreaterThan,
		Threshold:           90,
		Window:              5 * time.Minute,
		Frequency:           time.Minute,
		ConsecutiveFailures: 1,
		Severity:            SeverityCritical,
		ChannelIDs:          []string{"ch-1"},
		Active:              true,
	}
}
