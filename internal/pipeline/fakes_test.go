package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/bus"
	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/gateway"
	"github.com/leadfoundry/zapagent/internal/providers"
	"github.com/leadfoundry/zapagent/internal/store"
)

// In-memory store fakes. Each mirrors the semantics of the SQL
// implementations closely enough for pipeline behavior tests.

type fakeConversations struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*store.Conversation
}

func newFakeConversations() *fakeConversations {
	return &fakeConversations{rows: make(map[uuid.UUID]*store.Conversation)}
}

func (f *fakeConversations) GetByRemote(_ context.Context, instanceID, remoteJID string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.rows {
		if c.InstanceID == instanceID && c.RemoteJID == remoteJID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeConversations) GetByID(_ context.Context, id uuid.UUID) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConversations) Create(_ context.Context, c *store.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.Must(uuid.NewV7())
	}
	cp := *c
	f.rows[c.ID] = &cp
	return nil
}

func (f *fakeConversations) SetAIActive(_ context.Context, id uuid.UUID, active bool, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return fmt.Errorf("conversation not found")
	}
	c.AIActive = active
	if active {
		reason = ""
	}
	c.PauseReason = reason
	return nil
}

func (f *fakeConversations) TouchLastMessage(_ context.Context, id uuid.UUID, text string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.rows[id]; ok {
		c.LastMessageText = text
		c.LastMessageAt = at
	}
	return nil
}

func (f *fakeConversations) LinkContact(_ context.Context, id, contactID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.rows[id]; ok {
		c.ContactID = &contactID
	}
	return nil
}

type fakeMessages struct {
	mu   sync.Mutex
	rows []store.Message
	now  func() time.Time
}

func (f *fakeMessages) Insert(_ context.Context, m *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.Must(uuid.NewV7())
	}
	if m.CreatedAt.IsZero() {
		if f.now != nil {
			m.CreatedAt = f.now()
		} else {
			m.CreatedAt = time.Now().UTC()
		}
	}
	if m.Status == "" {
		m.Status = store.StatusSent
	}
	f.rows = append(f.rows, *m)
	return nil
}

func (f *fakeMessages) Recent(_ context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Message
	for _, m := range f.rows {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeMessages) CountBySender(_ context.Context, conversationID uuid.UUID, sender string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.rows {
		if m.ConversationID == conversationID && m.Sender == sender {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) CountInbound(_ context.Context, conversationID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.rows {
		if m.ConversationID == conversationID && m.Direction == store.DirectionIn {
			n++
		}
	}
	return n, nil
}

func (f *fakeMessages) SentBodyBetween(_ context.Context, conversationID uuid.UUID, body string, from, to time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.rows {
		if m.ConversationID == conversationID && m.Direction == store.DirectionOut && m.Body == body &&
			!m.CreatedAt.Before(from) && m.CreatedAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

type fakeMemories struct {
	mu   sync.Mutex
	rows map[string]store.MemoryFact
}

func newFakeMemories() *fakeMemories {
	return &fakeMemories{rows: make(map[string]store.MemoryFact)}
}

func (f *fakeMemories) List(_ context.Context, conversationID uuid.UUID) ([]store.MemoryFact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.MemoryFact
	for _, m := range f.rows {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMemories) Upsert(_ context.Context, fact *store.MemoryFact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fact.ConversationID.String() + "/" + fact.Type + "/" + fact.Key
	if fact.ID == uuid.Nil {
		fact.ID = uuid.Must(uuid.NewV7())
	}
	f.rows[key] = *fact
	return nil
}

type fakeScores struct {
	mu   sync.Mutex
	rows map[uuid.UUID]store.LeadScore
}

func newFakeScores() *fakeScores {
	return &fakeScores{rows: make(map[uuid.UUID]store.LeadScore)}
}

func (f *fakeScores) Get(_ context.Context, conversationID uuid.UUID) (*store.LeadScore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.rows[conversationID]
	if !ok {
		return nil, nil
	}
	cp := s
	return &cp, nil
}

func (f *fakeScores) Upsert(_ context.Context, s *store.LeadScore) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[s.ConversationID] = *s
	return nil
}

type fakeLabels struct {
	mu          sync.Mutex
	labels      map[string]store.Label // org/name
	assignments map[string]bool        // conv/label
}

func newFakeLabels() *fakeLabels {
	return &fakeLabels{labels: make(map[string]store.Label), assignments: make(map[string]bool)}
}

func (f *fakeLabels) EnsureDefaults(_ context.Context, organizationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range store.DefaultLabels {
		key := organizationID.String() + "/" + l.Name
		if _, ok := f.labels[key]; !ok {
			f.labels[key] = store.Label{ID: uuid.Must(uuid.NewV7()), OrganizationID: organizationID, Name: l.Name, Color: l.Color}
		}
	}
	return nil
}

func (f *fakeLabels) ResolveOrCreate(_ context.Context, organizationID uuid.UUID, name string) (*store.Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := organizationID.String() + "/" + name
	l, ok := f.labels[key]
	if !ok {
		l = store.Label{ID: uuid.Must(uuid.NewV7()), OrganizationID: organizationID, Name: name, Color: "#64748b"}
		f.labels[key] = l
	}
	cp := l
	return &cp, nil
}

func (f *fakeLabels) Assign(_ context.Context, conversationID, labelID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := conversationID.String() + "/" + labelID.String()
	if f.assignments[key] {
		return false, nil
	}
	f.assignments[key] = true
	return true, nil
}

func (f *fakeLabels) assignmentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.assignments)
}

type fakeFollowUps struct {
	mu   sync.Mutex
	rows []store.FollowUp
}

func (f *fakeFollowUps) CountActive(_ context.Context, conversationID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fu := range f.rows {
		if fu.ConversationID == conversationID && fu.Status == store.FollowUpPending {
			n++
		}
	}
	return n, nil
}

func (f *fakeFollowUps) Create(_ context.Context, fu *store.FollowUp) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fu.ID == uuid.Nil {
		fu.ID = uuid.Must(uuid.NewV7())
	}
	if fu.Status == "" {
		fu.Status = store.FollowUpPending
	}
	f.rows = append(f.rows, *fu)
	return nil
}

func (f *fakeFollowUps) Due(_ context.Context, now time.Time, limit int) ([]store.FollowUp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.FollowUp
	for _, fu := range f.rows {
		if fu.Status == store.FollowUpPending && !fu.TriggerAt.After(now) {
			out = append(out, fu)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeFollowUps) MarkFired(_ context.Context, id uuid.UUID, at time.Time) error {
	return f.setStatus(id, store.FollowUpFired, &at)
}

func (f *fakeFollowUps) MarkCancelled(_ context.Context, id uuid.UUID) error {
	return f.setStatus(id, store.FollowUpCancelled, nil)
}

func (f *fakeFollowUps) setStatus(id uuid.UUID, status string, firedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id && f.rows[i].Status == store.FollowUpPending {
			f.rows[i].Status = status
			f.rows[i].FiredAt = firedAt
		}
	}
	return nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []store.AILogEntry
}

func (f *fakeAudit) Insert(_ context.Context, e *store.AILogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.Must(uuid.NewV7())
	}
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeAudit) byAction(action string) []store.AILogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.AILogEntry
	for _, e := range f.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type fakeSummaries struct {
	mu   sync.Mutex
	rows []store.Summary
}

func (f *fakeSummaries) Insert(_ context.Context, s *store.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *s)
	return nil
}

type fakeCRM struct {
	contacts map[uuid.UUID]store.Contact
	deals    map[uuid.UUID][]store.Deal
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{contacts: make(map[uuid.UUID]store.Contact), deals: make(map[uuid.UUID][]store.Deal)}
}

func (f *fakeCRM) GetContact(_ context.Context, id uuid.UUID) (*store.Contact, error) {
	c, ok := f.contacts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeCRM) FindContactByPhone(_ context.Context, organizationID uuid.UUID, phone string) (*store.Contact, error) {
	for _, c := range f.contacts {
		if c.OrganizationID == organizationID && c.Phone == phone {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCRM) OpenDeals(_ context.Context, contactID uuid.UUID, limit int) ([]store.Deal, error) {
	deals := f.deals[contactID]
	if limit > 0 && len(deals) > limit {
		deals = deals[:limit]
	}
	return deals, nil
}

type fakeAgentConfigs struct {
	mu   sync.Mutex
	rows map[string]*config.AgentConfig
}

func newFakeAgentConfigs() *fakeAgentConfigs {
	return &fakeAgentConfigs{rows: make(map[string]*config.AgentConfig)}
}

func (f *fakeAgentConfigs) GetByInstance(_ context.Context, instanceID string) (*config.AgentConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[instanceID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

// fakeProvider replays canned responses in order and counts calls.
type fakeProvider struct {
	mu        sync.Mutex
	name      string
	responses []string
	err       error
	calls     int
}

func (p *fakeProvider) Generate(_ context.Context, _ []providers.Message, _ int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	if len(p.responses) == 0 {
		return "ok", nil
	}
	resp := p.responses[0]
	if len(p.responses) > 1 {
		p.responses = p.responses[1:]
	}
	return resp, nil
}

func (p *fakeProvider) DefaultModel() string { return "test-model" }
func (p *fakeProvider) Name() string         { return p.name }

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeSender records dispatched messages.
type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	fail  bool
	seq   int
	phone string
}

func (s *fakeSender) SendText(_ context.Context, _ bus.Credentials, phone, message string) (*gateway.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, fmt.Errorf("gateway unavailable")
	}
	s.seq++
	s.sent = append(s.sent, message)
	s.phone = phone
	return &gateway.SendResult{ProviderMessageID: fmt.Sprintf("wamid-%d", s.seq), Status: "sent"}, nil
}

func (s *fakeSender) sentMessages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// harness wires a pipeline onto fakes with a deterministic clock.
type harness struct {
	stores    *store.Stores
	convs     *fakeConversations
	msgs      *fakeMessages
	memories  *fakeMemories
	scores    *fakeScores
	labels    *fakeLabels
	followUps *fakeFollowUps
	audit     *fakeAudit
	summaries *fakeSummaries
	crm       *fakeCRM
	agentCfgs *fakeAgentConfigs

	provider *fakeProvider
	sender   *fakeSender
	pipe     *Pipeline
	now      time.Time
}

func newHarness() *harness {
	h := &harness{
		convs:     newFakeConversations(),
		msgs:      &fakeMessages{},
		memories:  newFakeMemories(),
		scores:    newFakeScores(),
		labels:    newFakeLabels(),
		followUps: &fakeFollowUps{},
		audit:     &fakeAudit{},
		summaries: &fakeSummaries{},
		crm:       newFakeCRM(),
		agentCfgs: newFakeAgentConfigs(),
		provider:  &fakeProvider{name: "openai"},
		sender:    &fakeSender{},
		now:       time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC), // Monday 14:00 UTC
	}
	h.msgs.now = func() time.Time { return h.now }
	h.stores = &store.Stores{
		Conversations: h.convs,
		Messages:      h.msgs,
		Memories:      h.memories,
		Scores:        h.scores,
		Labels:        h.labels,
		FollowUps:     h.followUps,
		Audit:         h.audit,
		Summaries:     h.summaries,
		CRM:           h.crm,
		AgentConfigs:  h.agentCfgs,
	}

	registry := providers.NewRegistry()
	registry.Register(h.provider)

	h.pipe = New(h.stores, registry, h.sender, config.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	h.pipe.now = func() time.Time { return h.now }
	h.pipe.sleep = func(context.Context, time.Duration) {}
	return h
}

func (h *harness) agentConfig() *config.AgentConfig {
	cfg := &config.AgentConfig{
		InstanceID:      "inst-1",
		OrganizationID:  uuid.Must(uuid.NewV7()),
		AgentName:       "Sofia",
		AgentRole:       "sales assistant",
		Provider:        "openai",
		TransferMessage: "Vou transferir voce para um atendente.",
		GatewayToken:    "tok",
	}
	cfg.Normalize()
	h.agentCfgs.rows[cfg.InstanceID] = cfg
	return cfg
}

func (h *harness) conversation(cfg *config.AgentConfig) *store.Conversation {
	conv := &store.Conversation{
		OrganizationID: cfg.OrganizationID,
		InstanceID:     cfg.InstanceID,
		RemoteJID:      "5511999990000@s.whatsapp.net",
		ContactName:    "Carlos",
		AIActive:       true,
	}
	h.convs.Create(context.Background(), conv)
	return conv
}

// inbound persists a customer message and returns the pipeline request.
func (h *harness) inbound(conv *store.Conversation, text string) *Request {
	msg := &store.Message{
		ConversationID: conv.ID,
		Direction:      store.DirectionIn,
		Sender:         store.SenderCustomer,
		Kind:           "text",
		Body:           text,
	}
	h.msgs.Insert(context.Background(), msg)
	return &Request{
		Conversation: conv,
		Message:      msg,
		Credentials:  bus.Credentials{InstanceID: conv.InstanceID, Token: "tok"},
		TriggeredBy:  TriggeredByCustomer,
	}
}

// emptySignal is a valid extraction response carrying no signals.
const emptySignal = `{"intents":[],"memories":[],"lead_score_delta":0,"suggested_labels":[],"should_pause":false}`
