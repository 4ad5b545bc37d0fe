package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/config"
)

// MaxFactsPerType bounds memory growth per (conversation, type); the
// oldest facts are evicted once the cap is exceeded.
const MaxFactsPerType = 50

// ConversationStore manages conversation rows.
type ConversationStore interface {
	// GetByRemote returns the conversation for an instance+identity pair,
	// or (nil, nil) when none exists.
	GetByRemote(ctx context.Context, instanceID, remoteJID string) (*Conversation, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	Create(ctx context.Context, c *Conversation) error
	// SetAIActive flips the agent on or off for a conversation. reason is
	// persisted as pause_reason (cleared when activating).
	SetAIActive(ctx context.Context, id uuid.UUID, active bool, reason string) error
	// TouchLastMessage updates the denormalized last-message fields.
	TouchLastMessage(ctx context.Context, id uuid.UUID, text string, at time.Time) error
	LinkContact(ctx context.Context, id, contactID uuid.UUID) error
}

// MessageStore manages message rows.
type MessageStore interface {
	Insert(ctx context.Context, m *Message) error
	// Recent returns up to limit messages in chronological order (oldest first).
	Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
	CountBySender(ctx context.Context, conversationID uuid.UUID, sender string) (int, error)
	CountInbound(ctx context.Context, conversationID uuid.UUID) (int, error)
	// SentBodyBetween reports whether an outbound message with exactly this
	// body exists in [from, to). Used for once-per-day dedupe.
	SentBodyBetween(ctx context.Context, conversationID uuid.UUID, body string, from, to time.Time) (bool, error)
}

// MemoryStore manages memory facts.
type MemoryStore interface {
	List(ctx context.Context, conversationID uuid.UUID) ([]MemoryFact, error)
	// Upsert overwrites the (conversation, type, key) triple if it exists,
	// inserts otherwise, and evicts the oldest facts beyond MaxFactsPerType.
	Upsert(ctx context.Context, f *MemoryFact) error
}

// LeadScoreStore manages per-conversation lead scores.
type LeadScoreStore interface {
	// Get returns (nil, nil) when the conversation has no score yet.
	Get(ctx context.Context, conversationID uuid.UUID) (*LeadScore, error)
	Upsert(ctx context.Context, s *LeadScore) error
}

// LabelStore manages the org label taxonomy and conversation assignments.
type LabelStore interface {
	// EnsureDefaults lazily seeds the org's default taxonomy. Idempotent.
	EnsureDefaults(ctx context.Context, organizationID uuid.UUID) error
	ResolveOrCreate(ctx context.Context, organizationID uuid.UUID, name string) (*Label, error)
	// Assign links a label to a conversation. Returns false when the
	// assignment already existed (no duplicate row is created).
	Assign(ctx context.Context, conversationID, labelID uuid.UUID) (bool, error)
}

// FollowUpStore manages scheduled follow-ups.
type FollowUpStore interface {
	CountActive(ctx context.Context, conversationID uuid.UUID) (int, error)
	Create(ctx context.Context, f *FollowUp) error
	// Due returns up to limit pending follow-ups with trigger_at <= now.
	Due(ctx context.Context, now time.Time, limit int) ([]FollowUp, error)
	MarkFired(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
}

// AuditStore is the append-only AI decision log.
type AuditStore interface {
	Insert(ctx context.Context, e *AILogEntry) error
}

// SummaryStore persists conversation digests.
type SummaryStore interface {
	Insert(ctx context.Context, s *Summary) error
}

// CRMStore is the read-only collaborator for contact and deal snapshots.
type CRMStore interface {
	// GetContact returns (nil, nil) when the contact does not exist.
	GetContact(ctx context.Context, id uuid.UUID) (*Contact, error)
	FindContactByPhone(ctx context.Context, organizationID uuid.UUID, phone string) (*Contact, error)
	OpenDeals(ctx context.Context, contactID uuid.UUID, limit int) ([]Deal, error)
}

// AgentConfigStore loads per-instance agent configuration.
type AgentConfigStore interface {
	// GetByInstance returns (nil, nil) when no config exists for the
	// instance; the pipeline treats that as a silent no-op.
	GetByInstance(ctx context.Context, instanceID string) (*config.AgentConfig, error)
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Conversations ConversationStore
	Messages      MessageStore
	Memories      MemoryStore
	Scores        LeadScoreStore
	Labels        LabelStore
	FollowUps     FollowUpStore
	Audit         AuditStore
	Summaries     SummaryStore
	CRM           CRMStore
	AgentConfigs  AgentConfigStore
}

// DefaultLabels seeded into an organization's taxonomy on first use.
var DefaultLabels = []struct {
	Name  string
	Color string
}{
	{"new-lead", "#3b82f6"},
	{"interested", "#22c55e"},
	{"meeting", "#a855f7"},
	{"negotiation", "#f59e0b"},
	{"needs-human", "#ef4444"},
}
