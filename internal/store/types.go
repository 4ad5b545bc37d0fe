package store

import (
	"time"

	"github.com/google/uuid"
)

// Message direction and sender classes.
const (
	DirectionIn  = "in"
	DirectionOut = "out"

	SenderCustomer = "customer"
	SenderAgent    = "agent"
	SenderHuman    = "human"

	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// Follow-up lifecycle.
const (
	FollowUpPending   = "pending"
	FollowUpFired     = "fired"
	FollowUpCancelled = "cancelled"
)

// Audit actions written to the AI log. One entry per meaningful side
// effect; together they reconstruct every pipeline decision.
const (
	ActionReplied           = "replied"
	ActionOutsideHours      = "outside_hours_reply"
	ActionSmartPaused       = "smart_paused"
	ActionEscalated         = "escalated"
	ActionMemorySaved       = "memory_saved"
	ActionScoreUpdated      = "score_updated"
	ActionLabelAssigned     = "label_assigned"
	ActionFollowUpScheduled = "follow_up_scheduled"
	ActionFollowUpFired     = "follow_up_fired"
	ActionParseError        = "extraction_parse_error"
	ActionError             = "error"
)

// Lead temperature buckets derived from the score.
const (
	TemperatureCold = "cold"
	TemperatureWarm = "warm"
	TemperatureHot  = "hot"
)

// Conversation is one stateful thread with an external contact identity.
type Conversation struct {
	ID              uuid.UUID
	OrganizationID  uuid.UUID
	InstanceID      string
	RemoteJID       string
	ContactID       *uuid.UUID
	ContactName     string // denormalized push name
	AIActive        bool
	PauseReason     string
	LastMessageText string
	LastMessageAt   time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Message is a single inbound or outbound message. Immutable except status.
type Message struct {
	ID                uuid.UUID
	ConversationID    uuid.UUID
	Direction         string // DirectionIn / DirectionOut
	Sender            string // SenderCustomer / SenderAgent / SenderHuman
	Kind              string // "text", "audio", ...
	Body              string
	Status            string
	ProviderMessageID string
	CreatedAt         time.Time
}

// MemoryFact is a durable key/value datum inferred about a contact.
// Unique per (conversation, type, key); upsert is last-write-wins.
type MemoryFact struct {
	ID              uuid.UUID
	ConversationID  uuid.UUID
	Type            string // category: "personal", "preference", "objection", ...
	Key             string
	Value           string
	SourceMessageID *uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LeadScore is the bounded purchase-readiness score for a conversation.
type LeadScore struct {
	ConversationID uuid.UUID
	Score          int // always within [0,100]
	Temperature    string
	BuyingStage    string
	UpdatedAt      time.Time
}

// Label is an org-scoped taxonomy entry.
type Label struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Color          string
	CreatedAt      time.Time
}

// FollowUp is a scheduled future automated touch tied to a detected intent.
type FollowUp struct {
	ID              uuid.UUID
	ConversationID  uuid.UUID
	TriggerAt       time.Time
	Status          string
	Intent          string
	Confidence      float64
	Context         string // snapshot: intent context, contact name, extractor summary
	SourceMessageID uuid.UUID
	CreatedAt       time.Time
	FiredAt         *time.Time
}

// AILogEntry is one append-only audit record.
type AILogEntry struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	OrganizationID uuid.UUID
	Action         string
	Details        string
	MessageID      *uuid.UUID
	TriggeredBy    string
	CreatedAt      time.Time
}

// Summary is a periodic conversation digest.
type Summary struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Content        string
	KeyPoints      []string
	MessageCount   int
	CreatedAt      time.Time
}

// Contact is the CRM person linked to a conversation. Read-only here.
type Contact struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Phone          string
	Email          string
	Company        string
}

// Deal is an open CRM opportunity for a contact. Read-only here.
type Deal struct {
	ID        uuid.UUID
	ContactID uuid.UUID
	Title     string
	Stage     string
	Value     float64
	Status    string // "open", "won", "lost"
}
