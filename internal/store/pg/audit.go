package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/store"
)

// AuditStore implements store.AuditStore backed by Postgres.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Insert(ctx context.Context, e *store.AILogEntry) error {
	if e.ID == uuid.Nil {
		e.ID = newID()
	}
	e.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_logs (id, conversation_id, organization_id, action, details, message_id, triggered_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ConversationID, e.OrganizationID, e.Action, nilStr(e.Details),
		nilUUID(e.MessageID), e.TriggeredBy, e.CreatedAt)
	return err
}

// SummaryStore implements store.SummaryStore backed by Postgres.
type SummaryStore struct {
	db *sql.DB
}

func NewSummaryStore(db *sql.DB) *SummaryStore {
	return &SummaryStore{db: db}
}

func (s *SummaryStore) Insert(ctx context.Context, sum *store.Summary) error {
	if sum.ID == uuid.Nil {
		sum.ID = newID()
	}
	sum.CreatedAt = time.Now().UTC()

	points, _ := json.Marshal(sum.KeyPoints)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries (id, conversation_id, content, key_points, message_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		sum.ID, sum.ConversationID, sum.Content, points, sum.MessageCount, sum.CreatedAt)
	return err
}
