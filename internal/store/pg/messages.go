package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/store"
)

// MessageStore implements store.MessageStore backed by Postgres.
type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) Insert(ctx context.Context, m *store.Message) error {
	if m.ID == uuid.Nil {
		m.ID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = store.StatusSent
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, direction, sender, kind, body, status, provider_message_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.ConversationID, m.Direction, m.Sender, m.Kind, m.Body, m.Status,
		nilStr(m.ProviderMessageID), m.CreatedAt)
	return err
}

func (s *MessageStore) Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, direction, sender, kind, body, status, provider_message_id, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		var providerID *string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Sender, &m.Kind, &m.Body,
			&m.Status, &providerID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ProviderMessageID = derefStr(providerID)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query is newest-first; callers want chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *MessageStore) CountBySender(ctx context.Context, conversationID uuid.UUID, sender string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND sender = $2`,
		conversationID, sender).Scan(&n)
	return n, err
}

func (s *MessageStore) CountInbound(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = $1 AND direction = $2`,
		conversationID, store.DirectionIn).Scan(&n)
	return n, err
}

func (s *MessageStore) SentBodyBetween(ctx context.Context, conversationID uuid.UUID, body string, from, to time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE conversation_id = $1 AND direction = $2 AND body = $3 AND created_at >= $4 AND created_at < $5`,
		conversationID, store.DirectionOut, body, from, to).Scan(&n)
	return n > 0, err
}
