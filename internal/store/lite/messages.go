package lite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/store"
)

// MessageStore implements store.MessageStore backed by SQLite.
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
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.Direction, m.Sender, m.Kind, m.Body, m.Status,
		nilStr(m.ProviderMessageID), toMs(m.CreatedAt))
	return err
}

func (s *MessageStore) Recent(ctx context.Context, conversationID uuid.UUID, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, direction, sender, kind, body, status, provider_message_id, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at DESC LIMIT ?`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []store.Message
	for rows.Next() {
		var m store.Message
		var providerID *string
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Sender, &m.Kind, &m.Body,
			&m.Status, &providerID, &createdAt); err != nil {
			return nil, err
		}
		m.ProviderMessageID = derefStr(providerID)
		m.CreatedAt = fromMs(createdAt)
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
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND sender = ?`,
		conversationID, sender).Scan(&n)
	return n, err
}

func (s *MessageStore) CountInbound(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND direction = ?`,
		conversationID, store.DirectionIn).Scan(&n)
	return n, err
}

func (s *MessageStore) SentBodyBetween(ctx context.Context, conversationID uuid.UUID, body string, from, to time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE conversation_id = ? AND direction = ? AND body = ? AND created_at >= ? AND created_at < ?`,
		conversationID, store.DirectionOut, body, toMs(from), toMs(to)).Scan(&n)
	return n > 0, err
}
