package lite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/store"
)

// MemoryStore implements store.MemoryStore backed by SQLite.
type MemoryStore struct {
	db *sql.DB
}

func NewMemoryStore(db *sql.DB) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) List(ctx context.Context, conversationID uuid.UUID) ([]store.MemoryFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, type, key, value, source_message_id, created_at, updated_at
		 FROM memory_facts WHERE conversation_id = ? ORDER BY type, updated_at`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []store.MemoryFact
	for rows.Next() {
		var f store.MemoryFact
		var createdAt, updatedAt int64
		if err := rows.Scan(&f.ID, &f.ConversationID, &f.Type, &f.Key, &f.Value,
			&f.SourceMessageID, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		f.CreatedAt = fromMs(createdAt)
		f.UpdatedAt = fromMs(updatedAt)
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (s *MemoryStore) Upsert(ctx context.Context, f *store.MemoryFact) error {
	if f.ID == uuid.Nil {
		f.ID = newID()
	}
	now := toMs(time.Now().UTC())

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_facts (id, conversation_id, type, key, value, source_message_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (conversation_id, type, key)
		 DO UPDATE SET value = excluded.value, source_message_id = excluded.source_message_id, updated_at = excluded.updated_at`,
		f.ID, f.ConversationID, f.Type, f.Key, f.Value, nilUUID(f.SourceMessageID), now, now)
	if err != nil {
		return err
	}

	// Evict oldest facts beyond the per-type cap.
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM memory_facts WHERE conversation_id = ? AND type = ? AND id NOT IN (
			SELECT id FROM memory_facts WHERE conversation_id = ? AND type = ?
			ORDER BY updated_at DESC LIMIT ?)`,
		f.ConversationID, f.Type, f.ConversationID, f.Type, store.MaxFactsPerType)
	return err
}
