package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/store"
)

// MemoryStore implements store.MemoryStore backed by Postgres.
type MemoryStore struct {
	db *sql.DB
}

func NewMemoryStore(db *sql.DB) *MemoryStore {
	return &MemoryStore{db: db}
}

func (s *MemoryStore) List(ctx context.Context, conversationID uuid.UUID) ([]store.MemoryFact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, type, key, value, source_message_id, created_at, updated_at
		 FROM memory_facts WHERE conversation_id = $1 ORDER BY type, updated_at`,
		conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []store.MemoryFact
	for rows.Next() {
		var f store.MemoryFact
		if err := rows.Scan(&f.ID, &f.ConversationID, &f.Type, &f.Key, &f.Value,
			&f.SourceMessageID, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

func (s *MemoryStore) Upsert(ctx context.Context, f *store.MemoryFact) error {
	if f.ID == uuid.Nil {
		f.ID = newID()
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_facts (id, conversation_id, type, key, value, source_message_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		 ON CONFLICT (conversation_id, type, key)
		 DO UPDATE SET value = EXCLUDED.value, source_message_id = EXCLUDED.source_message_id, updated_at = EXCLUDED.updated_at`,
		f.ID, f.ConversationID, f.Type, f.Key, f.Value, nilUUID(f.SourceMessageID), now)
	if err != nil {
		return err
	}

	// Evict oldest facts beyond the per-type cap.
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM memory_facts WHERE conversation_id = $1 AND type = $2 AND id NOT IN (
			SELECT id FROM memory_facts WHERE conversation_id = $1 AND type = $2
			ORDER BY updated_at DESC LIMIT $3)`,
		f.ConversationID, f.Type, store.MaxFactsPerType)
	return err
}
