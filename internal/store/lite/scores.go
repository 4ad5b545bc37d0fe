package lite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/store"
)

// LeadScoreStore implements store.LeadScoreStore backed by SQLite.
type LeadScoreStore struct {
	db *sql.DB
}

func NewLeadScoreStore(db *sql.DB) *LeadScoreStore {
	return &LeadScoreStore{db: db}
}

func (s *LeadScoreStore) Get(ctx context.Context, conversationID uuid.UUID) (*store.LeadScore, error) {
	var sc store.LeadScore
	var stage *string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, score, temperature, buying_stage, updated_at
		 FROM lead_scores WHERE conversation_id = ?`, conversationID).
		Scan(&sc.ConversationID, &sc.Score, &sc.Temperature, &stage, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sc.BuyingStage = derefStr(stage)
	sc.UpdatedAt = fromMs(updatedAt)
	return &sc, nil
}

func (s *LeadScoreStore) Upsert(ctx context.Context, sc *store.LeadScore) error {
	sc.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_scores (conversation_id, score, temperature, buying_stage, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (conversation_id)
		 DO UPDATE SET score = excluded.score, temperature = excluded.temperature,
			buying_stage = excluded.buying_stage, updated_at = excluded.updated_at`,
		sc.ConversationID, sc.Score, sc.Temperature, nilStr(sc.BuyingStage), toMs(sc.UpdatedAt))
	return err
}
