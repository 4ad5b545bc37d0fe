package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/store"
)

// LeadScoreStore implements store.LeadScoreStore backed by Postgres.
type LeadScoreStore struct {
	db *sql.DB
}

func NewLeadScoreStore(db *sql.DB) *LeadScoreStore {
	return &LeadScoreStore{db: db}
}

func (s *LeadScoreStore) Get(ctx context.Context, conversationID uuid.UUID) (*store.LeadScore, error) {
	var sc store.LeadScore
	var stage *string
	err := s.db.QueryRowContext(ctx,
		`SELECT conversation_id, score, temperature, buying_stage, updated_at
		 FROM lead_scores WHERE conversation_id = $1`, conversationID).
		Scan(&sc.ConversationID, &sc.Score, &sc.Temperature, &stage, &sc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sc.BuyingStage = derefStr(stage)
	return &sc, nil
}

func (s *LeadScoreStore) Upsert(ctx context.Context, sc *store.LeadScore) error {
	sc.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_scores (conversation_id, score, temperature, buying_stage, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (conversation_id)
		 DO UPDATE SET score = EXCLUDED.score, temperature = EXCLUDED.temperature,
			buying_stage = EXCLUDED.buying_stage, updated_at = EXCLUDED.updated_at`,
		sc.ConversationID, sc.Score, sc.Temperature, nilStr(sc.BuyingStage), sc.UpdatedAt)
	return err
}
