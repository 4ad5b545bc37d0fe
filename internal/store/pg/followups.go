package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/store"
)

// FollowUpStore implements store.FollowUpStore backed by Postgres.
type FollowUpStore struct {
	db *sql.DB
}

func NewFollowUpStore(db *sql.DB) *FollowUpStore {
	return &FollowUpStore{db: db}
}

func (s *FollowUpStore) CountActive(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM follow_ups WHERE conversation_id = $1 AND status = $2`,
		conversationID, store.FollowUpPending).Scan(&n)
	return n, err
}

func (s *FollowUpStore) Create(ctx context.Context, f *store.FollowUp) error {
	if f.ID == uuid.Nil {
		f.ID = newID()
	}
	if f.Status == "" {
		f.Status = store.FollowUpPending
	}
	f.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO follow_ups (id, conversation_id, trigger_at, status, intent, confidence, context, source_message_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.ID, f.ConversationID, f.TriggerAt, f.Status, f.Intent, f.Confidence, f.Context,
		f.SourceMessageID, f.CreatedAt)
	return err
}

func (s *FollowUpStore) Due(ctx context.Context, now time.Time, limit int) ([]store.FollowUp, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, trigger_at, status, intent, confidence, context, source_message_id, created_at, fired_at
		 FROM follow_ups WHERE status = $1 AND trigger_at <= $2 ORDER BY trigger_at LIMIT $3`,
		store.FollowUpPending, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.FollowUp
	for rows.Next() {
		var f store.FollowUp
		if err := rows.Scan(&f.ID, &f.ConversationID, &f.TriggerAt, &f.Status, &f.Intent,
			&f.Confidence, &f.Context, &f.SourceMessageID, &f.CreatedAt, &f.FiredAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *FollowUpStore) MarkFired(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.setStatus(ctx, id, store.FollowUpFired, &at)
}

func (s *FollowUpStore) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, store.FollowUpCancelled, nil)
}

func (s *FollowUpStore) setStatus(ctx context.Context, id uuid.UUID, status string, firedAt *time.Time) error {
	var at interface{}
	if firedAt != nil {
		at = *firedAt
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE follow_ups SET status = $1, fired_at = $2 WHERE id = $3 AND status = $4`,
		status, at, id, store.FollowUpPending)
	return err
}
