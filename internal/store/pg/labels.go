package pg

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/store"
)

// LabelStore implements store.LabelStore backed by Postgres.
type LabelStore struct {
	db *sql.DB
}

func NewLabelStore(db *sql.DB) *LabelStore {
	return &LabelStore{db: db}
}

func (s *LabelStore) EnsureDefaults(ctx context.Context, organizationID uuid.UUID) error {
	now := time.Now().UTC()
	for _, l := range store.DefaultLabels {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO labels (id, organization_id, name, color, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (organization_id, name) DO NOTHING`,
			newID(), organizationID, l.Name, l.Color, now)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *LabelStore) ResolveOrCreate(ctx context.Context, organizationID uuid.UUID, name string) (*store.Label, error) {
	// Insert-if-absent then read back: safe under concurrent resolvers.
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO labels (id, organization_id, name, color, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (organization_id, name) DO NOTHING`,
		newID(), organizationID, name, "#64748b", time.Now().UTC())
	if err != nil {
		return nil, err
	}

	var l store.Label
	err = s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, color, created_at FROM labels
		 WHERE organization_id = $1 AND name = $2`, organizationID, name).
		Scan(&l.ID, &l.OrganizationID, &l.Name, &l.Color, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *LabelStore) Assign(ctx context.Context, conversationID, labelID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_labels (conversation_id, label_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (conversation_id, label_id) DO NOTHING`,
		conversationID, labelID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
