package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/store"
)

// ConversationStore implements store.ConversationStore backed by Postgres.
type ConversationStore struct {
	db *sql.DB
}

func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

const conversationColumns = `id, organization_id, instance_id, remote_jid, contact_id, contact_name,
	ai_active, pause_reason, last_message_text, last_message_at, created_at, updated_at`

func (s *ConversationStore) GetByRemote(ctx context.Context, instanceID, remoteJID string) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE instance_id = $1 AND remote_jid = $2`,
		instanceID, remoteJID)
	return scanConversation(row)
}

func (s *ConversationStore) GetByID(ctx context.Context, id uuid.UUID) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *ConversationStore) Create(ctx context.Context, c *store.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = newID()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, organization_id, instance_id, remote_jid, contact_id, contact_name,
			ai_active, pause_reason, last_message_text, last_message_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		c.ID, c.OrganizationID, c.InstanceID, c.RemoteJID, nilUUID(c.ContactID), nilStr(c.ContactName),
		c.AIActive, nilStr(c.PauseReason), nilStr(c.LastMessageText), c.LastMessageAt, c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *ConversationStore) SetAIActive(ctx context.Context, id uuid.UUID, active bool, reason string) error {
	if active {
		reason = ""
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET ai_active = $1, pause_reason = $2, updated_at = $3 WHERE id = $4`,
		active, nilStr(reason), time.Now().UTC(), id)
	return err
}

func (s *ConversationStore) TouchLastMessage(ctx context.Context, id uuid.UUID, text string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET last_message_text = $1, last_message_at = $2, updated_at = $3 WHERE id = $4`,
		nilStr(text), at, time.Now().UTC(), id)
	return err
}

func (s *ConversationStore) LinkContact(ctx context.Context, id, contactID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET contact_id = $1, updated_at = $2 WHERE id = $3`,
		contactID, time.Now().UTC(), id)
	return err
}

func scanConversation(row *sql.Row) (*store.Conversation, error) {
	var c store.Conversation
	var contactID *uuid.UUID
	var contactName, pauseReason, lastText *string
	var lastAt *time.Time

	err := row.Scan(&c.ID, &c.OrganizationID, &c.InstanceID, &c.RemoteJID, &contactID, &contactName,
		&c.AIActive, &pauseReason, &lastText, &lastAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.ContactID = contactID
	c.ContactName = derefStr(contactName)
	c.PauseReason = derefStr(pauseReason)
	c.LastMessageText = derefStr(lastText)
	if lastAt != nil {
		c.LastMessageAt = *lastAt
	}
	return &c, nil
}
