package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/store"
)

// CRMStore implements the read-only store.CRMStore backed by Postgres.
// Contacts and deals are owned by the CRM application; this process
// only reads them for grounding context.
type CRMStore struct {
	db *sql.DB
}

func NewCRMStore(db *sql.DB) *CRMStore {
	return &CRMStore{db: db}
}

func (s *CRMStore) GetContact(ctx context.Context, id uuid.UUID) (*store.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, phone, email, company FROM contacts WHERE id = $1`, id)
	return scanContact(row)
}

func (s *CRMStore) FindContactByPhone(ctx context.Context, organizationID uuid.UUID, phone string) (*store.Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, organization_id, name, phone, email, company FROM contacts
		 WHERE organization_id = $1 AND phone = $2`, organizationID, phone)
	return scanContact(row)
}

func (s *CRMStore) OpenDeals(ctx context.Context, contactID uuid.UUID, limit int) ([]store.Deal, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contact_id, title, stage, value, status FROM deals
		 WHERE contact_id = $1 AND status = 'open' ORDER BY value DESC LIMIT $2`,
		contactID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []store.Deal
	for rows.Next() {
		var d store.Deal
		if err := rows.Scan(&d.ID, &d.ContactID, &d.Title, &d.Stage, &d.Value, &d.Status); err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func scanContact(row *sql.Row) (*store.Contact, error) {
	var c store.Contact
	var phone, email, company *string
	err := row.Scan(&c.ID, &c.OrganizationID, &c.Name, &phone, &email, &company)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.Phone = derefStr(phone)
	c.Email = derefStr(email)
	c.Company = derefStr(company)
	return &c, nil
}
