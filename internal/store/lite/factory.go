package lite

import (
	"database/sql"
	"fmt"

	"github.com/leadfoundry/zapagent/internal/store"
)

// NewStores creates all stores backed by a local SQLite file (standalone mode).
func NewStores(path string) (*store.Stores, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return NewStoresWithDB(db), nil
}

// NewStoresWithDB wires stores onto an existing connection.
func NewStoresWithDB(db *sql.DB) *store.Stores {
	return &store.Stores{
		Conversations: NewConversationStore(db),
		Messages:      NewMessageStore(db),
		Memories:      NewMemoryStore(db),
		Scores:        NewLeadScoreStore(db),
		Labels:        NewLabelStore(db),
		FollowUps:     NewFollowUpStore(db),
		Audit:         NewAuditStore(db),
		Summaries:     NewSummaryStore(db),
		CRM:           NewCRMStore(db),
		AgentConfigs:  NewAgentConfigStore(db),
	}
}
