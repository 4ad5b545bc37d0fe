package lite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/leadfoundry/zapagent/internal/config"
)

// AgentConfigStore implements store.AgentConfigStore backed by SQLite.
type AgentConfigStore struct {
	db *sql.DB
}

func NewAgentConfigStore(db *sql.DB) *AgentConfigStore {
	return &AgentConfigStore{db: db}
}

func (s *AgentConfigStore) GetByInstance(ctx context.Context, instanceID string) (*config.AgentConfig, error) {
	var c config.AgentConfig
	var agentName, agentRole, tone, model, transfer, outside *string
	var whStart, whEnd, timezone, gwToken, gwClientToken *string

	err := s.db.QueryRowContext(ctx,
		`SELECT instance_id, organization_id, agent_name, agent_role, tone,
			provider, model, max_output_tokens, history_limit, max_messages,
			max_follow_ups, default_follow_up_delay_minutes, response_delay_seconds,
			summary_every, transfer_message, outside_hours_message,
			working_hours_start, working_hours_end, timezone,
			gateway_token, gateway_client_token
		 FROM ai_agent_configs WHERE instance_id = ?`, instanceID).
		Scan(&c.InstanceID, &c.OrganizationID, &agentName, &agentRole, &tone,
			&c.Provider, &model, &c.MaxOutputTokens, &c.HistoryLimit, &c.MaxMessages,
			&c.MaxFollowUps, &c.DefaultFollowUpDelayMinutes, &c.ResponseDelaySeconds,
			&c.SummaryEvery, &transfer, &outside,
			&whStart, &whEnd, &timezone,
			&gwToken, &gwClientToken)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.AgentName = derefStr(agentName)
	c.AgentRole = derefStr(agentRole)
	c.Tone = derefStr(tone)
	c.Model = derefStr(model)
	c.TransferMessage = derefStr(transfer)
	c.OutsideHoursMessage = derefStr(outside)
	c.WorkingHoursStart = derefStr(whStart)
	c.WorkingHoursEnd = derefStr(whEnd)
	c.Timezone = derefStr(timezone)
	c.GatewayToken = derefStr(gwToken)
	c.GatewayClientToken = derefStr(gwClientToken)

	c.Normalize()
	return &c, nil
}
