package pipeline

import (
	"context"
	"time"

	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/store"
)

// checkEligibility decides whether the pipeline continues for this message.
// Decision order is a hard contract, first match wins:
//  1. ai_active=false: no-op, nothing logged.
//  2. Outside working hours: send the configured outside-hours message at
//     most once per calendar day, then stop.
//  3. Otherwise continue.
//
// The no-config case is handled by the caller before this runs.
func (p *Pipeline) checkEligibility(ctx context.Context, cfg *config.AgentConfig, conv *store.Conversation, req *Request) (bool, error) {
	if !conv.AIActive {
		return false, nil
	}

	now := p.now()
	if cfg.WithinWorkingHours(now) {
		return true, nil
	}

	if cfg.OutsideHoursMessage == "" {
		return false, nil
	}

	// Dedupe by scanning today's outbound messages for the identical text.
	loc := cfg.Location()
	local := now.In(loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	sent, err := p.stores.Messages.SentBodyBetween(ctx, conv.ID, cfg.OutsideHoursMessage, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		p.log.Warn("outside-hours dedupe check failed", "conversation", conv.ID, "error", err)
		return false, nil
	}
	if sent {
		return false, nil
	}

	msg := p.dispatch(ctx, cfg, conv, req.Credentials, cfg.OutsideHoursMessage)
	if msg != nil {
		p.audit(ctx, conv, store.ActionOutsideHours, "", &msg.ID, req.TriggeredBy)
	}
	return false, nil
}
