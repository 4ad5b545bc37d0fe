package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/store"
)

// scheduleFollowUp persists at most one follow-up per execution, for the
// highest-confidence intent that asked for one. A conversation already at
// its active-follow-up cap is skipped silently: no error, no log.
func (p *Pipeline) scheduleFollowUp(ctx context.Context, cfg *config.AgentConfig, conv *store.Conversation, sig *Signal, req *Request) {
	best := bestFollowUpIntent(sig.Intents)
	if best == nil {
		return
	}

	active, err := p.stores.FollowUps.CountActive(ctx, conv.ID)
	if err != nil {
		p.log.Warn("follow-up count failed", "conversation", conv.ID, "error", err)
		return
	}
	if active >= cfg.MaxFollowUps {
		return
	}

	delay := best.FollowUpDelayMinutes
	if delay <= 0 {
		delay = cfg.DefaultFollowUpDelayMinutes
	}

	fu := &store.FollowUp{
		ConversationID:  conv.ID,
		TriggerAt:       p.now().Add(time.Duration(delay) * time.Minute),
		Intent:          best.Intent,
		Confidence:      best.Confidence,
		Context:         followUpSnapshot(best, conv, sig),
		SourceMessageID: req.Message.ID,
	}
	if err := p.stores.FollowUps.Create(ctx, fu); err != nil {
		p.log.Warn("follow-up create failed", "conversation", conv.ID, "error", err)
		return
	}

	p.audit(ctx, conv, store.ActionFollowUpScheduled,
		fmt.Sprintf("intent=%s in %dm", best.Intent, delay), &req.Message.ID, req.TriggeredBy)
}

// bestFollowUpIntent returns the highest-confidence intent that requested
// a future touch, or nil.
func bestFollowUpIntent(intents []Intent) *Intent {
	var best *Intent
	for i := range intents {
		it := &intents[i]
		if it.FollowUpDelayMinutes <= 0 {
			continue
		}
		if best == nil || it.Confidence > best.Confidence {
			best = it
		}
	}
	return best
}

// followUpSnapshot captures enough context to word the follow-up later
// without replaying the whole conversation.
func followUpSnapshot(it *Intent, conv *store.Conversation, sig *Signal) string {
	var parts []string
	if it.Context != "" {
		parts = append(parts, it.Context)
	}
	if conv.ContactName != "" {
		parts = append(parts, "contact: "+conv.ContactName)
	}
	if sig.Summary != "" {
		parts = append(parts, sig.Summary)
	}
	return strings.Join(parts, " | ")
}
