package pipeline

import (
	"context"
	"fmt"

	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/store"
)

// PauseReasonMessageLimit is persisted when the agent hits its per-
// conversation message budget.
const PauseReasonMessageLimit = "message_limit_reached"

// checkEscalation runs the two pause triggers and reports whether the
// response path may continue. Both transition the conversation to
// paused, optionally send the transfer message once, and abort; resuming
// is an external operation.
func (p *Pipeline) checkEscalation(ctx context.Context, cfg *config.AgentConfig, conv *store.Conversation, sig *Signal, req *Request) bool {
	if sig.ShouldPause {
		reason := sig.PauseReason
		if reason == "" {
			reason = "smart_pause"
		}
		p.pause(ctx, cfg, conv, reason, store.ActionSmartPaused, req)
		return false
	}

	if cfg.MaxMessages > 0 {
		sent, err := p.stores.Messages.CountBySender(ctx, conv.ID, store.SenderAgent)
		if err != nil {
			p.log.Warn("agent message count failed", "conversation", conv.ID, "error", err)
			return true
		}
		if sent >= cfg.MaxMessages {
			p.pause(ctx, cfg, conv, PauseReasonMessageLimit, store.ActionEscalated, req)
			return false
		}
	}
	return true
}

func (p *Pipeline) pause(ctx context.Context, cfg *config.AgentConfig, conv *store.Conversation, reason, action string, req *Request) {
	if err := p.stores.Conversations.SetAIActive(ctx, conv.ID, false, reason); err != nil {
		p.audit(ctx, conv, store.ActionError, "pause: "+err.Error(), nil, req.TriggeredBy)
		return
	}
	conv.AIActive = false
	conv.PauseReason = reason

	// Hand-off notice to the customer. Later messages are no-ops while
	// paused, so this goes out at most once per pause.
	if cfg.TransferMessage != "" {
		if msg := p.dispatch(ctx, cfg, conv, req.Credentials, cfg.TransferMessage); msg != nil {
			p.audit(ctx, conv, action, fmt.Sprintf("reason=%s", reason), &msg.ID, req.TriggeredBy)
			return
		}
	}
	p.audit(ctx, conv, action, fmt.Sprintf("reason=%s", reason), nil, req.TriggeredBy)
}
