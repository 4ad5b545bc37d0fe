package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leadfoundry/zapagent/internal/bus"
	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/gateway"
	"github.com/leadfoundry/zapagent/internal/providers"
	"github.com/leadfoundry/zapagent/internal/store"
)

// Trigger sources recorded in the audit trail.
const (
	TriggeredByCustomer = "customer_message"
	TriggeredByFollowUp = "follow_up"
)

// Request is one pipeline execution: an inbound message that has already
// been persisted, plus the gateway credentials that arrived with it.
type Request struct {
	Conversation *store.Conversation
	Message      *store.Message
	Credentials  bus.Credentials
	TriggeredBy  string
}

// Pipeline orchestrates the per-message decision flow: eligibility,
// signal extraction, state mutation, escalation, reply generation and
// dispatch. Executions for the same conversation are serialized.
type Pipeline struct {
	stores   *store.Stores
	registry *providers.Registry
	sender   gateway.Sender
	cfg      *config.Config
	log      *slog.Logger

	locks *lockTable
	wg    sync.WaitGroup

	// Overridable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

func New(stores *store.Stores, registry *providers.Registry, sender gateway.Sender, cfg *config.Config, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		stores:   stores,
		registry: registry,
		sender:   sender,
		cfg:      cfg,
		log:      log,
		locks:    newLockTable(),
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Run executes the pipeline for one inbound message. It never returns an
// error for business outcomes (pause, escalation, fallback reply); only
// infrastructure failures before any decision was made surface as errors.
func (p *Pipeline) Run(ctx context.Context, req *Request) error {
	conv := req.Conversation
	release := p.locks.acquire(conv.ID.String())
	defer release()

	agentCfg, err := p.stores.AgentConfigs.GetByInstance(ctx, conv.InstanceID)
	if err != nil {
		return fmt.Errorf("load agent config: %w", err)
	}
	if agentCfg == nil {
		// No agent configured for this instance. Silent no-op.
		return nil
	}

	ok, err := p.checkEligibility(ctx, agentCfg, conv, req)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	history, err := p.stores.Messages.Recent(ctx, conv.ID, agentCfg.HistoryLimit)
	if err != nil {
		p.audit(ctx, conv, store.ActionError, "load history: "+err.Error(), nil, req.TriggeredBy)
		return nil
	}
	// The current message is already persisted; it goes to the model as
	// the live turn, not as history.
	history = dropMessage(history, req.Message.ID)
	facts, err := p.stores.Memories.List(ctx, conv.ID)
	if err != nil {
		p.log.Warn("load memories failed", "conversation", conv.ID, "error", err)
	}

	sig := p.extract(ctx, agentCfg, conv, history, facts, req)

	p.applyMemories(ctx, conv, sig, req)
	p.applyScore(ctx, agentCfg, conv, sig, req)
	p.applyLabels(ctx, conv, sig, req)
	p.scheduleFollowUp(ctx, agentCfg, conv, sig, req)

	if !p.checkEscalation(ctx, agentCfg, conv, sig, req) {
		return nil
	}

	// Memories may have just been written; rebuild the fact list so the
	// reply is grounded on the freshest state.
	if updated, err := p.stores.Memories.List(ctx, conv.ID); err == nil {
		facts = updated
	}
	grounding := p.buildContext(ctx, conv, history, facts)

	reply, err := p.generateReply(ctx, agentCfg, grounding, history, req.Message.Body, req.TriggeredBy, conv)
	if err != nil {
		// Already audited; no partial reply is ever dispatched.
		return nil
	}

	msg := p.dispatch(ctx, agentCfg, conv, req.Credentials, reply)
	if msg != nil {
		p.audit(ctx, conv, store.ActionReplied, fmt.Sprintf("len=%d", len(reply)), &msg.ID, req.TriggeredBy)
	}

	p.maybeSummarize(ctx, agentCfg, conv)
	return nil
}

// RunFollowUp re-enters the response path for a due follow-up. The
// follow-up is claimed (marked fired) before the send; a paused or
// deleted conversation cancels it instead.
func (p *Pipeline) RunFollowUp(ctx context.Context, fu store.FollowUp) error {
	release := p.locks.acquire(fu.ConversationID.String())
	defer release()

	conv, err := p.stores.Conversations.GetByID(ctx, fu.ConversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil {
		return p.stores.FollowUps.MarkCancelled(ctx, fu.ID)
	}

	agentCfg, err := p.stores.AgentConfigs.GetByInstance(ctx, conv.InstanceID)
	if err != nil {
		return fmt.Errorf("load agent config: %w", err)
	}
	if agentCfg == nil || !conv.AIActive {
		return p.stores.FollowUps.MarkCancelled(ctx, fu.ID)
	}

	if err := p.stores.FollowUps.MarkFired(ctx, fu.ID, p.now()); err != nil {
		return fmt.Errorf("mark fired: %w", err)
	}

	history, err := p.stores.Messages.Recent(ctx, conv.ID, agentCfg.HistoryLimit)
	if err != nil {
		p.audit(ctx, conv, store.ActionError, "load history: "+err.Error(), nil, TriggeredByFollowUp)
		return nil
	}
	facts, _ := p.stores.Memories.List(ctx, conv.ID)
	grounding := p.buildContext(ctx, conv, history, facts)

	reply, err := p.generateFollowUpReply(ctx, agentCfg, grounding, history, fu, conv)
	if err != nil {
		return nil
	}

	creds := bus.Credentials{
		InstanceID:  conv.InstanceID,
		Token:       agentCfg.GatewayToken,
		ClientToken: agentCfg.GatewayClientToken,
	}
	msg := p.dispatch(ctx, agentCfg, conv, creds, reply)

	var msgID *uuid.UUID
	if msg != nil {
		msgID = &msg.ID
	}
	p.audit(ctx, conv, store.ActionFollowUpFired, "intent="+fu.Intent, msgID, TriggeredByFollowUp)
	return nil
}

func dropMessage(history []store.Message, id uuid.UUID) []store.Message {
	out := history[:0]
	for _, m := range history {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

// Wait blocks until all detached background work has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// audit appends one decision-trail entry. Audit failures are logged and
// never interrupt the pipeline.
func (p *Pipeline) audit(ctx context.Context, conv *store.Conversation, action, details string, messageID *uuid.UUID, triggeredBy string) {
	entry := &store.AILogEntry{
		ConversationID: conv.ID,
		OrganizationID: conv.OrganizationID,
		Action:         action,
		Details:        details,
		MessageID:      messageID,
		TriggeredBy:    triggeredBy,
	}
	if err := p.stores.Audit.Insert(ctx, entry); err != nil {
		p.log.Warn("audit insert failed", "action", action, "conversation", conv.ID, "error", err)
	}
}
