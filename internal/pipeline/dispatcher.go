package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/leadfoundry/zapagent/internal/bus"
	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/store"
)

// dispatch sends text through the gateway and, only on confirmed success,
// persists the outbound message and touches the conversation's
// denormalized last-message fields. A gateway failure is swallowed: the
// customer gets nothing, the pipeline continues, nil is returned.
func (p *Pipeline) dispatch(ctx context.Context, cfg *config.AgentConfig, conv *store.Conversation, creds bus.Credentials, text string) *store.Message {
	if text == "" {
		return nil
	}

	// Simulated typing latency.
	p.sleep(ctx, time.Duration(cfg.ResponseDelaySeconds)*time.Second)

	res, err := p.sender.SendText(ctx, creds, phoneFromJID(conv.RemoteJID), text)
	if err != nil {
		p.log.Warn("gateway send failed", "conversation", conv.ID, "error", err)
		return nil
	}

	msg := &store.Message{
		ConversationID:    conv.ID,
		Direction:         store.DirectionOut,
		Sender:            store.SenderAgent,
		Kind:              "text",
		Body:              text,
		Status:            store.StatusSent,
		ProviderMessageID: res.ProviderMessageID,
	}
	if err := p.stores.Messages.Insert(ctx, msg); err != nil {
		p.log.Error("outbound message persist failed", "conversation", conv.ID, "error", err)
		return nil
	}
	if err := p.stores.Conversations.TouchLastMessage(ctx, conv.ID, text, msg.CreatedAt); err != nil {
		p.log.Warn("last-message touch failed", "conversation", conv.ID, "error", err)
	}
	return msg
}

// phoneFromJID extracts the dialable number from a WhatsApp JID, e.g.
// "5511999990000@s.whatsapp.net" -> "5511999990000".
func phoneFromJID(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
