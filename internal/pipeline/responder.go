package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/providers"
	"github.com/leadfoundry/zapagent/internal/store"
)

// generateReply produces the outbound text for the current inbound
// message. Contract: a missing provider credential returns the configured
// transfer message deterministically; a failed provider call is audited
// as an error and aborts the response path (no partial reply is ever
// dispatched).
func (p *Pipeline) generateReply(ctx context.Context, cfg *config.AgentConfig, grounding string, history []store.Message, current, triggeredBy string, conv *store.Conversation) (string, error) {
	provider, err := p.registry.Get(cfg.Provider)
	if err != nil {
		return cfg.TransferMessage, nil
	}

	messages := append(
		[]providers.Message{providers.System(systemPrompt(cfg, grounding))},
		mergeTurns(history)...)
	messages = append(messages, providers.User(current))

	reply, err := provider.Generate(ctx, messages, cfg.MaxOutputTokens)
	if err != nil {
		p.audit(ctx, conv, store.ActionError, "generate: "+err.Error(), nil, triggeredBy)
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		err := fmt.Errorf("empty model response")
		p.audit(ctx, conv, store.ActionError, "generate: "+err.Error(), nil, triggeredBy)
		return "", err
	}
	return reply, nil
}

// generateFollowUpReply words a scheduled follow-up touch from its
// context snapshot. Same failure contract as generateReply.
func (p *Pipeline) generateFollowUpReply(ctx context.Context, cfg *config.AgentConfig, grounding string, history []store.Message, fu store.FollowUp, conv *store.Conversation) (string, error) {
	provider, err := p.registry.Get(cfg.Provider)
	if err != nil {
		return cfg.TransferMessage, nil
	}

	instruction := fmt.Sprintf(
		"Write a short, natural follow-up message. The customer earlier showed the intent %q", fu.Intent)
	if fu.Context != "" {
		instruction += fmt.Sprintf(" (%s)", fu.Context)
	}
	instruction += ". Re-engage without pressuring; reference what was discussed."

	messages := append(
		[]providers.Message{providers.System(systemPrompt(cfg, grounding))},
		mergeTurns(history)...)
	messages = append(messages, providers.User(instruction))

	reply, err := provider.Generate(ctx, messages, cfg.MaxOutputTokens)
	if err != nil {
		p.audit(ctx, conv, store.ActionError, "follow-up generate: "+err.Error(), nil, TriggeredByFollowUp)
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		err := fmt.Errorf("empty model response")
		p.audit(ctx, conv, store.ActionError, "follow-up generate: "+err.Error(), nil, TriggeredByFollowUp)
		return "", err
	}
	return reply, nil
}

// systemPrompt combines the persona, fixed formatting rules, and the
// grounding context.
func systemPrompt(cfg *config.AgentConfig, grounding string) string {
	var b strings.Builder

	name := cfg.AgentName
	if name == "" {
		name = "Alex"
	}
	role := cfg.AgentRole
	if role == "" {
		role = "sales assistant"
	}
	fmt.Fprintf(&b, "You are %s, a %s answering customers on WhatsApp.", name, role)
	if cfg.Tone != "" {
		fmt.Fprintf(&b, " Tone: %s.", cfg.Tone)
	}

	b.WriteString("\n\nRules:\n")
	b.WriteString("- Plain text only: no markdown, no bullet lists, no headers\n")
	b.WriteString("- Keep replies short, at most three sentences\n")
	b.WriteString("- Never invent prices, dates, or product facts not present in the context\n")
	b.WriteString("- Answer in the customer's language\n")

	if grounding != "" {
		b.WriteString("\n")
		b.WriteString(grounding)
	}
	return b.String()
}

// mergeTurns converts stored history into a strictly alternating
// user/assistant sequence. Consecutive messages from the same side are
// merged; human operator messages count as assistant turns.
func mergeTurns(history []store.Message) []providers.Message {
	var out []providers.Message
	for _, m := range history {
		role := "user"
		if m.Sender == store.SenderAgent || m.Sender == store.SenderHuman {
			role = "assistant"
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n" + m.Body
			continue
		}
		out = append(out, providers.Message{Role: role, Content: m.Body})
	}
	// Providers reject a leading assistant turn.
	if len(out) > 0 && out[0].Role == "assistant" {
		out = out[1:]
	}
	return out
}
