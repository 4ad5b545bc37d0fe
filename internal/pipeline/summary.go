package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/providers"
	"github.com/leadfoundry/zapagent/internal/store"
)

type summaryPayload struct {
	Summary   string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
}

// maybeSummarize spawns a detached digest task every Nth inbound message.
// It never blocks the reply path and every failure inside the task is
// swallowed: summaries are best-effort.
func (p *Pipeline) maybeSummarize(ctx context.Context, cfg *config.AgentConfig, conv *store.Conversation) {
	count, err := p.stores.Messages.CountInbound(ctx, conv.ID)
	if err != nil || count == 0 || count%cfg.SummaryEvery != 0 {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		timeout := time.Duration(p.cfg.Summary.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		// Detached from the request: the reply path may already be done.
		bg, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		p.summarize(bg, cfg, conv, count)
	}()
}

func (p *Pipeline) summarize(ctx context.Context, cfg *config.AgentConfig, conv *store.Conversation, messageCount int) {
	provider, err := p.registry.Get(cfg.Provider)
	if err != nil {
		return
	}

	limit := p.cfg.Summary.HistoryLimit
	if limit <= 0 {
		limit = 50
	}
	history, err := p.stores.Messages.Recent(ctx, conv.ID, limit)
	if err != nil || len(history) == 0 {
		return
	}

	var b strings.Builder
	b.WriteString("Summarize this WhatsApp sales conversation. Respond with one JSON object only:\n")
	b.WriteString(`{"summary": "2-3 sentences", "key_points": ["point"]}`)
	b.WriteString("\n\nConversation:\n")
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", roleTag(m), m.Body)
	}

	maxTokens := p.cfg.Summary.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	raw, err := provider.Generate(ctx, []providers.Message{providers.User(b.String())}, maxTokens)
	if err != nil {
		p.log.Debug("summary generate failed", "conversation", conv.ID, "error", err)
		return
	}

	payload, err := parseSummary(raw)
	if err != nil {
		p.log.Debug("summary parse failed", "conversation", conv.ID, "error", err)
		return
	}
	if payload.Summary == "" {
		return
	}

	sum := &store.Summary{
		ConversationID: conv.ID,
		Content:        payload.Summary,
		KeyPoints:      payload.KeyPoints,
		MessageCount:   messageCount,
	}
	if err := p.stores.Summaries.Insert(ctx, sum); err != nil {
		p.log.Debug("summary persist failed", "conversation", conv.ID, "error", err)
	}
}

func parseSummary(raw string) (*summaryPayload, error) {
	obj := firstJSONObject(raw)
	if obj == "" {
		return nil, fmt.Errorf("no JSON object in output")
	}
	var payload summaryPayload
	if err := json.Unmarshal([]byte(obj), &payload); err == nil {
		return &payload, nil
	}
	fixed, err := jsonrepair.JSONRepair(obj)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fixed), &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
