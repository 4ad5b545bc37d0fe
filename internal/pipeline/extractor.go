package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/providers"
	"github.com/leadfoundry/zapagent/internal/store"
)

// Signal is the structured bundle produced by the extraction call. An
// empty Signal is valid and means "nothing detected".
type Signal struct {
	Intents         []Intent          `json:"intents"`
	Memories        []ExtractedMemory `json:"memories"`
	LeadScoreDelta  int               `json:"lead_score_delta"`
	SuggestedLabels []string          `json:"suggested_labels"`
	BuyingStage     string            `json:"buying_stage"`
	ShouldPause     bool              `json:"should_pause"`
	PauseReason     string            `json:"pause_reason"`
	Summary         string            `json:"summary"`
}

// Intent is one classified purpose detected in the current message.
type Intent struct {
	Intent               string  `json:"intent"`
	Confidence           float64 `json:"confidence"`
	Context              string  `json:"context"`
	FollowUpDelayMinutes int     `json:"follow_up_delay_minutes"`
}

// ExtractedMemory is one durable fact the model inferred about the contact.
type ExtractedMemory struct {
	Type  string `json:"type"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

const extractionSchema = `{
  "intents": [{"intent": "INTENT_NAME", "confidence": 0.0, "context": "short context", "follow_up_delay_minutes": 0}],
  "memories": [{"type": "personal|preference|objection|context", "key": "snake_case_key", "value": "fact"}],
  "lead_score_delta": 0,
  "suggested_labels": ["label-name"],
  "buying_stage": "",
  "should_pause": false,
  "pause_reason": "",
  "summary": "one sentence"
}`

// extract runs the single intelligence call over the current message and
// bounded history. Never aborts the pipeline: a provider failure or an
// unparseable response degrades to an empty Signal, each logged under its
// own audit action so parse errors stay separate from business errors.
func (p *Pipeline) extract(ctx context.Context, cfg *config.AgentConfig, conv *store.Conversation, history []store.Message, facts []store.MemoryFact, req *Request) *Signal {
	provider, err := p.registry.Get(cfg.Provider)
	if err != nil {
		// No credential for extraction: the response path has its own
		// deterministic fallback, so just continue with an empty signal.
		p.log.Debug("extraction skipped", "instance", cfg.InstanceID, "error", err)
		return &Signal{}
	}

	messages := []providers.Message{
		providers.System(extractionPrompt(cfg, facts)),
		providers.User(extractionInput(history, req.Message.Body)),
	}

	raw, err := provider.Generate(ctx, messages, 1024)
	if err != nil {
		p.audit(ctx, conv, store.ActionError, "extraction: "+err.Error(), nil, req.TriggeredBy)
		return &Signal{}
	}

	sig, err := parseSignal(raw)
	if err != nil {
		p.audit(ctx, conv, store.ActionParseError, truncateDetail(err.Error(), 200), nil, req.TriggeredBy)
		return &Signal{}
	}
	return sig
}

func extractionPrompt(cfg *config.AgentConfig, facts []store.MemoryFact) string {
	var b strings.Builder
	b.WriteString("You analyze one customer message in a WhatsApp sales conversation ")
	b.WriteString("and extract structured signals. Respond with a single JSON object ")
	b.WriteString("matching exactly this schema, no prose, no markdown:\n")
	b.WriteString(extractionSchema)
	b.WriteString("\n\nRules:\n")
	b.WriteString("- confidence in [0,1]; follow_up_delay_minutes > 0 only when a future touch makes sense\n")
	b.WriteString("- lead_score_delta in [-20,20], 0 when the message carries no buying signal\n")
	b.WriteString("- should_pause=true only when the customer explicitly asks for a human, is angry, or discusses a topic the agent must not handle\n")
	b.WriteString("- memories are durable facts, not restatements of the message\n")

	if len(facts) > 0 {
		b.WriteString("\nKnown facts (do not re-extract unchanged ones):\n")
		for _, f := range facts {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", f.Type, f.Key, f.Value)
		}
	}
	return b.String()
}

func extractionInput(history []store.Message, current string) string {
	var b strings.Builder
	if len(history) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", roleTag(m), m.Body)
		}
		b.WriteString("\n")
	}
	b.WriteString("Current message: ")
	b.WriteString(current)
	return b.String()
}

// parseSignal pulls the first JSON object out of the raw model output and
// decodes it, repairing malformed JSON before giving up.
func parseSignal(raw string) (*Signal, error) {
	obj := firstJSONObject(raw)
	if obj == "" {
		return nil, fmt.Errorf("no JSON object in output")
	}

	var sig Signal
	if err := json.Unmarshal([]byte(obj), &sig); err == nil {
		return &sig, nil
	}
	fixed, err := jsonrepair.JSONRepair(obj)
	if err != nil {
		return nil, fmt.Errorf("repair: %w", err)
	}
	if err := json.Unmarshal([]byte(fixed), &sig); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return &sig, nil
}

// firstJSONObject returns the first balanced {...} span in s, respecting
// string literals and escapes. Empty when none is found.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inStr := false
	esc := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case c == '\\':
				esc = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func roleTag(m store.Message) string {
	switch m.Sender {
	case store.SenderAgent:
		return "Agent"
	case store.SenderHuman:
		return "Human"
	default:
		return "Customer"
	}
}

func truncateDetail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
