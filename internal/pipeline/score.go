package pipeline

import (
	"context"
	"fmt"

	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/store"
)

// applyScore folds the extractor's delta into the lead score, clamped to
// [0,100], and re-derives the temperature bucket. A zero delta with no
// buying-stage change is a no-op.
func (p *Pipeline) applyScore(ctx context.Context, cfg *config.AgentConfig, conv *store.Conversation, sig *Signal, req *Request) {
	if sig.LeadScoreDelta == 0 && sig.BuyingStage == "" {
		return
	}

	current, err := p.stores.Scores.Get(ctx, conv.ID)
	if err != nil {
		p.log.Warn("lead score load failed", "conversation", conv.ID, "error", err)
		return
	}

	old := 0
	stage := sig.BuyingStage
	if current != nil {
		old = current.Score
		if stage == "" {
			stage = current.BuyingStage
		}
	}

	score := clamp(old+sig.LeadScoreDelta, 0, 100)
	updated := &store.LeadScore{
		ConversationID: conv.ID,
		Score:          score,
		Temperature:    p.temperatureFor(score),
		BuyingStage:    stage,
	}
	if err := p.stores.Scores.Upsert(ctx, updated); err != nil {
		p.log.Warn("lead score upsert failed", "conversation", conv.ID, "error", err)
		return
	}

	p.audit(ctx, conv, store.ActionScoreUpdated,
		fmt.Sprintf("%d -> %d (%s)", old, score, updated.Temperature), &req.Message.ID, req.TriggeredBy)
}

// temperatureFor maps a score onto the configured buckets.
func (p *Pipeline) temperatureFor(score int) string {
	warm, hot := p.cfg.Scoring.WarmThreshold, p.cfg.Scoring.HotThreshold
	if warm <= 0 {
		warm = 40
	}
	if hot <= 0 {
		hot = 70
	}
	switch {
	case score >= hot:
		return store.TemperatureHot
	case score >= warm:
		return store.TemperatureWarm
	default:
		return store.TemperatureCold
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
