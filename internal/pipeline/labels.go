package pipeline

import (
	"context"

	"github.com/leadfoundry/zapagent/internal/store"
)

// applyLabels resolves each suggested label in the org taxonomy and
// assigns it to the conversation. Assignments are idempotent: a label
// already on the conversation produces no new row and no audit entry.
func (p *Pipeline) applyLabels(ctx context.Context, conv *store.Conversation, sig *Signal, req *Request) {
	if len(sig.SuggestedLabels) == 0 {
		return
	}

	if err := p.stores.Labels.EnsureDefaults(ctx, conv.OrganizationID); err != nil {
		p.log.Warn("label defaults seed failed", "organization", conv.OrganizationID, "error", err)
		return
	}

	for _, name := range sig.SuggestedLabels {
		if name == "" {
			continue
		}
		label, err := p.stores.Labels.ResolveOrCreate(ctx, conv.OrganizationID, name)
		if err != nil {
			p.log.Warn("label resolve failed", "name", name, "error", err)
			continue
		}
		assigned, err := p.stores.Labels.Assign(ctx, conv.ID, label.ID)
		if err != nil {
			p.log.Warn("label assign failed", "name", name, "error", err)
			continue
		}
		if assigned {
			p.audit(ctx, conv, store.ActionLabelAssigned, name, &req.Message.ID, req.TriggeredBy)
		}
	}
}
