package pipeline

import (
	"context"
	"fmt"

	"github.com/leadfoundry/zapagent/internal/store"
)

// applyMemories persists the extracted facts. Failures are caught and
// logged per fact; nothing here is pipeline-fatal.
func (p *Pipeline) applyMemories(ctx context.Context, conv *store.Conversation, sig *Signal, req *Request) {
	for _, m := range sig.Memories {
		if m.Type == "" || m.Key == "" || m.Value == "" {
			continue
		}
		fact := &store.MemoryFact{
			ConversationID:  conv.ID,
			Type:            m.Type,
			Key:             m.Key,
			Value:           m.Value,
			SourceMessageID: &req.Message.ID,
		}
		if err := p.stores.Memories.Upsert(ctx, fact); err != nil {
			p.log.Warn("memory upsert failed", "conversation", conv.ID, "type", m.Type, "key", m.Key, "error", err)
			continue
		}
		p.audit(ctx, conv, store.ActionMemorySaved, fmt.Sprintf("%s/%s", m.Type, m.Key), &req.Message.ID, req.TriggeredBy)
	}
}
