package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leadfoundry/zapagent/internal/store"
)

func TestNoAgentConfigIsSilent(t *testing.T) {
	h := newHarness()
	conv := &store.Conversation{InstanceID: "unknown-inst", RemoteJID: "551199@s.whatsapp.net", AIActive: true}
	h.convs.Create(context.Background(), conv)

	req := h.inbound(conv, "oi")
	if err := h.pipe.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := len(h.sender.sentMessages()); got != 0 {
		t.Errorf("sent %d messages, want 0", got)
	}
	if got := len(h.audit.entries); got != 0 {
		t.Errorf("wrote %d audit entries, want 0", got)
	}
	if got := h.provider.callCount(); got != 0 {
		t.Errorf("provider called %d times, want 0", got)
	}
}

func TestInactiveConversationIsNoOp(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig()
	conv := h.conversation(cfg)
	h.convs.SetAIActive(context.Background(), conv.ID, false, "manual")
	conv.AIActive = false

	if err := h.pipe.Run(context.Background(), h.inbound(conv, "oi")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := len(h.sender.sentMessages()); got != 0 {
		t.Errorf("sent %d messages, want 0", got)
	}
	if got := len(h.audit.entries); got != 0 {
		t.Errorf("wrote %d audit entries, want 0", got)
	}
	if got := h.provider.callCount(); got != 0 {
		t.Errorf("provider called %d times, want 0", got)
	}
	if len(h.scores.rows) != 0 || len(h.followUps.rows) != 0 || len(h.memories.rows) != 0 {
		t.Error("state mutated for inactive conversation")
	}
}

func TestScoreClamping(t *testing.T) {
	tests := []struct {
		name    string
		initial int
		delta   int
		want    int
	}{
		{"clamps at 100", 95, 10, 100},
		{"clamps at 0", 30, -50, 0},
		{"stays at floor", 0, -5, 0},
		{"normal add", 50, 10, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			cfg := h.agentConfig()
			conv := h.conversation(cfg)
			h.scores.rows[conv.ID] = store.LeadScore{ConversationID: conv.ID, Score: tt.initial, Temperature: store.TemperatureCold}

			h.provider.responses = []string{
				fmt.Sprintf(`{"lead_score_delta":%d}`, tt.delta),
				"tudo certo!",
			}
			if err := h.pipe.Run(context.Background(), h.inbound(conv, "oi")); err != nil {
				t.Fatalf("Run: %v", err)
			}

			got := h.scores.rows[conv.ID]
			if got.Score != tt.want {
				t.Errorf("score = %d, want %d", got.Score, tt.want)
			}
		})
	}
}

func TestScoreTemperatureBuckets(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{0, store.TemperatureCold},
		{39, store.TemperatureCold},
		{40, store.TemperatureWarm},
		{69, store.TemperatureWarm},
		{70, store.TemperatureHot},
		{100, store.TemperatureHot},
	}
	h := newHarness()
	for _, tt := range tests {
		if got := h.pipe.temperatureFor(tt.score); got != tt.want {
			t.Errorf("temperatureFor(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestLabelAssignmentIdempotent(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig()
	conv := h.conversation(cfg)

	signal := `{"suggested_labels":["interested"]}`
	h.provider.responses = []string{signal, "resposta 1", signal, "resposta 2"}

	for i := 0; i < 2; i++ {
		fresh, _ := h.convs.GetByID(context.Background(), conv.ID)
		if err := h.pipe.Run(context.Background(), h.inbound(fresh, "tenho interesse")); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}

	if got := h.labels.assignmentCount(); got != 1 {
		t.Errorf("assignment rows = %d, want 1", got)
	}
	if got := len(h.audit.byAction(store.ActionLabelAssigned)); got != 1 {
		t.Errorf("label_assigned audits = %d, want 1", got)
	}
}

func TestFollowUpCapSkipsSilently(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig() // MaxFollowUps normalizes to 3
	conv := h.conversation(cfg)
	for i := 0; i < 3; i++ {
		h.followUps.Create(context.Background(), &store.FollowUp{
			ConversationID: conv.ID,
			TriggerAt:      h.now.Add(time.Hour),
			Intent:         "PRICE",
		})
	}

	h.provider.responses = []string{
		`{"intents":[{"intent":"MEETING","confidence":0.9,"follow_up_delay_minutes":30}]}`,
		"claro!",
	}
	if err := h.pipe.Run(context.Background(), h.inbound(conv, "me chama depois")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := len(h.followUps.rows); got != 3 {
		t.Errorf("follow-up rows = %d, want 3 (4th must not be created)", got)
	}
	if got := len(h.audit.byAction(store.ActionFollowUpScheduled)); got != 0 {
		t.Errorf("follow_up_scheduled audits = %d, want 0", got)
	}
}

func TestMeetingIntentSchedulesFollowUpAndReplies(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig()
	conv := h.conversation(cfg)

	h.provider.responses = []string{
		`{"intents":[{"intent":"MEETING","confidence":0.9,"context":"quer agendar","follow_up_delay_minutes":30}],"lead_score_delta":10}`,
		"Perfeito, vamos agendar!",
	}
	if err := h.pipe.Run(context.Background(), h.inbound(conv, "Quero agendar reuniao")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := h.scores.rows[conv.ID].Score; got != 10 {
		t.Errorf("score = %d, want 10", got)
	}

	if len(h.followUps.rows) != 1 {
		t.Fatalf("follow-up rows = %d, want 1", len(h.followUps.rows))
	}
	fu := h.followUps.rows[0]
	if fu.Intent != "MEETING" {
		t.Errorf("intent = %q, want MEETING", fu.Intent)
	}
	if want := h.now.Add(30 * time.Minute); !fu.TriggerAt.Equal(want) {
		t.Errorf("trigger_at = %v, want %v", fu.TriggerAt, want)
	}

	sent := h.sender.sentMessages()
	if len(sent) != 1 || sent[0] != "Perfeito, vamos agendar!" {
		t.Errorf("sent = %v, want the generated reply", sent)
	}
	if got := len(h.audit.byAction(store.ActionReplied)); got != 1 {
		t.Errorf("replied audits = %d, want 1", got)
	}
}

func TestOutsideHoursMessageOncePerDay(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig()
	cfg.WorkingHoursStart = "08:00"
	cfg.WorkingHoursEnd = "12:00"
	cfg.OutsideHoursMessage = "Estamos fora do horario, retornamos amanha."
	h.agentCfgs.rows[cfg.InstanceID] = cfg
	conv := h.conversation(cfg)

	// h.now is 14:00, outside the window.
	for i := 0; i < 3; i++ {
		fresh, _ := h.convs.GetByID(context.Background(), conv.ID)
		if err := h.pipe.Run(context.Background(), h.inbound(fresh, "oi?")); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}

	sent := h.sender.sentMessages()
	if len(sent) != 1 || sent[0] != cfg.OutsideHoursMessage {
		t.Errorf("sent = %v, want exactly one outside-hours message", sent)
	}
	if got := len(h.audit.byAction(store.ActionOutsideHours)); got != 1 {
		t.Errorf("outside_hours_reply audits = %d, want 1", got)
	}
	if got := h.provider.callCount(); got != 0 {
		t.Errorf("provider called %d times outside hours, want 0", got)
	}
}

func TestSmartPauseAbortsBeforeResponse(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig()
	conv := h.conversation(cfg)

	h.provider.responses = []string{
		`{"should_pause":true,"pause_reason":"customer requested human"}`,
	}
	if err := h.pipe.Run(context.Background(), h.inbound(conv, "quero falar com humano")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := h.convs.GetByID(context.Background(), conv.ID)
	if got.AIActive {
		t.Error("conversation still active after smart pause")
	}
	if got.PauseReason != "customer requested human" {
		t.Errorf("pause reason = %q", got.PauseReason)
	}

	// Extraction only; the responder must never run.
	if calls := h.provider.callCount(); calls != 1 {
		t.Errorf("provider calls = %d, want 1 (extraction only)", calls)
	}

	sent := h.sender.sentMessages()
	if len(sent) != 1 || sent[0] != cfg.TransferMessage {
		t.Errorf("sent = %v, want exactly the transfer message", sent)
	}
	if got := len(h.audit.byAction(store.ActionSmartPaused)); got != 1 {
		t.Errorf("smart_paused audits = %d, want 1", got)
	}
}

func TestMessageLimitEscalation(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig()
	cfg.MaxMessages = 5
	h.agentCfgs.rows[cfg.InstanceID] = cfg
	conv := h.conversation(cfg)

	for i := 0; i < 5; i++ {
		h.msgs.Insert(context.Background(), &store.Message{
			ConversationID: conv.ID,
			Direction:      store.DirectionOut,
			Sender:         store.SenderAgent,
			Kind:           "text",
			Body:           fmt.Sprintf("resposta %d", i),
		})
	}

	h.provider.responses = []string{emptySignal}
	if err := h.pipe.Run(context.Background(), h.inbound(conv, "mais uma pergunta")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, _ := h.convs.GetByID(context.Background(), conv.ID)
	if got.AIActive {
		t.Error("conversation still active after message-limit escalation")
	}
	if got.PauseReason != PauseReasonMessageLimit {
		t.Errorf("pause reason = %q, want %q", got.PauseReason, PauseReasonMessageLimit)
	}

	sent := h.sender.sentMessages()
	if len(sent) != 1 || sent[0] != cfg.TransferMessage {
		t.Errorf("sent = %v, want exactly one transfer message", sent)
	}
	if calls := h.provider.callCount(); calls != 1 {
		t.Errorf("provider calls = %d, want 1 (no AI reply after escalation)", calls)
	}
	if got := len(h.audit.byAction(store.ActionEscalated)); got != 1 {
		t.Errorf("escalated audits = %d, want 1", got)
	}

	// A further inbound message is a plain no-op while paused.
	fresh, _ := h.convs.GetByID(context.Background(), conv.ID)
	if err := h.pipe.Run(context.Background(), h.inbound(fresh, "alo?")); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(h.sender.sentMessages()) != 1 {
		t.Error("paused conversation produced another outbound message")
	}
}

func TestMissingProviderFallsBackToTransferMessage(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig()
	cfg.Provider = "anthropic" // not registered in the harness
	h.agentCfgs.rows[cfg.InstanceID] = cfg
	conv := h.conversation(cfg)

	if err := h.pipe.Run(context.Background(), h.inbound(conv, "oi")); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sent := h.sender.sentMessages()
	if len(sent) != 1 || sent[0] != cfg.TransferMessage {
		t.Errorf("sent = %v, want the transfer message verbatim", sent)
	}

	replied := h.audit.byAction(store.ActionReplied)
	if len(replied) != 1 {
		t.Fatalf("replied audits = %d, want 1", len(replied))
	}
	if want := fmt.Sprintf("len=%d", len(cfg.TransferMessage)); replied[0].Details != want {
		t.Errorf("replied details = %q, want %q", replied[0].Details, want)
	}
}

func TestMemoriesPersistedWithProvenance(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig()
	conv := h.conversation(cfg)

	h.provider.responses = []string{
		`{"memories":[{"type":"personal","key":"city","value":"Sao Paulo"},{"type":"preference","key":"contact_channel","value":"whatsapp"}]}`,
		"anotado!",
	}
	req := h.inbound(conv, "moro em Sao Paulo, prefiro whatsapp")
	if err := h.pipe.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}

	facts, _ := h.memories.List(context.Background(), conv.ID)
	if len(facts) != 2 {
		t.Fatalf("facts = %d, want 2", len(facts))
	}
	for _, f := range facts {
		if f.SourceMessageID == nil || *f.SourceMessageID != req.Message.ID {
			t.Errorf("fact %s/%s missing source message id", f.Type, f.Key)
		}
	}
	if got := len(h.audit.byAction(store.ActionMemorySaved)); got != 2 {
		t.Errorf("memory_saved audits = %d, want 2", got)
	}
}

func TestGatewayFailureIsSwallowed(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig()
	conv := h.conversation(cfg)
	h.sender.fail = true

	h.provider.responses = []string{emptySignal, "resposta"}
	if err := h.pipe.Run(context.Background(), h.inbound(conv, "oi")); err != nil {
		t.Fatalf("Run returned error on gateway failure: %v", err)
	}

	// No outbound message persisted, no replied audit.
	out := 0
	for _, m := range h.msgs.rows {
		if m.Direction == store.DirectionOut {
			out++
		}
	}
	if out != 0 {
		t.Errorf("persisted %d outbound messages after gateway failure, want 0", out)
	}
	if got := len(h.audit.byAction(store.ActionReplied)); got != 0 {
		t.Errorf("replied audits = %d, want 0", got)
	}
}

func TestSummaryEveryTenthInboundMessage(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig() // SummaryEvery normalizes to 10
	conv := h.conversation(cfg)

	for i := 0; i < 9; i++ {
		h.msgs.Insert(context.Background(), &store.Message{
			ConversationID: conv.ID,
			Direction:      store.DirectionIn,
			Sender:         store.SenderCustomer,
			Kind:           "text",
			Body:           fmt.Sprintf("pergunta %d", i),
		})
	}

	h.provider.responses = []string{
		emptySignal,
		"resposta",
		`{"summary":"Customer evaluating the pro plan.","key_points":["asked about pricing"]}`,
	}
	// The request message is the tenth inbound message.
	if err := h.pipe.Run(context.Background(), h.inbound(conv, "e o preco?")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	h.pipe.Wait()

	if len(h.summaries.rows) != 1 {
		t.Fatalf("summaries = %d, want 1", len(h.summaries.rows))
	}
	sum := h.summaries.rows[0]
	if sum.Content != "Customer evaluating the pro plan." {
		t.Errorf("content = %q", sum.Content)
	}
	if sum.MessageCount != 10 {
		t.Errorf("message count = %d, want 10", sum.MessageCount)
	}
}

func TestRunFollowUpFiresAndReplies(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig()
	conv := h.conversation(cfg)

	fu := &store.FollowUp{
		ConversationID: conv.ID,
		TriggerAt:      h.now.Add(-time.Minute),
		Intent:         "MEETING",
		Confidence:     0.9,
		Context:        "quer agendar",
	}
	h.followUps.Create(context.Background(), fu)

	h.provider.responses = []string{"Oi Carlos, conseguiu ver a agenda?"}
	if err := h.pipe.RunFollowUp(context.Background(), h.followUps.rows[0]); err != nil {
		t.Fatalf("RunFollowUp: %v", err)
	}

	if got := h.followUps.rows[0].Status; got != store.FollowUpFired {
		t.Errorf("status = %q, want fired", got)
	}
	sent := h.sender.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent = %v, want one follow-up message", sent)
	}
	if got := len(h.audit.byAction(store.ActionFollowUpFired)); got != 1 {
		t.Errorf("follow_up_fired audits = %d, want 1", got)
	}
}

func TestRunFollowUpCancelsWhenPaused(t *testing.T) {
	h := newHarness()
	cfg := h.agentConfig()
	conv := h.conversation(cfg)
	h.convs.SetAIActive(context.Background(), conv.ID, false, "manual")

	h.followUps.Create(context.Background(), &store.FollowUp{
		ConversationID: conv.ID,
		TriggerAt:      h.now.Add(-time.Minute),
		Intent:         "PRICE",
	})

	if err := h.pipe.RunFollowUp(context.Background(), h.followUps.rows[0]); err != nil {
		t.Fatalf("RunFollowUp: %v", err)
	}

	if got := h.followUps.rows[0].Status; got != store.FollowUpCancelled {
		t.Errorf("status = %q, want cancelled", got)
	}
	if got := len(h.sender.sentMessages()); got != 0 {
		t.Errorf("sent %d messages for paused conversation, want 0", got)
	}
	if got := h.provider.callCount(); got != 0 {
		t.Errorf("provider calls = %d, want 0", got)
	}
}
