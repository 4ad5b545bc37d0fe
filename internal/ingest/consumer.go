package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/leadfoundry/zapagent/internal/bus"
	"github.com/leadfoundry/zapagent/internal/config"
	"github.com/leadfoundry/zapagent/internal/pipeline"
	"github.com/leadfoundry/zapagent/internal/store"
)

const (
	readLimit      = 1 << 20
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Consumer reads decoded inbound events from the webhook bridge over a
// websocket and feeds them into the pipeline. The bridge owns the
// WhatsApp protocol; this side only sees bus.IngressEvent JSON frames.
type Consumer struct {
	cfg     config.BridgeConfig
	stores  *store.Stores
	pipe    *pipeline.Pipeline
	limiter *Limiter
	log     *slog.Logger
	wg      sync.WaitGroup
}

func NewConsumer(cfg *config.Config, stores *store.Stores, pipe *pipeline.Pipeline, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		cfg:     cfg.Bridge,
		stores:  stores,
		pipe:    pipe,
		limiter: NewLimiter(cfg.Ingest.RateLimitPerMinute, time.Minute),
		log:     log,
	}
}

// Run consumes events until the context is cancelled, reconnecting with
// exponential backoff after connection loss.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			c.wg.Wait()
			return ctx.Err()
		}

		start := time.Now()
		err := c.consume(ctx)
		if ctx.Err() != nil {
			c.wg.Wait()
			return ctx.Err()
		}

		// A connection that lived a while resets the backoff.
		if time.Since(start) > time.Minute {
			backoff = initialBackoff
		}
		c.log.Warn("bridge connection lost, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			c.wg.Wait()
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Consumer) consume(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()
	conn.SetReadLimit(readLimit)

	c.log.Info("bridge connected", "url", c.cfg.URL)

	// Unblock the read loop on shutdown.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ev bus.IngressEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Warn("malformed bridge event", "error", err)
			continue
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handle(ctx, &ev)
		}()
	}
}

// handle resolves the conversation, persists the inbound message, and
// runs the pipeline. The pipeline serializes per conversation, so events
// can be handled concurrently here.
func (c *Consumer) handle(ctx context.Context, ev *bus.IngressEvent) {
	if ev.InstanceID == "" || ev.RemoteJID == "" || ev.Text == "" {
		return
	}
	if !c.limiter.Allow(ev.InstanceID + "/" + ev.RemoteJID) {
		c.log.Warn("inbound rate limit hit", "instance", ev.InstanceID, "remote", ev.RemoteJID)
		return
	}

	conv, err := c.stores.Conversations.GetByRemote(ctx, ev.InstanceID, ev.RemoteJID)
	if err != nil {
		c.log.Error("conversation lookup failed", "instance", ev.InstanceID, "error", err)
		return
	}
	if conv == nil {
		conv = c.createConversation(ctx, ev)
		if conv == nil {
			return
		}
	}

	kind := ev.Kind
	if kind == "" {
		kind = "text"
	}
	msg := &store.Message{
		ConversationID:    conv.ID,
		Direction:         store.DirectionIn,
		Sender:            store.SenderCustomer,
		Kind:              kind,
		Body:              ev.Text,
		Status:            store.StatusSent,
		ProviderMessageID: ev.MessageID,
	}
	if err := c.stores.Messages.Insert(ctx, msg); err != nil {
		c.log.Error("inbound message persist failed", "conversation", conv.ID, "error", err)
		return
	}
	if err := c.stores.Conversations.TouchLastMessage(ctx, conv.ID, ev.Text, msg.CreatedAt); err != nil {
		c.log.Warn("last-message touch failed", "conversation", conv.ID, "error", err)
	}

	if err := c.pipe.Run(ctx, &pipeline.Request{
		Conversation: conv,
		Message:      msg,
		Credentials:  ev.Credentials,
		TriggeredBy:  pipeline.TriggeredByCustomer,
	}); err != nil {
		c.log.Error("pipeline run failed", "conversation", conv.ID, "error", err)
	}
}

// createConversation materializes a conversation on the first inbound
// message and links the CRM contact when one matches the phone number.
func (c *Consumer) createConversation(ctx context.Context, ev *bus.IngressEvent) *store.Conversation {
	agentCfg, err := c.stores.AgentConfigs.GetByInstance(ctx, ev.InstanceID)
	if err != nil {
		c.log.Error("agent config lookup failed", "instance", ev.InstanceID, "error", err)
		return nil
	}
	if agentCfg == nil {
		// Unknown instance: nothing to scope the conversation to.
		c.log.Debug("event for unconfigured instance dropped", "instance", ev.InstanceID)
		return nil
	}

	conv := &store.Conversation{
		OrganizationID: agentCfg.OrganizationID,
		InstanceID:     ev.InstanceID,
		RemoteJID:      ev.RemoteJID,
		ContactName:    ev.PushName,
		AIActive:       true,
	}

	phone := phoneFromJID(ev.RemoteJID)
	if contact, err := c.stores.CRM.FindContactByPhone(ctx, agentCfg.OrganizationID, phone); err == nil && contact != nil {
		conv.ContactID = &contact.ID
		if conv.ContactName == "" {
			conv.ContactName = contact.Name
		}
	}

	if err := c.stores.Conversations.Create(ctx, conv); err != nil {
		// Likely a concurrent create for the same remote; re-read.
		existing, lookupErr := c.stores.Conversations.GetByRemote(ctx, ev.InstanceID, ev.RemoteJID)
		if lookupErr != nil || existing == nil {
			c.log.Error("conversation create failed", "instance", ev.InstanceID, "error", err)
			return nil
		}
		return existing
	}
	return conv
}

func phoneFromJID(jid string) string {
	for i := 0; i < len(jid); i++ {
		if jid[i] == '@' {
			return jid[:i]
		}
	}
	return jid
}
