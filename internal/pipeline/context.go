package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/leadfoundry/zapagent/internal/store"
)

const maxDealsInContext = 5

// buildContext assembles the grounding text handed to the model: recent
// history, then a CRM snapshot, then memory facts grouped by category.
// Every section is optional and absent-safe; the order is fixed.
func (p *Pipeline) buildContext(ctx context.Context, conv *store.Conversation, history []store.Message, facts []store.MemoryFact) string {
	var sections []string

	if s := historySection(history); s != "" {
		sections = append(sections, s)
	}
	if s := p.crmSection(ctx, conv); s != "" {
		sections = append(sections, s)
	}
	if s := memorySection(facts); s != "" {
		sections = append(sections, s)
	}
	return strings.Join(sections, "\n\n")
}

func historySection(history []store.Message) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Conversation history\n")
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", roleTag(m), m.Body)
	}
	return strings.TrimRight(b.String(), "\n")
}

// crmSection summarizes the linked contact and up to 5 open deals. A
// conversation without a contact, or a contact without deals, yields a
// smaller section or none at all, never an error.
func (p *Pipeline) crmSection(ctx context.Context, conv *store.Conversation) string {
	if conv.ContactID == nil {
		return ""
	}
	contact, err := p.stores.CRM.GetContact(ctx, *conv.ContactID)
	if err != nil {
		p.log.Warn("contact load failed", "contact", *conv.ContactID, "error", err)
		return ""
	}
	if contact == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Contact\n")
	b.WriteString("Name: " + contact.Name)
	if contact.Company != "" {
		b.WriteString("\nCompany: " + contact.Company)
	}
	if contact.Email != "" {
		b.WriteString("\nEmail: " + contact.Email)
	}

	deals, err := p.stores.CRM.OpenDeals(ctx, contact.ID, maxDealsInContext)
	if err != nil {
		p.log.Warn("deals load failed", "contact", contact.ID, "error", err)
		return b.String()
	}
	if len(deals) > 0 {
		b.WriteString("\nOpen deals:")
		for _, d := range deals {
			fmt.Fprintf(&b, "\n- %s (%s, %.2f)", d.Title, d.Stage, d.Value)
		}
	}
	return b.String()
}

func memorySection(facts []store.MemoryFact) string {
	if len(facts) == 0 {
		return ""
	}

	byType := make(map[string][]store.MemoryFact)
	for _, f := range facts {
		byType[f.Type] = append(byType[f.Type], f)
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var b strings.Builder
	b.WriteString("## Known facts")
	for _, t := range types {
		fmt.Fprintf(&b, "\n%s:", memoryHeader(t))
		for _, f := range byType[t] {
			fmt.Fprintf(&b, "\n- %s: %s", f.Key, f.Value)
		}
	}
	return b.String()
}

func memoryHeader(t string) string {
	switch t {
	case "personal":
		return "Personal"
	case "preference":
		return "Preferences"
	case "objection":
		return "Objections"
	case "context":
		return "Context"
	case "":
		return "Other"
	default:
		return strings.ToUpper(t[:1]) + t[1:]
	}
}
