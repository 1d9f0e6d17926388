// Package draft advances a conversational invoice draft one turn at a time
// and keeps per-session conversation state.
package draft

import (
	"github.com/starford/voiceinvoice/internal/interpret"
	"github.com/starford/voiceinvoice/internal/models"
	"github.com/starford/voiceinvoice/internal/money"
)

// Outcome is the state after one merged turn.
type Outcome struct {
	Draft  *models.Draft
	Client *models.Client
	Reply  string
}

// Engine merges normalized interpretations into drafts.
type Engine struct {
	// DefaultTaxRate seeds drafts created from scratch. Existing drafts
	// keep their own rate.
	DefaultTaxRate float64
}

// Merge folds in into prev. prev and selected are not modified.
//
// A resolved client replaces the selected one. Non-empty line items replace
// the draft's items wholesale; the interpreter is expected to send the full
// corrected list every turn. Non-empty notes replace prior notes. Totals
// are always recomputed.
func (e Engine) Merge(prev *models.Draft, selected *models.Client, in interpret.Result) Outcome {
	client := cloneClient(selected)
	if in.ResolvedClient != nil {
		client = cloneClient(in.ResolvedClient)
	}

	out := Outcome{Client: client, Reply: in.Reply()}

	if len(in.LineItems) == 0 && in.ResolvedClient == nil && in.Notes == "" {
		out.Draft = prev.Clone()
		return out
	}

	next := prev.Clone()
	if next == nil {
		next = &models.Draft{TaxRate: e.DefaultTaxRate, LineItems: []models.LineItem{}}
	}
	if len(in.LineItems) > 0 {
		next.LineItems = append([]models.LineItem(nil), in.LineItems...)
	}
	if in.Notes != "" {
		next.Notes = in.Notes
	}
	if client != nil {
		next.ClientID = client.ID
	}
	money.Recompute(next)

	out.Draft = next
	return out
}

// Ready reports whether a draft can be committed for the given client.
func Ready(d *models.Draft, c *models.Client) bool {
	return d != nil && len(d.LineItems) > 0 && c != nil
}

func cloneClient(c *models.Client) *models.Client {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
