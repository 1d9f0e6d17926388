// Package interpret turns the untrusted output of a language model into a
// sanitized interpretation that is safe to merge into an invoice draft.
package interpret

import (
	"context"

	"github.com/starford/voiceinvoice/internal/models"
)

// Confidence is the interpreter's self-reported certainty.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Kind tags a Result as well-formed or degenerate.
type Kind int

const (
	// KindParsed means the interpreter returned structured data. Individual
	// line items may still have been dropped, see Result.Omissions.
	KindParsed Kind = iota
	// KindDegenerate means the output could not be used at all.
	KindDegenerate
)

func (k Kind) String() string {
	if k == KindDegenerate {
		return "degenerate"
	}
	return "parsed"
}

// Fixed texts used for degenerate results.
const (
	ApologyMessage  = "I had trouble understanding that. Could you try again?"
	ApologyQuestion = "Sorry, I couldn't parse that. Could you try again?"
)

// Request is what the external interpreter receives.
type Request struct {
	Transcript     string          `json:"transcript"`
	Clients        []models.Client `json:"clients"`
	CurrentInvoice *models.Draft   `json:"currentInvoice"`
}

// Interpreter extracts invoice fields from a transcript. It returns the raw
// model output; parsing belongs to Normalize. An error means the service
// itself failed, not that its output was malformed.
type Interpreter interface {
	Interpret(ctx context.Context, req Request) ([]byte, error)
}

// Omission records a candidate line item that was dropped.
type Omission struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// Result is a normalized interpretation.
type Result struct {
	Kind                  Kind              `json:"-"`
	ResolvedClient        *models.Client    `json:"resolved_client"`
	UnmatchedClientName   string            `json:"unmatched_client_name,omitempty"`
	LineItems             []models.LineItem `json:"line_items"`
	Notes                 string            `json:"notes,omitempty"`
	ClarificationNeeded   bool              `json:"clarification_needed"`
	ClarificationQuestion string            `json:"clarification_question,omitempty"`
	Confidence            Confidence        `json:"confidence"`
	AssistantMessage      string            `json:"assistant_message"`
	Omissions             []Omission        `json:"omissions,omitempty"`
}

// Degenerate returns the result used when interpreter output is unusable.
func Degenerate() Result {
	return Result{
		Kind:                  KindDegenerate,
		LineItems:             []models.LineItem{},
		ClarificationNeeded:   true,
		ClarificationQuestion: ApologyQuestion,
		Confidence:            ConfidenceLow,
		AssistantMessage:      ApologyMessage,
	}
}

// Reply is the user-facing message for this turn.
func (r Result) Reply() string {
	if r.Kind == KindDegenerate {
		return ApologyMessage
	}
	return r.AssistantMessage
}
