package interpret

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/samber/lo"

	"github.com/starford/voiceinvoice/internal/models"
	"github.com/starford/voiceinvoice/internal/money"
)

// DefaultDescription is used for items the interpreter left unnamed.
const DefaultDescription = "Services"

// Normalize validates raw interpreter output against the known clients.
// It never fails: unusable output yields Degenerate().
func Normalize(raw []byte, clients []models.Client) Result {
	var fields map[string]any
	if err := json.Unmarshal(stripFences(raw), &fields); err != nil || fields == nil {
		return Degenerate()
	}

	items, omissions, ok := normalizeItems(fields["line_items"])
	if !ok {
		return Degenerate()
	}

	res := Result{
		Kind:                  KindParsed,
		LineItems:             items,
		Omissions:             omissions,
		Notes:                 str(fields["notes"]),
		ClarificationNeeded:   boolean(fields["clarification_needed"]),
		ClarificationQuestion: str(fields["clarification_question"]),
		Confidence:            confidence(fields["confidence"]),
		AssistantMessage:      str(fields["assistant_message"]),
	}

	candidateName := ""
	if c, isObj := fields["client"].(map[string]any); isObj {
		if id := str(c["id"]); id != "" {
			if known, found := lo.Find(clients, func(k models.Client) bool { return k.ID == id }); found {
				res.ResolvedClient = &known
			}
		}
		candidateName = str(c["name"])
	}
	if res.ResolvedClient == nil {
		res.UnmatchedClientName = str(fields["client_name_mentioned"])
		if res.UnmatchedClientName == "" {
			res.UnmatchedClientName = candidateName
		}
	}

	if res.AssistantMessage == "" {
		res.AssistantMessage = res.ClarificationQuestion
	}
	if res.AssistantMessage == "" {
		res.AssistantMessage = "Got it."
	}
	return res
}

// normalizeItems returns ok=false only when line_items is present and not an array.
func normalizeItems(v any) ([]models.LineItem, []Omission, bool) {
	items := []models.LineItem{}
	if v == nil {
		return items, nil, true
	}
	list, isList := v.([]any)
	if !isList {
		return nil, nil, false
	}

	var omissions []Omission
	for i, raw := range list {
		obj, isObj := raw.(map[string]any)
		if !isObj {
			omissions = append(omissions, Omission{Index: i, Reason: "not an object"})
			continue
		}
		qty, hasQty := obj["quantity"].(float64)
		rate, hasRate := obj["rate"].(float64)
		switch {
		case !hasQty:
			omissions = append(omissions, Omission{Index: i, Reason: "missing quantity"})
			continue
		case !hasRate:
			omissions = append(omissions, Omission{Index: i, Reason: "missing rate"})
			continue
		case qty <= 0:
			omissions = append(omissions, Omission{Index: i, Reason: "quantity must be positive"})
			continue
		case rate < 0:
			omissions = append(omissions, Omission{Index: i, Reason: "rate must not be negative"})
			continue
		}
		desc := str(obj["description"])
		if desc == "" {
			desc = DefaultDescription
		}
		items = append(items, models.LineItem{
			Description: desc,
			Quantity:    qty,
			Rate:        rate,
			Amount:      money.LineAmount(qty, rate),
		})
	}
	return items, omissions, true
}

// stripFences removes a surrounding markdown code fence, which models emit
// despite being told not to.
func stripFences(raw []byte) []byte {
	b := bytes.TrimSpace(raw)
	if !bytes.HasPrefix(b, []byte("```")) {
		return b
	}
	b = b[3:]
	if nl := bytes.IndexByte(b, '\n'); nl >= 0 {
		b = b[nl+1:]
	}
	b = bytes.TrimSuffix(bytes.TrimSpace(b), []byte("```"))
	return bytes.TrimSpace(b)
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func boolean(v any) bool {
	b, _ := v.(bool)
	return b
}

func confidence(v any) Confidence {
	switch c := Confidence(strings.ToLower(str(v))); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c
	default:
		return ConfidenceLow
	}
}
