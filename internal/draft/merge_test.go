package draft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/voiceinvoice/internal/interpret"
	"github.com/starford/voiceinvoice/internal/models"
)

var (
	jane = models.Client{ID: "c-1", Name: "Jane Doe", Email: "jane@example.com"}
	acme = models.Client{ID: "c-2", Name: "Acme Corp", Email: "ap@acme.test"}
)

func parsed(items ...models.LineItem) interpret.Result {
	return interpret.Result{
		Kind:             interpret.KindParsed,
		LineItems:        items,
		Confidence:       interpret.ConfidenceHigh,
		AssistantMessage: "ok",
	}
}

func labor(days float64) models.LineItem {
	return models.LineItem{Description: "Labor", Quantity: days, Rate: 400, Amount: days * 400}
}

func assertInvariants(t *testing.T, d *models.Draft) {
	t.Helper()
	var sum float64
	for _, it := range d.LineItems {
		assert.Equal(t, it.Quantity*it.Rate, it.Amount)
		sum += it.Amount
	}
	assert.Equal(t, sum, d.Subtotal)
	assert.Equal(t, d.Subtotal*d.TaxRate, d.TaxAmount)
	assert.Equal(t, d.Subtotal+d.TaxAmount, d.Total)
}

func TestMerge_FirstTurnCreatesDraft(t *testing.T) {
	in := parsed(labor(3))
	in.ResolvedClient = &jane
	in.AssistantMessage = "3 days for Jane."

	out := Engine{}.Merge(nil, nil, in)

	require.NotNil(t, out.Draft)
	require.NotNil(t, out.Client)
	assert.Equal(t, "c-1", out.Client.ID)
	assert.Equal(t, "c-1", out.Draft.ClientID)
	assert.Equal(t, 1200.0, out.Draft.Subtotal)
	assert.Equal(t, 0.0, out.Draft.TaxAmount)
	assert.Equal(t, 1200.0, out.Draft.Total)
	assert.Equal(t, "3 days for Jane.", out.Reply)
	assertInvariants(t, out.Draft)
}

func TestMerge_DefaultTaxRateAppliesToNewDraft(t *testing.T) {
	out := Engine{DefaultTaxRate: 0.08}.Merge(nil, &jane, parsed(labor(3)))

	require.NotNil(t, out.Draft)
	assert.Equal(t, 0.08, out.Draft.TaxRate)
	assert.InDelta(t, 96.0, out.Draft.TaxAmount, 1e-9)
	assert.InDelta(t, 1296.0, out.Draft.Total, 1e-9)
	assertInvariants(t, out.Draft)
}

func TestMerge_LineItemsReplaceWholesale(t *testing.T) {
	prev := Engine{}.Merge(nil, &jane, parsed(labor(3), models.LineItem{Description: "Paint", Quantity: 2, Rate: 40, Amount: 80})).Draft

	out := Engine{}.Merge(prev, &jane, parsed(labor(4)))

	require.Len(t, out.Draft.LineItems, 1)
	assert.Equal(t, 4.0, out.Draft.LineItems[0].Quantity)
	assert.Equal(t, 1600.0, out.Draft.Total)
	require.Len(t, prev.LineItems, 2, "previous draft must not be mutated")
	assertInvariants(t, out.Draft)
}

func TestMerge_EmptyItemsKeepDraftItems(t *testing.T) {
	prev := Engine{}.Merge(nil, &jane, parsed(labor(3))).Draft

	in := parsed()
	in.Notes = "Paid half up front"
	out := Engine{}.Merge(prev, &jane, in)

	assert.Equal(t, prev.LineItems, out.Draft.LineItems)
	assert.Equal(t, "Paid half up front", out.Draft.Notes)
	assertInvariants(t, out.Draft)
}

func TestMerge_TaxRateIsSticky(t *testing.T) {
	prev := &models.Draft{TaxRate: 0.05, LineItems: []models.LineItem{labor(1)}}

	out := Engine{DefaultTaxRate: 0.2}.Merge(prev, &jane, parsed(labor(2)))

	assert.Equal(t, 0.05, out.Draft.TaxRate)
	assert.Equal(t, 40.0, out.Draft.TaxAmount)
	assertInvariants(t, out.Draft)
}

func TestMerge_NotesCarryForward(t *testing.T) {
	prev := &models.Draft{Notes: "Kitchen", LineItems: []models.LineItem{labor(1)}}

	out := Engine{}.Merge(prev, &jane, parsed(labor(2)))
	assert.Equal(t, "Kitchen", out.Draft.Notes)

	in := parsed(labor(2))
	in.Notes = "Kitchen and hallway"
	out = Engine{}.Merge(out.Draft, &jane, in)
	assert.Equal(t, "Kitchen and hallway", out.Draft.Notes)
}

func TestMerge_ResolvedClientOverridesSelected(t *testing.T) {
	prev := &models.Draft{ClientID: jane.ID, LineItems: []models.LineItem{labor(1)}}
	in := parsed()
	in.ResolvedClient = &acme

	out := Engine{}.Merge(prev, &jane, in)

	require.NotNil(t, out.Client)
	assert.Equal(t, acme.ID, out.Client.ID)
	assert.Equal(t, acme.ID, out.Draft.ClientID)
	assert.Equal(t, prev.LineItems, out.Draft.LineItems)
}

func TestMerge_SelectedClientFillsClientID(t *testing.T) {
	out := Engine{}.Merge(nil, &acme, parsed(labor(1)))
	assert.Equal(t, acme.ID, out.Draft.ClientID)

	out = Engine{}.Merge(nil, nil, parsed(labor(1)))
	assert.Empty(t, out.Draft.ClientID)
	assert.Nil(t, out.Client)
}

func TestMerge_ClarificationTurnIsNoOp(t *testing.T) {
	prev := Engine{}.Merge(nil, &jane, parsed(labor(3))).Draft
	in := parsed()
	in.ClarificationNeeded = true
	in.AssistantMessage = "What rate should I use?"

	out := Engine{}.Merge(prev, &jane, in)

	assert.Equal(t, prev, out.Draft)
	assert.NotSame(t, prev, out.Draft)
	assert.Equal(t, "What rate should I use?", out.Reply)
	assert.Equal(t, jane.ID, out.Client.ID)

	out = Engine{}.Merge(nil, nil, in)
	assert.Nil(t, out.Draft)
	assert.Nil(t, out.Client)
}

func TestMerge_DegenerateLeavesDraftUnchanged(t *testing.T) {
	prev := Engine{}.Merge(nil, &jane, parsed(labor(3))).Draft

	out := Engine{}.Merge(prev, &jane, interpret.Degenerate())

	assert.Equal(t, prev, out.Draft)
	assert.Equal(t, interpret.ApologyMessage, out.Reply)
}

func TestMerge_ReturnedClientIsACopy(t *testing.T) {
	sel := jane
	out := Engine{}.Merge(nil, &sel, parsed(labor(1)))
	out.Client.Name = "changed"
	assert.Equal(t, "Jane Doe", sel.Name)
}

func TestReady(t *testing.T) {
	assert.False(t, Ready(nil, &jane))
	assert.False(t, Ready(&models.Draft{}, &jane))
	assert.False(t, Ready(&models.Draft{LineItems: []models.LineItem{labor(1)}}, nil))
	assert.True(t, Ready(&models.Draft{LineItems: []models.LineItem{labor(1)}}, &jane))
}
