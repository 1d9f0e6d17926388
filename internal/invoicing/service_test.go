package invoicing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/voiceinvoice/internal/apperr"
	"github.com/starford/voiceinvoice/internal/commit"
	"github.com/starford/voiceinvoice/internal/draft"
	"github.com/starford/voiceinvoice/internal/interpret"
	"github.com/starford/voiceinvoice/internal/models"
	"github.com/starford/voiceinvoice/internal/numbering"
	"github.com/starford/voiceinvoice/internal/sse"
	"github.com/starford/voiceinvoice/internal/store"
	"github.com/starford/voiceinvoice/internal/testutil"
)

// scripted returns canned interpreter replies in order.
type scripted struct {
	mu      sync.Mutex
	replies []string
	err     error
	got     []interpret.Request
}

func (s *scripted) Interpret(_ context.Context, req interpret.Request) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.replies) == 0 {
		return []byte(`{}`), nil
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return []byte(r), nil
}

type pdfStub struct{}

func (pdfStub) Render(_ context.Context, inv models.Invoice, _ models.Client) ([]byte, error) {
	return []byte("%PDF-1.3 " + inv.InvoiceNumber), nil
}

type outbox struct {
	mu   sync.Mutex
	sent []commit.Delivery
}

func (o *outbox) Deliver(_ context.Context, d commit.Delivery) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, d)
	return nil
}

type recorder struct {
	mu      sync.Mutex
	events  []sse.Event
	clients []models.Client
}

func (r *recorder) Publish(e sse.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) PublishClientCreated(c models.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, c)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc    *Service
	db     *store.DB
	interp *scripted
	mail   *outbox
	events *recorder
	jane   models.Client
	acme   models.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.TestStore(t)
	f := &fixture{
		db:     db,
		interp: &scripted{},
		mail:   &outbox{},
		events: &recorder{},
		jane:   testutil.SeedClient(t, db, "Jane Doe", "jane@example.com"),
		acme:   testutil.SeedClient(t, db, "Acme Corp", "ap@acme.test"),
	}
	orch := commit.New(numbering.New(db), pdfStub{}, f.mail, db)
	f.svc = New(Deps{
		Store:       db,
		Interpreter: f.interp,
		Committer:   orch,
		Sessions:    draft.NewSessions(0),
		Engine:      draft.Engine{DefaultTaxRate: 0.08},
		Events:      f.events,
	})
	return f
}

func itemsReply(clientID string, days int) string {
	return fmt.Sprintf(`{"client":{"id":%q},"line_items":[{"description":"Labor","quantity":%d,"rate":400}],
		"confidence":"high","assistant_message":"%d days of labor."}`, clientID, days, days)
}

func TestConversationThenSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.interp.replies = []string{itemsReply(f.jane.ID, 3), itemsReply("", 4)}

	sess, err := f.svc.NewSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess.Client, "two known clients: nothing preselected")

	turn, err := f.svc.Turn(ctx, sess.ID, "3 days labor for Jane at 400 a day")
	require.NoError(t, err)
	assert.Equal(t, "3 days of labor.", turn.Reply)
	require.NotNil(t, turn.Session.Draft)
	assert.InDelta(t, 1296.0, turn.Session.Draft.Total, 1e-9)
	assert.Equal(t, f.jane.ID, turn.Session.Client.ID)

	turn, err = f.svc.Turn(ctx, sess.ID, "actually make it 4 days")
	require.NoError(t, err)
	assert.InDelta(t, 1600.0, turn.Session.Draft.Subtotal, 1e-9)
	assert.Equal(t, f.jane.ID, turn.Session.Draft.ClientID, "client is kept across turns")
	assert.Len(t, turn.Session.Messages, 4)

	// The second turn saw the first turn's draft.
	require.Len(t, f.interp.got, 2)
	require.NotNil(t, f.interp.got[1].CurrentInvoice)
	assert.Equal(t, 3.0, f.interp.got[1].CurrentInvoice.LineItems[0].Quantity)

	res, err := f.svc.SendDraft(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Outcome.InvoiceNumber, "-001"))
	assert.Equal(t, commit.PersistenceRecorded, res.Outcome.Persistence)
	assert.Nil(t, res.Session.Draft)
	assert.Equal(t, f.jane.ID, res.Session.Client.ID)
	assert.Equal(t, res.Outcome.InvoiceNumber, res.Session.LastInvoiceNumber)

	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, "jane@example.com", f.mail.sent[0].To)

	inv, err := f.svc.GetInvoice(ctx, res.Outcome.InvoiceNumber)
	require.NoError(t, err)
	assert.InDelta(t, 1728.0, inv.Total, 1e-9)

	assert.Contains(t, f.events.types(), sse.TypeInvoiceSent)
}

func TestSendDraft_NotReady(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.NewSession(context.Background())
	require.NoError(t, err)

	_, err = f.svc.SendDraft(context.Background(), sess.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, f.mail.sent)
}

func TestTurn_InterpreterFailureLeavesSessionUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.interp.replies = []string{itemsReply(f.jane.ID, 3)}
	sess, _ := f.svc.NewSession(ctx)
	_, err := f.svc.Turn(ctx, sess.ID, "3 days for Jane")
	require.NoError(t, err)

	f.interp.err = fmt.Errorf("%w: anthropic: status 529", apperr.ErrUpstream)
	_, err = f.svc.Turn(ctx, sess.ID, "add paint")
	assert.ErrorIs(t, err, apperr.ErrUpstream)

	got, err := f.svc.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
	assert.Equal(t, 3.0, got.Draft.LineItems[0].Quantity)
}

func TestTurn_DegenerateOutputApologizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.interp.replies = []string{"I'm sorry, I can't do that."}
	sess, _ := f.svc.NewSession(ctx)

	turn, err := f.svc.Turn(ctx, sess.ID, "mumble")
	require.NoError(t, err)
	assert.Equal(t, interpret.ApologyMessage, turn.Reply)
	assert.Nil(t, turn.Session.Draft)
}

func TestTurn_EmptyTranscript(t *testing.T) {
	f := newFixture(t)
	sess, _ := f.svc.NewSession(context.Background())
	_, err := f.svc.Turn(context.Background(), sess.ID, "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSelectClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.interp.replies = []string{itemsReply("", 2)}
	sess, _ := f.svc.NewSession(ctx)
	_, err := f.svc.Turn(ctx, sess.ID, "2 days labor")
	require.NoError(t, err)

	got, err := f.svc.SelectClient(ctx, sess.ID, f.acme.ID)
	require.NoError(t, err)
	assert.Equal(t, f.acme.ID, got.Client.ID)
	assert.Equal(t, f.acme.ID, got.Draft.ClientID)
	assert.True(t, got.Ready())

	_, err = f.svc.SelectClient(ctx, sess.ID, "nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNewSession_PreselectsOnlyClient(t *testing.T) {
	db := testutil.TestStore(t)
	only := testutil.SeedClient(t, db, "Solo LLC", "solo@example.com")
	svc := New(Deps{Store: db, Interpreter: &scripted{}})

	sess, err := svc.NewSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sess.Client)
	assert.Equal(t, only.ID, sess.Client.ID)
}

func TestCreateClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.svc.CreateClient(ctx, models.Client{Name: " Bob ", Email: "bob@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Bob", c.Name)
	assert.Len(t, f.events.clients, 1)

	_, err = f.svc.CreateClient(ctx, models.Client{Name: "Jane Again", Email: "JANE@example.com"})
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)

	_, err = f.svc.CreateClient(ctx, models.Client{Email: "x@example.com"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.CreateClient(ctx, models.Client{Name: "Bad", Email: "not-an-email"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestSendInvoice_Stateless(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.SendInvoice(context.Background(), commit.Request{
		Invoice: models.Draft{LineItems: []models.LineItem{{Description: "Consult", Quantity: 1, Rate: 150}}},
		Client:  f.acme,
	})
	require.NoError(t, err)
	assert.Equal(t, 150.0, out.Invoice.Total)

	_, err = f.svc.SendInvoice(context.Background(), commit.Request{Client: f.acme})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestTranscribe_NotConfigured(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transcribe(context.Background(), []byte("audio"), "a.webm")
	assert.True(t, errors.Is(err, apperr.ErrUpstream))
}

type memDocs map[string][]byte

func (m memDocs) Load(number string) ([]byte, error) {
	doc, ok := m[number]
	if !ok {
		return nil, errors.New("missing")
	}
	return doc, nil
}

func TestDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out, err := f.svc.SendInvoice(ctx, commit.Request{
		Invoice: models.Draft{LineItems: []models.LineItem{{Description: "Consult", Quantity: 1, Rate: 150}}},
		Client:  f.acme,
	})
	require.NoError(t, err)

	docs := memDocs{out.InvoiceNumber: []byte("%PDF-1.3 " + out.InvoiceNumber)}
	f.svc.documents = docs

	doc, err := f.svc.Document(ctx, out.InvoiceNumber)
	require.NoError(t, err)
	assert.Equal(t, docs[out.InvoiceNumber], doc)

	docs[out.InvoiceNumber] = []byte("tampered")
	_, err = f.svc.Document(ctx, out.InvoiceNumber)
	assert.ErrorContains(t, err, "checksum mismatch")

	_, err = f.svc.Document(ctx, "INV-19990101-001")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
