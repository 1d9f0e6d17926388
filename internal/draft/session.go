package draft

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/voiceinvoice/internal/apperr"
	"github.com/starford/voiceinvoice/internal/models"
)

// DefaultIdleTTL is how long an untouched session survives.
const DefaultIdleTTL = 12 * time.Hour

// Session is the conversation state owned by one user.
type Session struct {
	ID                string           `json:"id"`
	Draft             *models.Draft    `json:"draft"`
	Client            *models.Client   `json:"client"`
	Messages          []models.Message `json:"messages"`
	LastInvoiceNumber string           `json:"last_invoice_number,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Ready reports whether the session's draft can be sent.
func (s *Session) Ready() bool {
	return Ready(s.Draft, s.Client)
}

// Say appends a message to the conversation.
func (s *Session) Say(role models.Role, content string, at time.Time) {
	s.Messages = append(s.Messages, models.Message{Role: role, Content: content, Timestamp: at})
}

func (s Session) clone() Session {
	s.Draft = s.Draft.Clone()
	s.Client = cloneClient(s.Client)
	s.Messages = append([]models.Message(nil), s.Messages...)
	return s
}

type entry struct {
	busy    sync.Mutex
	session Session
}

// Sessions keeps drafts in memory, keyed by session ID. Abandoned drafts are
// dropped after the idle TTL and never persisted.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

// NewSessions creates an empty session store.
func NewSessions(ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Sessions{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create starts a session, optionally with a preselected client.
func (s *Sessions) Create(client *models.Client) Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	sess := Session{
		ID:        uuid.NewString(),
		Client:    cloneClient(client),
		Messages:  []models.Message{},
		UpdatedAt: s.now(),
	}
	s.entries[sess.ID] = &entry{session: sess}
	return sess.clone()
}

// Get returns a snapshot of the session.
func (s *Sessions) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	e, ok := s.entries[id]
	if !ok {
		return Session{}, apperr.ErrNotFound
	}
	return e.session.clone(), nil
}

// Update runs fn on a copy of the session and stores the copy if fn
// succeeds. Only one Update per session may run at a time; a concurrent
// call fails with apperr.ErrTurnInFlight instead of queueing.
func (s *Sessions) Update(id string, fn func(*Session) error) (Session, error) {
	e, err := s.acquire(id)
	if err != nil {
		return Session{}, err
	}
	defer e.busy.Unlock()

	s.mu.Lock()
	working := e.session.clone()
	s.mu.Unlock()

	if err := fn(&working); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	working.UpdatedAt = s.now()
	e.session = working
	return working.clone(), nil
}

// acquire claims the entry for id. The claim happens under s.mu so a
// prune can never delete an entry between lookup and claim.
func (s *Sessions) acquire(id string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()

	e, ok := s.entries[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if !e.busy.TryLock() {
		return nil, apperr.ErrTurnInFlight
	}
	return e, nil
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Sessions) pruneLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, e := range s.entries {
		if !e.session.UpdatedAt.Before(cutoff) {
			continue
		}
		if !e.busy.TryLock() {
			continue
		}
		delete(s.entries, id)
		e.busy.Unlock()
	}
}
