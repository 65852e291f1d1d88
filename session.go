package aiflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/aiflow-go/aiflow/messages"
	"github.com/aiflow-go/aiflow/pkg/uuidx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Usage holds running token counters. Counters only ever grow; provider
// updates are merged additively and never reset mid-session.
type Usage struct {
	InputTokens       int64
	CachedInputTokens int64
	OutputTokens      int64
}

func (u *Usage) add(delta Usage) {
	u.InputTokens += delta.InputTokens
	u.CachedInputTokens += delta.CachedInputTokens
	u.OutputTokens += delta.OutputTokens
}

// Session owns one conversation: the append-only transcript, usage and cost
// accumulators, and the provider's response cursor. During an active stream
// exactly one holder mutates it, through the Lease; readers may inspect it
// concurrently and always observe a consistent snapshot.
type Session struct {
	id    uuid.UUID
	lease chan struct{}

	mu         sync.RWMutex
	transcript []messages.Message
	usage      Usage
	cost       decimal.Decimal
	cursor     string
}

// NewSession returns an empty session, optionally seeded with initial
// messages (typically a system prompt).
func NewSession(seed ...messages.Message) *Session {
	s := &Session{
		id:    uuidx.New(),
		lease: make(chan struct{}, 1),
	}
	s.transcript = append(s.transcript, seed...)
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

// Append adds messages to the transcript. Callers use it to record prompts
// and out-of-band client-tool results between streams; during an active
// stream all appends go through the Lease.
func (s *Session) Append(msgs ...messages.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, msgs...)
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []messages.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]messages.Message(nil), s.transcript...)
}

func (s *Session) Usage() Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usage
}

// Cost returns the accumulated USD cost of the session.
func (s *Session) Cost() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cost
}

// Cursor returns the provider response id of the last completed turn.
func (s *Session) Cursor() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Acquire takes the session's exclusive write lease, blocking until it is
// free or ctx is done. The lease transfers with the value: whoever holds the
// *Lease may mutate the session, and nobody else can acquire one until it is
// released.
func (s *Session) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case s.lease <- struct{}{}:
		return &Lease{session: s}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquiring session lease: %w", ctx.Err())
	}
}

// Lease is the exclusive, transferable right to mutate a Session. It is held
// across every suspension point of a stream and released exactly once when
// the stream drains, fails, or is canceled.
type Lease struct {
	session *Session
	once    sync.Once
}

// Append adds messages to the transcript.
func (l *Lease) Append(msgs ...messages.Message) {
	l.session.mu.Lock()
	defer l.session.mu.Unlock()
	l.session.transcript = append(l.session.transcript, msgs...)
}

// Snapshot returns a copy of the transcript for building the next request.
func (l *Lease) Snapshot() []messages.Message {
	return l.session.Messages()
}

// AddUsage merges a usage delta and accrues its cost at the model's rates.
func (l *Lease) AddUsage(model Model, delta Usage) Usage {
	l.session.mu.Lock()
	defer l.session.mu.Unlock()
	l.session.usage.add(delta)
	l.session.cost = l.session.cost.Add(model.Cost(delta))
	return l.session.usage
}

// SetCursor records the provider response id of the completed turn.
func (l *Lease) SetCursor(id string) {
	if id == "" {
		return
	}
	l.session.mu.Lock()
	defer l.session.mu.Unlock()
	l.session.cursor = id
}

// Cursor returns the current response cursor.
func (l *Lease) Cursor() string {
	return l.session.Cursor()
}

// Release returns the lease to the session. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		<-l.session.lease
	})
}
