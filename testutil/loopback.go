package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/fleetbus/errors"
)

// Loopback is an in-memory broker for connector tests. Every Dial returns a new
// LoopbackTransport attached to the same broker, and Dials counts them so a
// test can assert how many connections a connector opened.
// Thread-safe for concurrent use from multiple goroutines.
type Loopback struct {
	mu         sync.Mutex
	transports []*LoopbackTransport
	published  map[string][][]byte
	dials      int
	failDials  int
	failErr    error
	inboxSize  int
}

// NewLoopback creates an empty broker.
func NewLoopback() *Loopback {
	return &Loopback{
		published: make(map[string][][]byte),
		inboxSize: 64,
	}
}

// FailNextDials makes the next n Dial calls return err.
func (l *Loopback) FailNextDials(n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failDials = n
	l.failErr = err
}

// Dial opens a new transport.
func (l *Loopback) Dial(ctx context.Context) (*LoopbackTransport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.dials++
	if l.failDials > 0 {
		l.failDials--
		return nil, l.failErr
	}

	t := &LoopbackTransport{
		broker:   l,
		subjects: make(map[string]struct{}),
		inbox:    make(chan []byte, l.inboxSize),
		done:     make(chan struct{}),
	}
	l.transports = append(l.transports, t)
	return t, nil
}

// Dials returns how many times Dial was called, failed dials included.
func (l *Loopback) Dials() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dials
}

// Open returns the number of transports that have not been closed.
func (l *Loopback) Open() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, t := range l.transports {
		if !t.Closed() {
			n++
		}
	}
	return n
}

// Inject delivers body to every open transport subscribed to subject, as if a
// remote peer had published it. It returns the number of deliveries.
func (l *Loopback) Inject(subject string, body []byte) int {
	l.mu.Lock()
	targets := make([]*LoopbackTransport, 0, len(l.transports))
	for _, t := range l.transports {
		if t.subscribed(subject) {
			targets = append(targets, t)
		}
	}
	l.mu.Unlock()

	delivered := 0
	for _, t := range targets {
		if t.deliver(body) {
			delivered++
		}
	}
	return delivered
}

// Published returns a copy of every body published to subject.
func (l *Loopback) Published(subject string) [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()

	msgs := l.published[subject]
	if msgs == nil {
		return nil
	}
	result := make([][]byte, len(msgs))
	copy(result, msgs)
	return result
}

func (l *Loopback) record(subject string, data []byte) {
	l.mu.Lock()
	l.published[subject] = append(l.published[subject], append([]byte(nil), data...))
	l.mu.Unlock()
}

// LoopbackTransport is one connection to a Loopback broker. It has the method
// set of the connector's transport with a Publish primitive.
type LoopbackTransport struct {
	broker *Loopback

	mu       sync.RWMutex
	subjects map[string]struct{}
	inbox    chan []byte
	done     chan struct{}
	closed   bool
}

// Subscribe adds subject. Repeated calls are no-ops.
func (t *LoopbackTransport) Subscribe(ctx context.Context, subject string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.ErrNotConnected
	}
	t.subjects[subject] = struct{}{}
	return nil
}

// Unsubscribe removes subject if present.
func (t *LoopbackTransport) Unsubscribe(_ context.Context, subject string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subjects, subject)
	return nil
}

// Subjects returns the number of subscribed subjects.
func (t *LoopbackTransport) Subjects() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subjects)
}

// Publish records data and fans it out to subscribers, this transport included.
func (t *LoopbackTransport) Publish(_ context.Context, subject string, data []byte) error {
	if t.Closed() {
		return errors.ErrNotConnected
	}
	t.broker.record(subject, data)
	t.broker.Inject(subject, data)
	return nil
}

// Next blocks until a message is delivered, ctx ends, or the transport closes.
func (t *LoopbackTransport) Next(ctx context.Context) ([]byte, error) {
	select {
	case body := <-t.inbox:
		return body, nil
	case <-t.done:
		return nil, fmt.Errorf("loopback closed: %w", errors.ErrConnectionLost)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close detaches the transport. It is safe to call more than once.
func (t *LoopbackTransport) Close(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.closed {
		t.closed = true
		close(t.done)
	}
	return nil
}

// Closed reports whether Close was called.
func (t *LoopbackTransport) Closed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// SendOnly exposes the transport through a generic Send primitive instead of
// Publish.
func (t *LoopbackTransport) SendOnly() *SendOnlyTransport {
	return &SendOnlyTransport{t: t}
}

func (t *LoopbackTransport) subscribed(subject string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return false
	}
	_, ok := t.subjects[subject]
	return ok
}

func (t *LoopbackTransport) deliver(body []byte) bool {
	select {
	case t.inbox <- append([]byte(nil), body...):
		return true
	case <-t.done:
		return false
	}
}

// SendOnlyTransport wraps a LoopbackTransport whose only outbound primitive is Send.
type SendOnlyTransport struct {
	t *LoopbackTransport
}

// Subscribe delegates to the wrapped transport.
func (s *SendOnlyTransport) Subscribe(ctx context.Context, subject string) error {
	return s.t.Subscribe(ctx, subject)
}

// Unsubscribe delegates to the wrapped transport.
func (s *SendOnlyTransport) Unsubscribe(ctx context.Context, subject string) error {
	return s.t.Unsubscribe(ctx, subject)
}

// Next delegates to the wrapped transport.
func (s *SendOnlyTransport) Next(ctx context.Context) ([]byte, error) {
	return s.t.Next(ctx)
}

// Close delegates to the wrapped transport.
func (s *SendOnlyTransport) Close(ctx context.Context) error {
	return s.t.Close(ctx)
}

// Send is the generic outbound primitive.
func (s *SendOnlyTransport) Send(ctx context.Context, subject string, data []byte) error {
	return s.t.Publish(ctx, subject, data)
}
