// Package watcher dispatches workspace change events to registered
// handlers. Each registration owns an ordered queue served by its own
// goroutine, so a slow handler never blocks the store or other handlers.
package watcher

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/logging"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/metrics"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/vfs"
)

// Handlers are the callbacks of one registration. Nil callbacks are
// skipped.
type Handlers struct {
	OnCreate func(ev vfs.ChangeEvent)
	OnModify func(ev vfs.ChangeEvent)
	OnDelete func(ev vfs.ChangeEvent)
}

// Manager fans change events out to subscriptions whose matcher accepts
// the event path. It implements vfs.Listener.
type Manager struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool
}

// NewManager returns a manager with no subscriptions.
func NewManager() *Manager {
	return &Manager{subs: make(map[uint64]*Subscription)}
}

// Register starts delivering events matched by match to h until the
// returned subscription is unregistered.
func (m *Manager) Register(match Matcher, h Handlers) *Subscription {
	if match == nil {
		match = All()
	}
	s := &Subscription{manager: m, match: match, handlers: h, done: make(chan struct{})}
	s.cond = sync.NewCond(&s.mu)

	m.mu.Lock()
	m.nextID++
	s.id = m.nextID
	if m.closed {
		s.closed = true
		close(s.done)
	} else {
		m.subs[s.id] = s
		metrics.AddWatcherSubscriptions(1)
		go s.run()
	}
	m.mu.Unlock()
	return s
}

// Notify queues ev on every matching subscription. It never blocks on
// handlers.
func (m *Manager) Notify(ev vfs.ChangeEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.subs {
		if s.match(ev.Path) {
			s.enqueue(ev)
		}
	}
}

// Sync blocks until every event queued so far has been handled.
func (m *Manager) Sync() {
	m.mu.RLock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.RUnlock()
	for _, s := range subs {
		s.Wait()
	}
}

// Len returns the number of active subscriptions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Close unregisters every subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	subs := m.subs
	m.subs = make(map[uint64]*Subscription)
	m.mu.Unlock()
	for _, s := range subs {
		s.stop()
	}
}

var _ vfs.Listener = (*Manager)(nil)

// Subscription is one registration. Events reach its handlers in the order
// they were notified.
type Subscription struct {
	id       uint64
	manager  *Manager
	match    Matcher
	handlers Handlers

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []vfs.ChangeEvent
	busy   bool
	closed bool
	done   chan struct{}
}

// Unregister stops delivery. Queued events that have not started are
// dropped. It is safe to call from inside a handler.
func (s *Subscription) Unregister() {
	s.manager.mu.Lock()
	_, ok := s.manager.subs[s.id]
	delete(s.manager.subs, s.id)
	s.manager.mu.Unlock()
	if ok {
		s.stop()
	}
}

func (s *Subscription) stop() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		s.queue = nil
		s.cond.Broadcast()
	}
	s.mu.Unlock()
	metrics.AddWatcherSubscriptions(-1)
}

// Wait blocks until the queue is empty and no handler is running.
func (s *Subscription) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for (len(s.queue) > 0 || s.busy) && !s.closed {
		s.cond.Wait()
	}
}

// Done is closed once the dispatch goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) enqueue(ev vfs.ChangeEvent) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, ev)
		s.cond.Broadcast()
	}
	s.mu.Unlock()
}

func (s *Subscription) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.busy = true
		s.mu.Unlock()

		s.dispatch(ev)

		s.mu.Lock()
		s.busy = false
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

func (s *Subscription) dispatch(ev vfs.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("watch handler panicked",
				zap.String("path", ev.Path),
				zap.String("kind", ev.Kind.String()),
				zap.Error(fmt.Errorf("%v", r)))
		}
	}()

	var fn func(vfs.ChangeEvent)
	switch ev.Kind {
	case vfs.Created:
		fn = s.handlers.OnCreate
	case vfs.Modified:
		fn = s.handlers.OnModify
	case vfs.Deleted:
		fn = s.handlers.OnDelete
	}
	if fn == nil {
		return
	}
	metrics.RecordWatcherDispatch(ev.Kind.String())
	fn(ev)
}
