// Package events fans out workspace events (project lifecycle, import
// progress, VCS status changes) to in-process subscribers.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/metrics"
)

const (
	EventProjectCreated   = "project_created"
	EventProjectUpdated   = "project_updated"
	EventProjectDeleted   = "project_deleted"
	EventItemMoved        = "item_moved"
	EventItemDeleted      = "item_deleted"
	EventImportProgress   = "import_progress"
	EventVCSStatusChanged = "vcs_status_changed"
)

// DefaultBuffer is the channel capacity of Subscribe.
const DefaultBuffer = 64

// Event is a workspace event.
type Event struct {
	Type      string            `json:"type"`
	Path      string            `json:"path,omitempty"`
	Project   string            `json:"project,omitempty"`
	Line      string            `json:"line,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Broadcaster manages subscribers and publishes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a new event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan Event {
	return b.SubscribeBuffered(DefaultBuffer)
}

// SubscribeBuffered is Subscribe with a custom channel capacity.
func (b *Broadcaster) SubscribeBuffered(size int) chan Event {
	ch := make(chan Event, size)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers. Non-blocking: drops events
// for slow consumers.
func (b *Broadcaster) Publish(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			metrics.RecordEventDropped()
		}
	}
	metrics.RecordEvent(event.Type)
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// MarshalEvent serializes an event to JSON.
func MarshalEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
