package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(ch1)
	b.Unsubscribe(ch1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}

	b.Unsubscribe(ch2)
	if _, open := <-ch2; open {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestBroadcasterPublishToAll(t *testing.T) {
	b := NewBroadcaster()
	ch1 := b.Subscribe()
	ch2 := b.SubscribeBuffered(1)
	defer b.Unsubscribe(ch1)
	defer b.Unsubscribe(ch2)

	b.Publish(Event{Type: EventProjectCreated, Path: "/p", Project: "/p"})

	for i, ch := range []chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Type != EventProjectCreated || got.Project != "/p" {
				t.Errorf("subscriber %d: got %+v", i, got)
			}
			if got.Timestamp == 0 {
				t.Errorf("subscriber %d: expected timestamp", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestBroadcasterDropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	ch := b.SubscribeBuffered(8)
	defer b.Unsubscribe(ch)

	for i := 0; i < 20; i++ {
		b.Publish(Event{Type: EventImportProgress, Line: "line"})
	}
	if len(ch) != 8 {
		t.Errorf("expected 8 buffered events, got %d", len(ch))
	}
}

func TestMarshalEventOmitsEmpty(t *testing.T) {
	data, err := MarshalEvent(Event{Type: EventProjectDeleted, Project: "/gone", Timestamp: 1})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if _, ok := m["line"]; ok {
		t.Errorf("empty line should be omitted: %s", data)
	}
	if m["project"] != "/gone" {
		t.Errorf("project = %v", m["project"])
	}
}
