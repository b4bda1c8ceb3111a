// Package events carries player notifications to subscribers.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Type names an event.
type Type string

const (
	TrackSelectionChanged Type = "track-selection-changed"
	PlaybackStateChanged  Type = "playback-state-changed"
	BufferProgressChanged Type = "buffer-progress-changed"
	MetadataReady         Type = "metadata-ready"
	SessionError          Type = "session-error"
)

// Event is one notification. Payload is one of the payload types below.
type Event struct {
	Type    Type      `json:"type"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// TrackSelection is the payload of TrackSelectionChanged.
type TrackSelection struct {
	ContentType string `json:"content_type"`
	RenditionID string `json:"rendition_id"`
	MimeType    string `json:"mime_type"`
	Codecs      string `json:"codecs"`
	Bandwidth   int    `json:"bandwidth"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// PlaybackState is the payload of PlaybackStateChanged.
type PlaybackState struct {
	State    string  `json:"state"`
	Position float64 `json:"position"`
}

// Metadata is the payload of MetadataReady.
type Metadata struct {
	ContentType   string  `json:"content_type"`
	RenditionID   string  `json:"rendition_id"`
	Duration      float64 `json:"duration"`
	SegmentCount  int     `json:"segment_count"`
	SegmentLength float64 `json:"segment_length"`
}

// Failure is the payload of SessionError.
type Failure struct {
	ContentType string `json:"content_type"`
	RenditionID string `json:"rendition_id,omitempty"`
	Segment     int    `json:"segment"`
	Error       string `json:"error"`
}

const subscriberBuffer = 32

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose channel is full misses the event.
type Bus struct {
	log *slog.Logger

	mu          sync.RWMutex
	all         []chan Event
	subscribers map[Type][]chan Event
}

// NewBus returns an empty Bus.
func NewBus(log *slog.Logger) *Bus {
	return &Bus{log: log, subscribers: make(map[Type][]chan Event)}
}

// Subscribe returns a channel receiving events of the given types, or of
// every type when none are given.
func (b *Bus) Subscribe(types ...Type) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if len(types) == 0 {
		b.all = append(b.all, ch)
		return ch
	}
	for _, t := range types {
		b.subscribers[t] = append(b.subscribers[t], ch)
	}
	return ch
}

// Unsubscribe removes ch and closes it.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var owned chan Event
	b.all, owned = remove(b.all, ch, owned)
	for t, subs := range b.subscribers {
		b.subscribers[t], owned = remove(subs, ch, owned)
	}
	if owned != nil {
		close(owned)
	}
}

func remove(subs []chan Event, ch <-chan Event, owned chan Event) ([]chan Event, chan Event) {
	for i, sub := range subs {
		if sub == ch {
			return append(subs[:i:i], subs[i+1:]...), sub
		}
	}
	return subs, owned
}

// Publish stamps ev with the current time if unset and delivers it.
func (b *Bus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	deliver := func(ch chan Event) {
		select {
		case ch <- ev:
		default:
			b.log.Debug("event dropped, subscriber full", slog.String("type", string(ev.Type)))
		}
	}
	for _, ch := range b.all {
		deliver(ch)
	}
	for _, ch := range b.subscribers[ev.Type] {
		deliver(ch)
	}
}
