package events

import (
	"testing"

	"dash-player/internal/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_filtersByType(t *testing.T) {
	b := NewBus(logger.Discard())
	all := b.Subscribe()
	meta := b.Subscribe(MetadataReady)

	b.Publish(Event{Type: PlaybackStateChanged, Payload: PlaybackState{State: "PLAY"}})
	b.Publish(Event{Type: MetadataReady, Payload: Metadata{SegmentCount: 12}})

	ev := <-all
	assert.Equal(t, PlaybackStateChanged, ev.Type)
	assert.False(t, ev.Time.IsZero())
	assert.Equal(t, MetadataReady, (<-all).Type)

	ev = <-meta
	require.Equal(t, MetadataReady, ev.Type)
	assert.Equal(t, 12, ev.Payload.(Metadata).SegmentCount)
	assert.Empty(t, meta)
}

func TestBus_publishDoesNotBlock(t *testing.T) {
	b := NewBus(logger.Discard())
	ch := b.Subscribe(BufferProgressChanged)

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish(Event{Type: BufferProgressChanged})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus(logger.Discard())
	ch := b.Subscribe(SessionError, MetadataReady)
	b.Unsubscribe(ch)

	b.Publish(Event{Type: SessionError})
	_, open := <-ch
	assert.False(t, open)

	// Unknown channels are ignored.
	b.Unsubscribe(make(chan Event))
}
