package bus_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wileschulpusi/Review/pkg/bus"
)

func TestPublishSubscribe(t *testing.T) {
	b := bus.New(4)

	b.Publish(context.Background(), bus.Event{Kind: bus.KindPaperSubmitted, PaperID: "p1", ReviewIndex: -1})

	select {
	case ev := <-b.Subscribe():
		assert.Equal(t, bus.KindPaperSubmitted, ev.Kind)
		assert.Equal(t, "p1", ev.PaperID)
		assert.NotEmpty(t, ev.TraceID)
		assert.False(t, ev.At.IsZero())
	default:
		t.Fatal("expected a buffered event")
	}
}

func TestSubscribe_SingleStream(t *testing.T) {
	b := bus.New(4)

	// The stream has a single consumer: repeated calls hand out the same
	// channel, so events published before the first call are not lost and
	// are seen exactly once.
	first := b.Subscribe()
	second := b.Subscribe()
	assert.Equal(t, first, second)

	b.Publish(context.Background(), bus.Event{Kind: bus.KindPaperPublished, PaperID: "p1"})
	ev := <-second
	require.Equal(t, "p1", ev.PaperID)
	assert.Len(t, first, 0)
}

func TestPublish_DropsOnBackpressure(t *testing.T) {
	b := bus.New(1)

	b.Publish(context.Background(), bus.Event{Kind: bus.KindReviewSubmitted, PaperID: "p1"})
	// Buffer is full; this must not block.
	b.Publish(context.Background(), bus.Event{Kind: bus.KindReviewSubmitted, PaperID: "p2"})

	ev := <-b.Subscribe()
	require.Equal(t, "p1", ev.PaperID)

	select {
	case ev := <-b.Subscribe():
		t.Fatalf("expected second event to be dropped, got %v", ev)
	default:
	}
}

func TestNew_DefaultsBufferSize(t *testing.T) {
	b := bus.New(0)
	for i := 0; i < 100; i++ {
		b.Publish(context.Background(), bus.Event{Kind: bus.KindPaperPublished})
	}
	assert.Len(t, b.Subscribe(), 100)
}
