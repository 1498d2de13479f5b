// Package bus is the ledger's event side channel. Events are emitted after
// a mutation commits and are consumed by presentation layers for reactive
// refresh; core correctness never depends on a listener being present.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wileschulpusi/Review/pkg/types"
)

type Kind string

const (
	KindPaperSubmitted  Kind = "PaperSubmitted"
	KindReviewSubmitted Kind = "ReviewSubmitted"
	KindScoreAggregated Kind = "ScoreAggregated"
	KindPaperPublished  Kind = "PaperPublished"
)

type Event struct {
	Kind        Kind
	PaperID     string
	Handle      types.HandleID
	ReviewIndex int
	TraceID     string
	At          time.Time
}

type Subscriber chan Event

type Bus struct {
	pub chan Event
}

func New(size int) *Bus {
	if size <= 0 {
		size = 128
	}
	return &Bus{pub: make(chan Event, size)}
}

// Publish stamps the event with a trace id and timestamp and delivers it
// without blocking. Events are dropped on backpressure rather than stalling
// the committing transaction.
func (b *Bus) Publish(_ context.Context, ev Event) {
	if ev.TraceID == "" {
		ev.TraceID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case b.pub <- ev:
	default: // drop on backpressure
	}
}

// Subscribe returns the bus's delivery channel. The stream has a single
// consumer: every call returns the same channel, and concurrent receivers
// would compete for events rather than each observing the full stream.
func (b *Bus) Subscribe() Subscriber { return b.pub }
