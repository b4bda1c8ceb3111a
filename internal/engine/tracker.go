package engine

import (
	"dash-player/internal/addressor"
)

// PositionKind tells an ordinary advance from a discontinuous jump.
type PositionKind int

const (
	PositionAdvance PositionKind = iota
	PositionSeek
)

func (k PositionKind) String() string {
	if k == PositionSeek {
		return "seek"
	}
	return "advance"
}

// PositionEvent is the tracker's classification of one play cursor sample.
type PositionEvent struct {
	Kind    PositionKind
	Segment int
	Time    float64
}

// Tracker converts play cursor samples into segment positions. A sample whose
// segment differs from the previous one by more than one, in either
// direction, is a seek.
type Tracker struct {
	addr       addressor.Addressor
	lastPlayed int
}

// NewTracker returns a Tracker for addr starting at the initialization unit.
func NewTracker(addr addressor.Addressor) *Tracker {
	return &Tracker{addr: addr}
}

// Observe classifies the cursor sample ts (seconds).
func (t *Tracker) Observe(ts float64) PositionEvent {
	seg := t.addr.SegmentIndexForTime(ts)
	if seg < 0 {
		seg = 0
	}

	kind := PositionAdvance
	if diff := seg - t.lastPlayed; diff > 1 || diff < -1 {
		kind = PositionSeek
	}
	t.lastPlayed = seg
	return PositionEvent{Kind: kind, Segment: seg, Time: ts}
}

// Reset rebinds the tracker to addr and forgets the previous sample.
func (t *Tracker) Reset(addr addressor.Addressor) {
	t.addr = addr
	t.lastPlayed = 0
}
