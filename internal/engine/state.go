package engine

import (
	"fmt"

	"dash-player/internal/manifest"
)

// State is the buffering state of an engine.
type State int

const (
	// StateIdle: no rendition selected, or selected and not yet filling.
	StateIdle State = iota
	// StateFilling: one fetch or append is outstanding.
	StateFilling
	// StateDraining: the look-ahead window is full; waiting for playback.
	StateDraining
	// StateSeeking: transient while a seek is rebased.
	StateSeeking
	// StateEnded: no more segments, or the session failed.
	StateEnded
)

var stateNames = map[State]string{
	StateIdle:     "idle",
	StateFilling:  "filling",
	StateDraining: "draining",
	StateSeeking:  "seeking",
	StateEnded:    "ended",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// BufferState is the mutable buffering state of one rendition session.
// It is created empty on rendition selection and owned by the engine loop.
type BufferState struct {
	// LastDownloadedSegment is the highest segment index requested.
	LastDownloadedSegment int
	// LastPlayedSegment is the segment under the cursor at the last sample.
	LastPlayedSegment  int
	CurrentPlaySegment int
	Downloaded         *SegmentSet
	// Filling is true while a fetch or an append is outstanding.
	Filling   bool
	Rendition *manifest.Rendition
}

func newBufferState(r *manifest.Rendition) BufferState {
	return BufferState{Downloaded: NewSegmentSet(), Rendition: r}
}

// Status is a point-in-time snapshot of an engine, safe to share.
type Status struct {
	ContentType           manifest.ContentType `json:"content_type"`
	State                 State                `json:"state"`
	SessionID             string               `json:"session_id,omitempty"`
	RenditionID           string               `json:"rendition_id,omitempty"`
	LastDownloadedSegment int                  `json:"last_downloaded_segment"`
	LastPlayedSegment     int                  `json:"last_played_segment"`
	CurrentPlaySegment    int                  `json:"current_segment"`
	DownloadedSegments    []int                `json:"downloaded_segments"`
	SegmentCount          int                  `json:"segment_count"`
	BufferedAhead         int                  `json:"buffered_ahead"`
	Filling               bool                 `json:"filling"`
	Error                 string               `json:"error,omitempty"`
}
