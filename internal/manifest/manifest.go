package manifest

import (
	"math"
	"strconv"
	"strings"
)

// Manifest is the immutable parsed view of the renditions available for a
// presentation.
type Manifest struct {
	// Duration is the total presentation duration in seconds.
	Duration float64
	// Type is the MPD type ("static" unless the document says otherwise).
	Type string

	renditions []*Rendition
	byID       map[string]*Rendition
}

// MediaTiming is the segment timing of one rendition within the presentation.
// Segment indices run 1..SegmentCount; index 0 is the initialization unit.
type MediaTiming struct {
	Duration      float64
	SegmentLength float64
	SegmentCount  int
}

// Build validates a Document and returns the Manifest it describes.
func Build(doc Document) (*Manifest, error) {
	if doc.MPD.MediaPresentationDuration == "" {
		return nil, parseErrorf("missing mediaPresentationDuration")
	}
	duration, err := ParseDuration(doc.MPD.MediaPresentationDuration)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, parseErrorf("presentation duration must be positive, got %v", duration)
	}
	if len(doc.Renditions) == 0 {
		return nil, parseErrorf("no representations")
	}

	m := &Manifest{
		Duration:   duration,
		Type:       doc.MPD.Type,
		renditions: make([]*Rendition, 0, len(doc.Renditions)),
		byID:       make(map[string]*Rendition, len(doc.Renditions)),
	}
	if m.Type == "" {
		m.Type = "static"
	}

	for i, ra := range doc.Renditions {
		r, err := buildRendition(ra)
		if err != nil {
			return nil, err
		}
		if r.ID == "" {
			r.ID = strconv.Itoa(i)
		}
		if _, dup := m.byID[r.ID]; dup {
			return nil, parseErrorf("duplicate representation id %q", r.ID)
		}
		m.renditions = append(m.renditions, r)
		m.byID[r.ID] = r
	}
	return m, nil
}

func buildRendition(ra RenditionAttributes) (*Rendition, error) {
	t := ra.SegmentTemplate
	if t.Media == "" {
		return nil, parseErrorf("representation %q: missing SegmentTemplate media", ra.ID)
	}

	duration, err := parseUint(t.Duration, 0)
	if err != nil || duration == 0 {
		return nil, parseErrorf("representation %q: invalid segment duration %q", ra.ID, t.Duration)
	}
	timescale, err := parseUint(t.Timescale, 1)
	if err != nil || timescale == 0 {
		return nil, parseErrorf("representation %q: invalid timescale %q", ra.ID, t.Timescale)
	}
	startNumber, err := parseInt(t.StartNumber, 1)
	if err != nil {
		return nil, parseErrorf("representation %q: invalid startNumber %q", ra.ID, t.StartNumber)
	}
	width, err := parseInt(ra.Width, 0)
	if err != nil {
		return nil, parseErrorf("representation %q: invalid width %q", ra.ID, ra.Width)
	}
	height, err := parseInt(ra.Height, 0)
	if err != nil {
		return nil, parseErrorf("representation %q: invalid height %q", ra.ID, ra.Height)
	}
	bandwidth, err := parseInt(ra.Bandwidth, 0)
	if err != nil {
		return nil, parseErrorf("representation %q: invalid bandwidth %q", ra.ID, ra.Bandwidth)
	}

	return &Rendition{
		ID:        ra.ID,
		Codecs:    ra.Codecs,
		MimeType:  ra.MimeType,
		Width:     width,
		Height:    height,
		Bandwidth: bandwidth,
		Template: Template{
			InitializationPath: t.Initialization,
			MediaPathPattern:   t.Media,
			Timescale:          timescale,
			SegmentDuration:    duration,
			StartNumber:        startNumber,
		},
	}, nil
}

// Renditions returns all renditions in document order.
func (m *Manifest) Renditions() []*Rendition {
	out := make([]*Rendition, len(m.renditions))
	copy(out, m.renditions)
	return out
}

// RenditionsOf returns the renditions of the given content type in document order.
func (m *Manifest) RenditionsOf(ct ContentType) []*Rendition {
	var out []*Rendition
	for _, r := range m.renditions {
		if r.ContentType() == ct {
			out = append(out, r)
		}
	}
	return out
}

// Rendition looks up a rendition by id.
func (m *Manifest) Rendition(id string) (*Rendition, bool) {
	r, ok := m.byID[id]
	return r, ok
}

// Timing returns the media timing of r within this presentation.
func (m *Manifest) Timing(r *Rendition) MediaTiming {
	length := r.SegmentLength()
	return MediaTiming{
		Duration:      m.Duration,
		SegmentLength: length,
		SegmentCount:  int(math.Ceil(m.Duration / length)),
	}
}

func parseUint(s string, fallback uint64) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseInt(s string, fallback int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback, nil
	}
	return strconv.Atoi(s)
}
