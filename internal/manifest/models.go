package manifest

// ContentType classifies a rendition as audio or video.
type ContentType string

const (
	ContentVideo   ContentType = "video"
	ContentAudio   ContentType = "audio"
	ContentUnknown ContentType = ""
)

// Document is the attribute-level view of a manifest produced by a parser:
// every value is the raw attribute string. Build validates it into a Manifest.
type Document struct {
	MPD        MPDAttributes
	Renditions []RenditionAttributes
}

// MPDAttributes are the presentation-level attributes.
type MPDAttributes struct {
	MediaPresentationDuration string // ISO 8601, e.g. "PT0H2M0.00S"
	Type                      string // "static" or "dynamic"
}

// RenditionAttributes describe one Representation. Empty strings mean absent.
type RenditionAttributes struct {
	ID              string
	Codecs          string
	MimeType        string
	Width           string
	Height          string
	Bandwidth       string
	SegmentTemplate TemplateAttributes
}

// TemplateAttributes are the SegmentTemplate attributes of a rendition.
type TemplateAttributes struct {
	Initialization string
	Media          string
	Duration       string
	Timescale      string
	StartNumber    string
}

// Template is the segment addressing template of a rendition.
type Template struct {
	InitializationPath string
	MediaPathPattern   string
	Timescale          uint64
	SegmentDuration    uint64
	StartNumber        int
}

// Rendition is one encoded alternative of the stream. Renditions are owned by
// the Manifest and must not be modified once built.
type Rendition struct {
	ID        string
	Codecs    string
	MimeType  string
	Width     int
	Height    int
	Bandwidth int
	Template  Template
}

// SegmentLength returns the length of one segment in seconds.
func (r *Rendition) SegmentLength() float64 {
	return float64(r.Template.SegmentDuration) / float64(r.Template.Timescale)
}

// ContentType reports whether the rendition carries audio or video, using the
// mime type first and the codec string as a fallback.
func (r *Rendition) ContentType() ContentType {
	switch {
	case hasPrefix(r.MimeType, "video/"):
		return ContentVideo
	case hasPrefix(r.MimeType, "audio/"):
		return ContentAudio
	}
	for _, p := range []string{"avc", "hev", "hvc", "vp0", "vp8", "vp9", "av01"} {
		if hasPrefix(r.Codecs, p) {
			return ContentVideo
		}
	}
	for _, p := range []string{"mp4a", "opus", "ac-3", "ec-3", "vorbis", "flac"} {
		if hasPrefix(r.Codecs, p) {
			return ContentAudio
		}
	}
	return ContentUnknown
}

// Container returns the container part of the mime type, defaulting to mp4
// of the rendition's content type.
func (r *Rendition) Container() string {
	if r.MimeType != "" {
		return r.MimeType
	}
	if r.ContentType() == ContentAudio {
		return "audio/mp4"
	}
	return "video/mp4"
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
