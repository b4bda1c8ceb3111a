// Package addressor maps playback time to segment indices and segment indices
// to fetchable URLs. Everything here is pure.
package addressor

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"dash-player/internal/manifest"
)

// InitIndex is the index of the initialization unit.
const InitIndex = 0

// ErrNoRenditionSelected is returned when addressing is attempted before a
// rendition has been selected.
var ErrNoRenditionSelected = errors.New("no rendition selected")

// Addressor converts between playback time and segment indices for one
// MediaTiming.
type Addressor struct {
	timing manifest.MediaTiming
}

// New returns an Addressor for the given timing.
func New(timing manifest.MediaTiming) Addressor {
	return Addressor{timing: timing}
}

// SegmentIndexForTime returns ceil((segmentCount / duration) * t). Times at or
// before zero map to the initialization unit; times past the end map to the
// last segment.
func (a Addressor) SegmentIndexForTime(t float64) int {
	if t <= 0 || a.timing.Duration <= 0 || math.IsNaN(t) {
		return InitIndex
	}
	idx := int(math.Ceil(float64(a.timing.SegmentCount) * t / a.timing.Duration))
	if idx > a.timing.SegmentCount {
		return a.timing.SegmentCount
	}
	return idx
}

// TimeForSegment returns the playback time that SegmentIndexForTime maps back
// to index.
func (a Addressor) TimeForSegment(index int) float64 {
	if index <= 0 {
		return 0
	}
	if index > a.timing.SegmentCount {
		index = a.timing.SegmentCount
	}
	return float64(index) * a.timing.SegmentLength
}

// BaseURL returns the manifest URL up to and including its last '/'.
func BaseURL(manifestURL string) string {
	u, err := url.Parse(manifestURL)
	if err != nil {
		if i := strings.LastIndex(manifestURL, "/"); i >= 0 {
			return manifestURL[:i+1]
		}
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	if u.Path == "" && u.Host != "" {
		u.Path = "/"
	}
	u.Path = u.Path[:strings.LastIndex(u.Path, "/")+1]
	u.RawPath = ""
	return u.String()
}

// URLForSegment returns the URL of segment index of r. Index 0 addresses the
// initialization unit; any other index is substituted into the media
// pattern. Relative paths are resolved against baseURL.
func URLForSegment(r *manifest.Rendition, index int, baseURL string) (string, error) {
	if r == nil {
		return "", ErrNoRenditionSelected
	}
	if index < 0 {
		return "", fmt.Errorf("segment index %d out of range", index)
	}

	var path string
	if index == InitIndex {
		path = expand(r.Template.InitializationPath, r, 0)
	} else {
		path = expand(r.Template.MediaPathPattern, r, r.Template.StartNumber+index-1)
	}
	return resolve(baseURL, path)
}

func resolve(baseURL, path string) (string, error) {
	if baseURL == "" {
		return path, nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse segment path %q: %w", path, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// expand substitutes the $Identifier$ and $Identifier%0Nd$ template
// variables. Unknown identifiers are left untouched.
func expand(pattern string, r *manifest.Rendition, number int) string {
	var b strings.Builder
	for {
		start := strings.IndexByte(pattern, '$')
		if start < 0 {
			b.WriteString(pattern)
			return b.String()
		}
		end := strings.IndexByte(pattern[start+1:], '$')
		if end < 0 {
			b.WriteString(pattern)
			return b.String()
		}
		end += start + 1

		b.WriteString(pattern[:start])
		b.WriteString(substitute(pattern[start+1:end], r, number))
		pattern = pattern[end+1:]
	}
}

func substitute(token string, r *manifest.Rendition, number int) string {
	if token == "" {
		return "$"
	}
	name, format := token, ""
	if i := strings.IndexByte(token, '%'); i >= 0 {
		name, format = token[:i], token[i:]
	}

	switch name {
	case "RepresentationID":
		return r.ID
	case "Number":
		return formatInt(number, format)
	case "Bandwidth":
		return formatInt(r.Bandwidth, format)
	default:
		return "$" + token + "$"
	}
}

func formatInt(v int, format string) string {
	if format == "" {
		return strconv.Itoa(v)
	}
	// Only %0Nd is valid in templates.
	if !strings.HasPrefix(format, "%0") || !strings.HasSuffix(format, "d") {
		return strconv.Itoa(v)
	}
	width, err := strconv.Atoi(format[2 : len(format)-1])
	if err != nil {
		return strconv.Itoa(v)
	}
	return fmt.Sprintf("%0*d", width, v)
}
