// Package pipeline owns the playback buffer endpoint and serializes appends to
// it: exactly one append may be outstanding at a time.
package pipeline

import (
	"strings"
)

// EndReason is passed with an end-of-stream signal.
type EndReason string

const (
	ReasonNone    EndReason = ""
	ReasonNetwork EndReason = "network"
	ReasonDecode  EndReason = "decode"
)

// Buffer is the platform playback buffer endpoint.
type Buffer interface {
	// Append hands data to the buffer. onUpdateEnd is invoked once when the
	// buffer has finished with it, with a non-nil error if the data could not
	// be consumed, unless Abort is called first. It may be invoked from any
	// goroutine, including synchronously from Append.
	Append(data []byte, onUpdateEnd func(error)) error
	// Abort cancels the in-flight append, if any.
	Abort() error
	// EndOfStream signals that no more data follows.
	EndOfStream(reason EndReason) error
	// Destroy releases the buffer. No other method is called afterwards.
	Destroy() error
}

// BufferFactory creates playback buffers for a MIME type.
type BufferFactory interface {
	IsTypeSupported(mimeType string) bool
	CreateBuffer(mimeType string) (Buffer, error)
}

// MIMEType builds `<container>; codecs="<codec1>[,<codec2>]"`. With no codecs
// the container is returned as is.
func MIMEType(container string, codecs ...string) string {
	var cs []string
	for _, c := range codecs {
		if c = strings.TrimSpace(c); c != "" {
			cs = append(cs, c)
		}
	}
	if len(cs) == 0 {
		return container
	}
	return container + `; codecs="` + strings.Join(cs, ",") + `"`
}

// ParseMIMEType splits a MIME type built by MIMEType into its container and
// codec list.
func ParseMIMEType(mimeType string) (container string, codecs []string) {
	container, params, _ := strings.Cut(mimeType, ";")
	container = strings.TrimSpace(container)
	for _, p := range strings.Split(params, ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || strings.TrimSpace(key) != "codecs" {
			continue
		}
		val = strings.Trim(strings.TrimSpace(val), `"`)
		for _, c := range strings.Split(val, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codecs = append(codecs, c)
			}
		}
	}
	return container, codecs
}
