package player

import "errors"

var (
	ErrInvalidURL        = errors.New("invalid playlist url")
	ErrNoPlaylist        = errors.New("no playlist url set")
	ErrNoManifest        = errors.New("manifest not loaded")
	ErrUnknownRendition  = errors.New("unknown rendition")
	ErrInvalidPosition   = errors.New("invalid position")
	ErrSegmentOutOfRange = errors.New("segment out of range")
)
