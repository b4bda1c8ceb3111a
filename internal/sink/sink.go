// Package sink is a playback buffer that writes every consumed unit to
// storage. It stands in for a media decoder when the player runs headless.
package sink

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"dash-player/internal/pipeline"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/google/uuid"
)

var (
	// ErrDecode is returned by Append when the initialization unit cannot be
	// parsed.
	ErrDecode = errors.New("decode error")
	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = errors.New("buffer destroyed")
)

var supportedContainers = map[string]bool{
	"video/mp4": true,
	"audio/mp4": true,
}

var supportedCodecs = []string{"avc1", "avc3", "hev1", "hvc1", "mp4a", "opus", "ac-3", "ec-3", "vp09", "av01"}

// Factory creates storage-backed buffers.
type Factory struct {
	store Storage
	log   *slog.Logger

	mu      sync.Mutex
	buffers []*Buffer
}

// NewFactory returns a Factory writing into store.
func NewFactory(store Storage, log *slog.Logger) *Factory {
	return &Factory{store: store, log: log}
}

// IsTypeSupported accepts fragmented MP4 with known codecs.
func (f *Factory) IsTypeSupported(mimeType string) bool {
	container, codecs := pipeline.ParseMIMEType(mimeType)
	if !supportedContainers[container] {
		return false
	}
	for _, c := range codecs {
		if !codecSupported(c) {
			return false
		}
	}
	return true
}

func codecSupported(codec string) bool {
	for _, prefix := range supportedCodecs {
		if strings.HasPrefix(codec, prefix) {
			return true
		}
	}
	return false
}

// CreateBuffer returns a buffer writing into a new session directory.
func (f *Factory) CreateBuffer(mimeType string) (pipeline.Buffer, error) {
	if !f.IsTypeSupported(mimeType) {
		return nil, fmt.Errorf("%w: %s", pipeline.ErrUnsupportedFormat, mimeType)
	}
	b := &Buffer{
		mimeType: mimeType,
		dir:      uuid.NewString(),
		store:    f.store,
	}
	b.log = f.log.With(slog.String("buffer", b.dir), slog.String("mime_type", mimeType))

	f.mu.Lock()
	f.buffers = append(f.buffers, b)
	f.mu.Unlock()

	b.log.Info("buffer created")
	return b, nil
}

// Buffers returns every buffer created so far, oldest first.
func (f *Factory) Buffers() []*Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Buffer, len(f.buffers))
	copy(out, f.buffers)
	return out
}

// Buffer writes the initialization unit to <dir>/init.mp4 and every later
// unit to <dir>/segment_<n>.m4s, n counting media units from 1. Until an
// initialization unit has been stored, every append is validated as one.
type Buffer struct {
	mimeType string
	dir      string
	store    Storage
	log      *slog.Logger

	mu         sync.Mutex
	appends    int
	segments   int
	initStored bool
	gen        uint64
	tracks     int
	ended      bool
	reason     pipeline.EndReason
	destroyed  bool
	writes     sync.WaitGroup
}

// Dir is the storage directory of the buffer.
func (b *Buffer) Dir() string {
	return b.dir
}

// MIMEType is the type the buffer was created for.
func (b *Buffer) MIMEType() string {
	return b.mimeType
}

// Append validates the initialization unit and writes data in the
// background. onUpdateEnd runs after the write, with the write error if it
// failed, unless Abort came first.
func (b *Buffer) Append(data []byte, onUpdateEnd func(error)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}

	isInit := !b.initStored
	var name string
	if isInit {
		tracks, err := decodeInit(data)
		if err != nil {
			return err
		}
		b.tracks = tracks
		name = "init.mp4"
	} else {
		b.segments++
		name = fmt.Sprintf("segment_%d.m4s", b.segments)
	}
	b.appends++
	b.ended = false
	gen := b.gen

	b.writes.Add(1)
	go func() {
		defer b.writes.Done()
		p := path.Join(b.dir, name)
		err := b.store.Write(p, data)
		if err != nil {
			b.log.Error("write failed", slog.String("path", p), slog.String("error", err.Error()))
		}

		b.mu.Lock()
		current := gen == b.gen && !b.destroyed
		if current && isInit && err == nil {
			b.initStored = true
		}
		b.mu.Unlock()
		if current {
			onUpdateEnd(err)
		}
	}()
	return nil
}

func decodeInit(data []byte) (int, error) {
	f, err := mp4.DecodeFile(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if f.Init == nil || f.Init.Moov == nil {
		return 0, fmt.Errorf("%w: initialization unit has no moov box", ErrDecode)
	}
	return len(f.Init.Moov.Traks), nil
}

// Abort drops the callback of the append in progress. The unit may still be
// written.
func (b *Buffer) Abort() error {
	b.mu.Lock()
	b.gen++
	b.mu.Unlock()
	return nil
}

func (b *Buffer) EndOfStream(reason pipeline.EndReason) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.destroyed {
		return ErrDestroyed
	}
	b.ended = true
	b.reason = reason
	b.log.Info("end of stream", slog.String("reason", string(reason)), slog.Int("units", b.appends))
	return nil
}

// Destroy waits for pending writes. Written files are kept.
func (b *Buffer) Destroy() error {
	b.mu.Lock()
	b.destroyed = true
	b.mu.Unlock()
	b.writes.Wait()
	return nil
}

// Stats describes what a buffer has consumed.
type Stats struct {
	Dir      string             `json:"dir"`
	MIMEType string             `json:"mime_type"`
	Units    int                `json:"units"`
	Tracks   int                `json:"tracks"`
	Ended    bool               `json:"ended"`
	Reason   pipeline.EndReason `json:"reason,omitempty"`
	Files    []string           `json:"files,omitempty"`
}

// Stats returns a snapshot of the buffer and the files written so far.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	st := Stats{
		Dir:      b.dir,
		MIMEType: b.mimeType,
		Units:    b.appends,
		Tracks:   b.tracks,
		Ended:    b.ended,
		Reason:   b.reason,
	}
	b.mu.Unlock()

	files, err := b.store.List(b.dir)
	if err != nil {
		b.log.Debug("list buffer files", slog.String("error", err.Error()))
	}
	st.Files = files
	return st
}
