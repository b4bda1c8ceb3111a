// Package pipelinetest provides an in-memory playback buffer for tests.
package pipelinetest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"dash-player/internal/pipeline"
)

// Call is one append seen by a Buffer in manual mode.
type Call struct {
	Data []byte

	onUpdateEnd func(error)
}

// Complete signals that the buffer consumed the data.
func (c Call) Complete() {
	c.onUpdateEnd(nil)
}

// Fail signals that the buffer could not consume the data.
func (c Call) Fail(err error) {
	c.onUpdateEnd(err)
}

// Factory creates Buffers. Every MIME type is supported unless listed in
// Unsupported.
type Factory struct {
	// AutoComplete makes buffers signal update-end on their own goroutine
	// right after each append. Otherwise tests complete appends via NextAppend.
	AutoComplete bool
	Unsupported  map[string]bool

	mu      sync.Mutex
	buffers []*Buffer
}

// NewFactory returns a Factory.
func NewFactory(autoComplete bool) *Factory {
	return &Factory{AutoComplete: autoComplete, Unsupported: map[string]bool{}}
}

// IsTypeSupported implements pipeline.BufferFactory.
func (f *Factory) IsTypeSupported(mimeType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.Unsupported[mimeType]
}

// CreateBuffer implements pipeline.BufferFactory.
func (f *Factory) CreateBuffer(mimeType string) (pipeline.Buffer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &Buffer{
		MIMEType: mimeType,
		auto:     f.AutoComplete,
		calls:    make(chan Call, 64),
	}
	f.buffers = append(f.buffers, b)
	return b, nil
}

// Buffers returns every buffer created so far.
func (f *Factory) Buffers() []*Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Buffer, len(f.buffers))
	copy(out, f.buffers)
	return out
}

// Last returns the most recently created buffer, or nil.
func (f *Factory) Last() *Buffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buffers) == 0 {
		return nil
	}
	return f.buffers[len(f.buffers)-1]
}

// ErrAppendRejected is returned by Append when FailAppends is set.
var ErrAppendRejected = errors.New("append rejected")

// Buffer records everything done to it.
type Buffer struct {
	MIMEType string

	auto  bool
	calls chan Call

	mu          sync.Mutex
	appends     [][]byte
	aborts      int
	endReasons  []pipeline.EndReason
	destroyed   bool
	failAppends bool
}

// FailAppends makes subsequent appends return ErrAppendRejected.
func (b *Buffer) FailAppends() {
	b.mu.Lock()
	b.failAppends = true
	b.mu.Unlock()
}

// Append implements pipeline.Buffer.
func (b *Buffer) Append(data []byte, onUpdateEnd func(error)) error {
	b.mu.Lock()
	if b.failAppends {
		b.mu.Unlock()
		return ErrAppendRejected
	}
	b.appends = append(b.appends, data)
	b.mu.Unlock()

	if b.auto {
		go onUpdateEnd(nil)
		return nil
	}
	b.calls <- Call{Data: data, onUpdateEnd: onUpdateEnd}
	return nil
}

// Abort implements pipeline.Buffer.
func (b *Buffer) Abort() error {
	b.mu.Lock()
	b.aborts++
	b.mu.Unlock()
	return nil
}

// EndOfStream implements pipeline.Buffer.
func (b *Buffer) EndOfStream(reason pipeline.EndReason) error {
	b.mu.Lock()
	b.endReasons = append(b.endReasons, reason)
	b.mu.Unlock()
	return nil
}

// Destroy implements pipeline.Buffer.
func (b *Buffer) Destroy() error {
	b.mu.Lock()
	b.destroyed = true
	b.mu.Unlock()
	return nil
}

// NextAppend waits for the next append in manual mode.
func (b *Buffer) NextAppend(t testing.TB) Call {
	t.Helper()
	select {
	case c := <-b.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no append on buffer %q", b.MIMEType)
		return Call{}
	}
}

// Appends returns a copy of the appended payloads.
func (b *Buffer) Appends() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.appends))
	copy(out, b.appends)
	return out
}

// Aborts returns how many times Abort was called.
func (b *Buffer) Aborts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aborts
}

// EndReasons returns the reasons of every end-of-stream signal.
func (b *Buffer) EndReasons() []pipeline.EndReason {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]pipeline.EndReason, len(b.endReasons))
	copy(out, b.endReasons)
	return out
}

// Destroyed reports whether Destroy was called.
func (b *Buffer) Destroyed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.destroyed
}
