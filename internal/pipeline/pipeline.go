package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrAppendInProgress is returned by Append while another append is
	// outstanding. The engine never triggers it; seeing it is a bug.
	ErrAppendInProgress = errors.New("append already in progress")

	// ErrUnsupportedFormat is returned when the platform cannot play the
	// requested MIME type.
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrDetached is returned after Detach.
	ErrDetached = errors.New("pipeline detached")
)

// AppendHandle tracks one append. Exactly one of Done and Aborted is closed,
// exactly once.
type AppendHandle struct {
	Index int

	done    chan struct{}
	aborted chan struct{}
	err     error
}

// Done is closed when the buffer has finished with the appended data. Err
// tells whether it was consumed.
func (h *AppendHandle) Done() <-chan struct{} {
	return h.done
}

// Err is the error the buffer reported for the append. It is only
// meaningful once Done is closed.
func (h *AppendHandle) Err() error {
	return h.err
}

// Aborted is closed when the append was aborted before completing.
func (h *AppendHandle) Aborted() <-chan struct{} {
	return h.aborted
}

// Pipeline wraps a single playback buffer.
type Pipeline struct {
	mimeType string

	mu      sync.Mutex
	buf     Buffer
	pending *AppendHandle
}

// Open creates a buffer for mimeType through factory. The format is checked
// before anything is created.
func Open(factory BufferFactory, mimeType string) (*Pipeline, error) {
	if !factory.IsTypeSupported(mimeType) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}
	buf, err := factory.CreateBuffer(mimeType)
	if err != nil {
		return nil, fmt.Errorf("create buffer for %s: %w", mimeType, err)
	}
	return &Pipeline{mimeType: mimeType, buf: buf}, nil
}

// MIMEType returns the MIME type the buffer was created for.
func (p *Pipeline) MIMEType() string {
	return p.mimeType
}

// Outstanding reports whether an append is in flight.
func (p *Pipeline) Outstanding() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

// Append hands data for segment index to the buffer.
func (p *Pipeline) Append(index int, data []byte) (*AppendHandle, error) {
	p.mu.Lock()
	if p.buf == nil {
		p.mu.Unlock()
		return nil, ErrDetached
	}
	if p.pending != nil {
		p.mu.Unlock()
		return nil, ErrAppendInProgress
	}
	h := &AppendHandle{
		Index:   index,
		done:    make(chan struct{}),
		aborted: make(chan struct{}),
	}
	p.pending = h
	buf := p.buf
	p.mu.Unlock()

	// The buffer may call back synchronously, so p.mu must not be held here.
	if err := buf.Append(data, func(err error) { p.complete(h, err) }); err != nil {
		p.mu.Lock()
		if p.pending == h {
			p.pending = nil
		}
		p.mu.Unlock()
		return nil, fmt.Errorf("append segment %d: %w", index, err)
	}
	return h, nil
}

func (p *Pipeline) complete(h *AppendHandle, err error) {
	p.mu.Lock()
	if p.pending != h {
		// Aborted, or a stale callback.
		p.mu.Unlock()
		return
	}
	p.pending = nil
	p.mu.Unlock()
	if err != nil {
		h.err = fmt.Errorf("append segment %d: %w", h.Index, err)
	}
	close(h.done)
}

// Abort cancels the outstanding append. Its Done channel will not be closed
// afterwards. Abort is a no-op when nothing is outstanding.
func (p *Pipeline) Abort() error {
	p.mu.Lock()
	h := p.pending
	p.pending = nil
	buf := p.buf
	p.mu.Unlock()

	if h == nil || buf == nil {
		return nil
	}
	close(h.aborted)
	return buf.Abort()
}

// EndOfStream signals the end of the stream to the buffer.
func (p *Pipeline) EndOfStream(reason EndReason) error {
	p.mu.Lock()
	buf := p.buf
	p.mu.Unlock()
	if buf == nil {
		return ErrDetached
	}
	return buf.EndOfStream(reason)
}

// Detach aborts any outstanding append and destroys the buffer.
func (p *Pipeline) Detach() error {
	abortErr := p.Abort()

	p.mu.Lock()
	buf := p.buf
	p.buf = nil
	p.mu.Unlock()
	if buf == nil {
		return nil
	}
	return errors.Join(abortErr, buf.Destroy())
}
