// Package engine implements the segment buffering engine: it decides which
// segment to fetch next, paces fetches against a single-append pipeline and
// keeps the buffer window consistent across seeks and track switches.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"dash-player/internal/addressor"
	"dash-player/internal/fetch"
	"dash-player/internal/manifest"
	"dash-player/internal/pipeline"
	"dash-player/internal/platform/logger"
	"dash-player/internal/platform/metrics"

	"github.com/google/uuid"
)

// DefaultLookaheadWindow is the default number of segments buffered ahead of
// the play cursor.
const DefaultLookaheadWindow = 5

// Options configures an Engine.
type Options struct {
	// ContentType labels logs and metrics ("video" or "audio").
	ContentType manifest.ContentType
	// LookaheadWindow bounds how far ahead of the cursor segments are
	// fetched. If <= 0, DefaultLookaheadWindow is used.
	LookaheadWindow int

	Fetcher fetch.Fetcher
	Factory pipeline.BufferFactory
	Logger  *slog.Logger
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// OnProgress is called on the engine goroutine after every change to the
	// downloaded set or the cursor. It must not block.
	OnProgress func(Status)
}

// Selection is a rendition to buffer.
type Selection struct {
	Rendition *manifest.Rendition
	Timing    manifest.MediaTiming
	// BaseURL resolves relative segment paths.
	BaseURL string
}

// Engine buffers one stream. All state is owned by the goroutine running
// Run; other methods communicate with it through events.
type Engine struct {
	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics

	events chan any
	errs   chan error
	done   chan struct{}

	// Owned by the Run goroutine.
	runCtx      context.Context
	state       State
	buf         BufferState
	timing      manifest.MediaTiming
	addr        addressor.Addressor
	tracker     *Tracker
	baseURL     string
	pipe        *pipeline.Pipeline
	epoch       uint64
	sessionID   string
	cancelFetch context.CancelFunc
	eosSignaled bool
	failure     error
}

// New returns an Engine. Call Run to start it.
func New(opts Options) *Engine {
	if opts.LookaheadWindow <= 0 {
		opts.LookaheadWindow = DefaultLookaheadWindow
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	addr := addressor.New(manifest.MediaTiming{})
	return &Engine{
		opts:    opts,
		log:     log.With(slog.String("content_type", string(opts.ContentType))),
		metrics: opts.Metrics,
		events:  make(chan any, 64),
		errs:    make(chan error, 8),
		done:    make(chan struct{}),
		state:   StateIdle,
		buf:     newBufferState(nil),
		addr:    addr,
		tracker: NewTracker(addr),
	}
}

type selectEvent struct {
	sel   Selection
	reply chan error
}

type positionEvent struct {
	time float64
}

type statusEvent struct {
	reply chan Status
}

type fetchedEvent struct {
	epoch uint64
	index int
	url   string
	data  []byte
	err   error
}

type appendedEvent struct {
	epoch uint64
	index int
	err   error
}

// Errors returns the session error channel. Every failure that ends a
// session is delivered here as a *SessionError.
func (e *Engine) Errors() <-chan error {
	return e.errs
}

// Done is closed when Run returns.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// SelectRendition switches the engine to sel: the current buffer is detached,
// a fresh one is created for the rendition's MIME type, the buffer state is
// reset and filling starts with the initialization unit. An unsupported
// format is reported before anything is torn down.
func (e *Engine) SelectRendition(ctx context.Context, sel Selection) error {
	reply := make(chan error, 1)
	if err := e.send(ctx, selectEvent{sel: sel, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// UpdatePosition delivers a play cursor sample (seconds).
func (e *Engine) UpdatePosition(ctx context.Context, t float64) error {
	return e.send(ctx, positionEvent{time: t})
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := e.send(ctx, statusEvent{reply: reply}); err != nil {
		return Status{}, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	case <-e.done:
		return Status{}, ErrStopped
	}
}

func (e *Engine) send(ctx context.Context, ev any) error {
	select {
	case e.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// post is used by the engine's own goroutines to report completions.
func (e *Engine) post(ev any) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

// Run processes events until ctx is cancelled. Each event is handled to
// completion before the next one is read.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx = ctx
	defer close(e.done)
	defer e.teardown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-e.events:
			e.handle(ev)
		}
	}
}

func (e *Engine) handle(ev any) {
	switch ev := ev.(type) {
	case selectEvent:
		ev.reply <- e.switchTo(ev.sel)
	case positionEvent:
		e.onPosition(ev.time)
	case fetchedEvent:
		e.onFetched(ev)
	case appendedEvent:
		e.onAppended(ev)
	case statusEvent:
		ev.reply <- e.snapshot()
	}
}

func (e *Engine) switchTo(sel Selection) error {
	r := sel.Rendition
	if r == nil {
		return addressor.ErrNoRenditionSelected
	}
	mimeType := pipeline.MIMEType(r.Container(), r.Codecs)
	if !e.opts.Factory.IsTypeSupported(mimeType) {
		return fmt.Errorf("%w: %s", pipeline.ErrUnsupportedFormat, mimeType)
	}

	e.teardown()
	e.epoch++
	e.buf = newBufferState(nil)
	e.failure = nil
	e.eosSignaled = false
	e.setState(StateIdle)

	pipe, err := pipeline.Open(e.opts.Factory, mimeType)
	if err != nil {
		return err
	}

	e.pipe = pipe
	e.buf = newBufferState(r)
	e.timing = sel.Timing
	e.addr = addressor.New(sel.Timing)
	e.tracker.Reset(e.addr)
	e.baseURL = sel.BaseURL
	e.sessionID = uuid.NewString()
	e.metrics.IncTrackSwitches()

	e.log.Info("rendition selected",
		slog.String("rendition", r.ID),
		slog.String("session_id", e.sessionID),
		slog.String("mime_type", mimeType),
		slog.Int("segment_count", sel.Timing.SegmentCount),
		slog.Float64("segment_length", sel.Timing.SegmentLength))

	e.fill()
	e.progress()
	return nil
}

// teardown cancels in-flight work and detaches the buffer.
func (e *Engine) teardown() {
	e.abortInFlight()
	if e.pipe != nil {
		if err := e.pipe.Detach(); err != nil {
			e.log.Warn("detach buffer failed", slog.String("error", err.Error()))
		}
		e.pipe = nil
	}
}

// abortInFlight cancels the outstanding fetch or aborts the outstanding
// append. Results of either are discarded by the epoch check.
func (e *Engine) abortInFlight() {
	if e.cancelFetch != nil {
		e.cancelFetch()
		e.cancelFetch = nil
	}
	if e.pipe != nil && e.pipe.Outstanding() {
		if err := e.pipe.Abort(); err != nil {
			e.log.Warn("abort append failed", slog.String("error", err.Error()))
		}
		e.metrics.IncAborts()
	}
	e.buf.Filling = false
}

func (e *Engine) onPosition(t float64) {
	if e.buf.Rendition == nil {
		e.log.Debug("position sample without rendition", slog.Float64("time", t))
		return
	}

	pos := e.tracker.Observe(t)
	if pos.Kind == PositionSeek {
		e.seek(pos.Segment)
		return
	}

	e.buf.CurrentPlaySegment = pos.Segment
	e.buf.LastPlayedSegment = pos.Segment
	if e.state != StateEnded {
		e.fill()
	}
	e.progress()
}

func (e *Engine) seek(segment int) {
	e.metrics.IncSeeks()
	from := e.buf.CurrentPlaySegment

	e.buf.CurrentPlaySegment = segment
	e.buf.LastPlayedSegment = segment
	if e.failure != nil {
		e.progress()
		return
	}

	e.setState(StateSeeking)
	e.abortInFlight()
	e.epoch++

	e.buf.LastDownloadedSegment = max(segment-1, 0)
	dropped := e.buf.Downloaded.DropBefore(segment)

	e.log.Info("seek",
		slog.Int("from_segment", from),
		slog.Int("to_segment", segment),
		slog.Int("dropped", dropped))

	e.fill()
	e.progress()
}

// nextCandidate is the index the admission test considers next.
func (e *Engine) nextCandidate() int {
	if !e.buf.Downloaded.Has(addressor.InitIndex) {
		return addressor.InitIndex
	}
	return e.buf.LastDownloadedSegment + 1
}

// fill admits at most one fetch. Segments already in the buffer are skipped.
func (e *Engine) fill() {
	if e.pipe == nil || e.buf.Rendition == nil || e.buf.Filling || e.failure != nil {
		return
	}

	for {
		next := e.nextCandidate()
		if next > e.timing.SegmentCount {
			e.endOfStream()
			return
		}
		if next-e.buf.CurrentPlaySegment >= e.opts.LookaheadWindow {
			e.setState(StateDraining)
			return
		}
		if e.buf.Downloaded.Has(next) {
			e.buf.LastDownloadedSegment = next
			continue
		}
		e.request(next)
		return
	}
}

func (e *Engine) request(index int) {
	url, err := addressor.URLForSegment(e.buf.Rendition, index, e.baseURL)
	if err != nil {
		e.fail(index, err, pipeline.ReasonNone)
		return
	}

	e.buf.Filling = true
	if index > e.buf.LastDownloadedSegment {
		e.buf.LastDownloadedSegment = index
	}
	e.setState(StateFilling)

	ctx, cancel := context.WithCancel(e.runCtx)
	e.cancelFetch = cancel
	epoch := e.epoch
	fetcher := e.opts.Fetcher

	e.log.Debug("fetch segment", slog.Int("segment", index), slog.String("url", url))
	go func() {
		defer cancel()
		data, err := fetcher.Fetch(ctx, url)
		e.post(fetchedEvent{epoch: epoch, index: index, url: url, data: data, err: err})
	}()
}

func (e *Engine) onFetched(ev fetchedEvent) {
	if ev.epoch != e.epoch {
		return
	}
	e.cancelFetch = nil

	if ev.err != nil {
		e.fail(ev.index, ev.err, pipeline.ReasonNetwork)
		return
	}

	h, err := e.pipe.Append(ev.index, ev.data)
	if err != nil {
		if errors.Is(err, pipeline.ErrAppendInProgress) {
			e.log.Error("append while another is outstanding", slog.Int("segment", ev.index))
		}
		e.fail(ev.index, err, pipeline.ReasonDecode)
		return
	}

	epoch := e.epoch
	go func() {
		select {
		case <-h.Done():
			e.post(appendedEvent{epoch: epoch, index: h.Index, err: h.Err()})
		case <-h.Aborted():
		case <-e.done:
		}
	}()
}

func (e *Engine) onAppended(ev appendedEvent) {
	if ev.epoch != e.epoch {
		return
	}
	if ev.err != nil {
		e.fail(ev.index, ev.err, pipeline.ReasonDecode)
		return
	}
	e.buf.Filling = false
	e.buf.Downloaded.Add(ev.index)
	e.eosSignaled = false
	e.metrics.IncAppends(string(e.opts.ContentType))

	e.log.Debug("segment appended", slog.Int("segment", ev.index))
	e.fill()
	e.progress()
}

func (e *Engine) endOfStream() {
	e.setState(StateEnded)
	if e.eosSignaled {
		return
	}
	e.eosSignaled = true
	if err := e.pipe.EndOfStream(pipeline.ReasonNone); err != nil {
		e.log.Warn("end of stream failed", slog.String("error", err.Error()))
	}
	e.metrics.IncEndOfStream()
	e.log.Info("end of stream", slog.String("session_id", e.sessionID))
}

// fail ends the session. There is no automatic retry; selecting the
// rendition again starts a new session.
func (e *Engine) fail(index int, err error, reason pipeline.EndReason) {
	serr := &SessionError{
		RenditionID: e.buf.Rendition.ID,
		SessionID:   e.sessionID,
		Segment:     index,
		Err:         err,
	}
	e.failure = serr
	e.buf.Filling = false
	e.setState(StateEnded)

	if reason != pipeline.ReasonNone && e.pipe != nil {
		if eosErr := e.pipe.EndOfStream(reason); eosErr != nil {
			e.log.Warn("end of stream failed", slog.String("error", eosErr.Error()))
		}
	}
	e.log.Error("buffering session failed",
		slog.String("session_id", e.sessionID),
		slog.Int("segment", index),
		slog.String("error", err.Error()))

	select {
	case e.errs <- serr:
	default:
		e.log.Warn("session error dropped, channel full", slog.String("error", err.Error()))
	}
	e.progress()
}

func (e *Engine) setState(s State) {
	if e.state == s {
		return
	}
	e.log.Debug("state", slog.String("from", e.state.String()), slog.String("to", s.String()))
	e.state = s
}

func (e *Engine) snapshot() Status {
	st := Status{
		ContentType:           e.opts.ContentType,
		State:                 e.state,
		SessionID:             e.sessionID,
		LastDownloadedSegment: e.buf.LastDownloadedSegment,
		LastPlayedSegment:     e.buf.LastPlayedSegment,
		CurrentPlaySegment:    e.buf.CurrentPlaySegment,
		DownloadedSegments:    e.buf.Downloaded.Sorted(),
		SegmentCount:          e.timing.SegmentCount,
		BufferedAhead:         e.buf.Downloaded.ContiguousFrom(e.buf.CurrentPlaySegment),
		Filling:               e.buf.Filling,
	}
	if e.buf.Rendition != nil {
		st.RenditionID = e.buf.Rendition.ID
	}
	if e.failure != nil {
		st.Error = e.failure.Error()
	}
	return st
}

func (e *Engine) progress() {
	st := e.snapshot()
	e.metrics.SetBufferedAhead(string(e.opts.ContentType), st.BufferedAhead)
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(st)
	}
}
