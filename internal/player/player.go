// Package player ties the manifest, one buffering engine per content type,
// the play clock and the event bus together, and serves the control API.
package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"sync"

	"dash-player/internal/addressor"
	"dash-player/internal/engine"
	"dash-player/internal/events"
	"dash-player/internal/fetch"
	"dash-player/internal/manifest"
	"dash-player/internal/pipeline"
	"dash-player/internal/platform/logger"
	"dash-player/internal/platform/metrics"

	"golang.org/x/sync/errgroup"
)

// Options configures a Player.
type Options struct {
	Fetcher         fetch.Fetcher
	Factory         pipeline.BufferFactory
	Bus             *events.Bus
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	LookaheadWindow int
	// Clock may be nil for a real-time clock with the default tick.
	Clock *Clock
}

// Player is safe for concurrent use.
type Player struct {
	fetcher fetch.Fetcher
	bus     *events.Bus
	log     *slog.Logger
	clock   *Clock
	engines map[manifest.ContentType]*engine.Engine

	mu          sync.RWMutex
	playlistURL string
	manifest    *manifest.Manifest
	selected    map[manifest.ContentType]*manifest.Rendition
}

var contentTypes = []manifest.ContentType{manifest.ContentVideo, manifest.ContentAudio}

// New returns a Player with a video and an audio engine. Call Run to start
// them.
func New(opts Options) *Player {
	p := &Player{
		fetcher:  opts.Fetcher,
		bus:      opts.Bus,
		log:      opts.Logger,
		clock:    opts.Clock,
		engines:  make(map[manifest.ContentType]*engine.Engine, len(contentTypes)),
		selected: make(map[manifest.ContentType]*manifest.Rendition),
	}
	if p.clock == nil {
		p.clock = NewClock(0, 0)
	}
	if p.log == nil {
		p.log = logger.Discard()
	}
	for _, ct := range contentTypes {
		ct := ct
		p.engines[ct] = engine.New(engine.Options{
			ContentType:     ct,
			LookaheadWindow: opts.LookaheadWindow,
			Fetcher:         opts.Fetcher,
			Factory:         opts.Factory,
			Logger:          p.log,
			Metrics:         opts.Metrics,
			OnProgress: func(st engine.Status) {
				p.publish(events.BufferProgressChanged, st)
			},
		})
	}
	return p
}

// Run runs the engines and the clock until ctx is done or one of them fails.
func (p *Player) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ct := range contentTypes {
		ct := ct
		e := p.engines[ct]
		g.Go(func() error { return e.Run(ctx) })
		g.Go(func() error {
			p.forwardErrors(ctx, ct, e)
			return nil
		})
	}
	g.Go(func() error {
		return p.clock.Run(ctx, func(t float64) {
			if err := p.fanOut(ctx, t); err != nil && ctx.Err() == nil {
				p.log.Warn("position update failed", slog.String("error", err.Error()))
			}
		})
	})
	return g.Wait()
}

func (p *Player) forwardErrors(ctx context.Context, ct manifest.ContentType, e *engine.Engine) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-e.Errors():
			f := events.Failure{ContentType: string(ct), Error: err.Error()}
			var serr *engine.SessionError
			if errors.As(err, &serr) {
				f.RenditionID = serr.RenditionID
				f.Segment = serr.Segment
			}
			p.publish(events.SessionError, f)
		}
	}
}

func (p *Player) publish(t events.Type, payload any) {
	if p.bus == nil {
		return
	}
	p.bus.Publish(events.Event{Type: t, Payload: payload})
}

// SetPlaylistURL sets the manifest location. Only absolute http(s) URLs are
// accepted.
func (p *Player) SetPlaylistURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	p.mu.Lock()
	p.playlistURL = raw
	p.mu.Unlock()
	return nil
}

func (p *Player) PlaylistURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.playlistURL
}

// LoadManifest fetches and parses the manifest at the playlist URL. Buffering
// does not start until a track is selected.
func (p *Player) LoadManifest(ctx context.Context) (*manifest.Manifest, error) {
	u := p.PlaylistURL()
	if u == "" {
		return nil, ErrNoPlaylist
	}
	data, err := p.fetcher.Fetch(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	m, err := manifest.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.manifest = m
	p.mu.Unlock()
	p.clock.SetDuration(m.Duration)

	p.log.Info("manifest loaded",
		slog.String("url", u),
		slog.Float64("duration", m.Duration),
		slog.Int("renditions", len(m.Renditions())))
	return m, nil
}

// Manifest returns the loaded manifest.
func (p *Player) Manifest() (*manifest.Manifest, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.manifest == nil {
		return nil, ErrNoManifest
	}
	return p.manifest, nil
}

// SelectTrack switches the engine of the rendition's content type to it.
func (p *Player) SelectTrack(ctx context.Context, id string) error {
	p.mu.RLock()
	m, base := p.manifest, addressor.BaseURL(p.playlistURL)
	p.mu.RUnlock()
	if m == nil {
		return ErrNoManifest
	}
	r, ok := m.Rendition(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRendition, id)
	}
	ct := r.ContentType()
	e, ok := p.engines[ct]
	if !ok {
		return fmt.Errorf("%w: rendition %s is neither audio nor video", pipeline.ErrUnsupportedFormat, id)
	}

	timing := m.Timing(r)
	if err := e.SelectRendition(ctx, engine.Selection{Rendition: r, Timing: timing, BaseURL: base}); err != nil {
		return err
	}
	p.mu.Lock()
	p.selected[ct] = r
	p.mu.Unlock()

	p.publish(events.TrackSelectionChanged, events.TrackSelection{
		ContentType: string(ct),
		RenditionID: r.ID,
		MimeType:    r.Container(),
		Codecs:      r.Codecs,
		Bandwidth:   r.Bandwidth,
		Width:       r.Width,
		Height:      r.Height,
	})
	p.publish(events.MetadataReady, events.Metadata{
		ContentType:   string(ct),
		RenditionID:   r.ID,
		Duration:      timing.Duration,
		SegmentCount:  timing.SegmentCount,
		SegmentLength: timing.SegmentLength,
	})

	// Resume buffering at the cursor rather than at the start.
	if pos := p.clock.Position(); pos > 0 {
		return e.UpdatePosition(ctx, pos)
	}
	return nil
}

// Selected returns the rendition selected for ct, if any.
func (p *Player) Selected(ct manifest.ContentType) (*manifest.Rendition, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.selected[ct]
	return r, ok
}

func (p *Player) Play() PlaybackState {
	p.clock.Play()
	return p.stateChanged()
}

func (p *Player) Pause() PlaybackState {
	p.clock.Pause()
	return p.stateChanged()
}

// Stop pauses and rewinds every engine to the start.
func (p *Player) Stop(ctx context.Context) (PlaybackState, error) {
	p.clock.Stop()
	st := p.stateChanged()
	return st, p.fanOut(ctx, 0)
}

// Toggle switches between PLAY and PAUSE. A stopped player starts playing.
func (p *Player) Toggle() PlaybackState {
	if p.clock.State() == StatePlay {
		return p.Pause()
	}
	return p.Play()
}

func (p *Player) stateChanged() PlaybackState {
	st := p.clock.State()
	p.publish(events.PlaybackStateChanged, events.PlaybackState{State: string(st), Position: p.clock.Position()})
	p.log.Info("playback state", slog.String("state", string(st)))
	return st
}

// UpdatePosition moves the cursor to t seconds and delivers the sample to
// every engine.
func (p *Player) UpdatePosition(ctx context.Context, t float64) error {
	if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidPosition, t)
	}
	p.clock.Seek(t)
	return p.fanOut(ctx, p.clock.Position())
}

func (p *Player) fanOut(ctx context.Context, t float64) error {
	var errs []error
	for _, ct := range contentTypes {
		ct := ct
		if err := p.engines[ct].UpdatePosition(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ct, err))
		}
	}
	return errors.Join(errs...)
}

// BrowseSegment moves the cursor to the start of segment index of the
// selected video rendition, or of the audio one for audio-only playback.
func (p *Player) BrowseSegment(ctx context.Context, index int) (float64, error) {
	p.mu.RLock()
	m := p.manifest
	r, ok := p.selected[manifest.ContentVideo]
	if !ok {
		r, ok = p.selected[manifest.ContentAudio]
	}
	p.mu.RUnlock()
	if !ok || m == nil {
		return 0, addressor.ErrNoRenditionSelected
	}

	timing := m.Timing(r)
	if index < 0 || index > timing.SegmentCount {
		return 0, fmt.Errorf("%w: %d not in [0, %d]", ErrSegmentOutOfRange, index, timing.SegmentCount)
	}
	t := addressor.New(timing).TimeForSegment(index)
	if err := p.UpdatePosition(ctx, t); err != nil {
		return 0, err
	}
	return t, nil
}

// Status is a snapshot of the player.
type Status struct {
	PlaylistURL string          `json:"playlist_url,omitempty"`
	State       PlaybackState   `json:"state"`
	Position    float64         `json:"position"`
	Duration    float64         `json:"duration"`
	Engines     []engine.Status `json:"engines"`
}

func (p *Player) Status(ctx context.Context) (Status, error) {
	st := Status{
		PlaylistURL: p.PlaylistURL(),
		State:       p.clock.State(),
		Position:    p.clock.Position(),
	}
	if m, err := p.Manifest(); err == nil {
		st.Duration = m.Duration
	}
	for _, ct := range contentTypes {
		ct := ct
		es, err := p.engines[ct].Status(ctx)
		if err != nil {
			return Status{}, err
		}
		st.Engines = append(st.Engines, es)
	}
	return st, nil
}
