package player

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dash-player/internal/addressor"
	"dash-player/internal/engine"
	"dash-player/internal/events"
	"dash-player/internal/fetch"
	"dash-player/internal/manifest"
	"dash-player/internal/pipeline"
	"dash-player/internal/pipeline/pipelinetest"
	"dash-player/internal/platform/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT2M0S">
  <Period>
    <AdaptationSet mimeType="video/mp4">
      <SegmentTemplate initialization="$RepresentationID$/init.mp4" media="$RepresentationID$/$Number$.m4s" duration="10" timescale="1"/>
      <Representation id="v720" codecs="avc1.4d401f" width="1280" height="720" bandwidth="3000000"/>
      <Representation id="v360" codecs="avc1.42c01e" width="640" height="360" bandwidth="800000"/>
    </AdaptationSet>
    <AdaptationSet mimeType="video/webm">
      <SegmentTemplate initialization="$RepresentationID$/init.webm" media="$RepresentationID$/$Number$.webm" duration="10" timescale="1"/>
      <Representation id="vp8" codecs="vp8" bandwidth="900000"/>
    </AdaptationSet>
    <AdaptationSet mimeType="audio/mp4" codecs="mp4a.40.2">
      <SegmentTemplate initialization="$RepresentationID$/init.mp4" media="$RepresentationID$/$Number$.m4s" duration="10" timescale="1"/>
      <Representation id="a128" bandwidth="128000"/>
    </AdaptationSet>
  </Period>
</MPD>`

type testEnv struct {
	player  *Player
	bus     *events.Bus
	factory *pipelinetest.Factory
	cdn     *httptest.Server
}

func (env *testEnv) url(path string) string {
	return env.cdn.URL + path
}

// newTestEnv starts a player against an in-process CDN serving testMPD at
// /vod/manifest.mpd and a payload for every media path.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/vod/manifest.mpd":
			w.Write([]byte(testMPD))
		case r.URL.Path == "/vod/broken.mpd":
			w.Write([]byte("<MPD><Period>"))
		case strings.HasSuffix(r.URL.Path, ".mp4"), strings.HasSuffix(r.URL.Path, ".m4s"):
			w.Write([]byte(r.URL.Path))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(cdn.Close)

	log := logger.Discard()
	factory := pipelinetest.NewFactory(true)
	factory.Unsupported[`video/webm; codecs="vp8"`] = true
	bus := events.NewBus(log)
	p := New(Options{
		Fetcher: fetch.NewClient(cdn.Client(), fetch.Config{Timeout: 5 * time.Second}, log, nil),
		Factory: factory,
		Bus:     bus,
		Logger:  log,
		Clock:   NewClock(time.Hour, 1),
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &testEnv{player: p, bus: bus, factory: factory, cdn: cdn}
}

func (env *testEnv) load(t *testing.T) *manifest.Manifest {
	t.Helper()
	require.NoError(t, env.player.SetPlaylistURL(env.url("/vod/manifest.mpd")))
	m, err := env.player.LoadManifest(context.Background())
	require.NoError(t, err)
	return m
}

func engineStatus(t *testing.T, p *Player, ct manifest.ContentType) engine.Status {
	t.Helper()
	st, err := p.Status(context.Background())
	require.NoError(t, err)
	for _, es := range st.Engines {
		if es.ContentType == ct {
			return es
		}
	}
	t.Fatalf("no %s engine", ct)
	return engine.Status{}
}

func nextEvent(t *testing.T, ch <-chan events.Event, typ events.Type) events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", typ)
			return events.Event{}
		}
	}
}

func TestPlayer_SetPlaylistURL(t *testing.T) {
	p := New(Options{Factory: pipelinetest.NewFactory(true)})

	for _, raw := range []string{"", "manifest.mpd", "ftp://cdn/x.mpd", "http://"} {
		assert.ErrorIs(t, p.SetPlaylistURL(raw), ErrInvalidURL, raw)
	}
	require.NoError(t, p.SetPlaylistURL("https://cdn.test/vod/manifest.mpd"))
	assert.Equal(t, "https://cdn.test/vod/manifest.mpd", p.PlaylistURL())
}

func TestPlayer_LoadManifest(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.player.LoadManifest(context.Background())
	assert.ErrorIs(t, err, ErrNoPlaylist)

	m := env.load(t)
	assert.Equal(t, 120.0, m.Duration)
	assert.Len(t, m.Renditions(), 4)

	require.NoError(t, env.player.SetPlaylistURL(env.url("/vod/missing.mpd")))
	_, err = env.player.LoadManifest(context.Background())
	assert.ErrorIs(t, err, fetch.ErrNetwork)

	require.NoError(t, env.player.SetPlaylistURL(env.url("/vod/broken.mpd")))
	_, err = env.player.LoadManifest(context.Background())
	assert.ErrorIs(t, err, manifest.ErrManifestParse)

	// The last good manifest stays loaded.
	got, err := env.player.Manifest()
	require.NoError(t, err)
	assert.Same(t, m, got)
}

func TestPlayer_SelectTrack(t *testing.T) {
	env := newTestEnv(t)
	ch := env.bus.Subscribe(events.TrackSelectionChanged, events.MetadataReady)

	assert.ErrorIs(t, env.player.SelectTrack(context.Background(), "v720"), ErrNoManifest)

	env.load(t)
	assert.ErrorIs(t, env.player.SelectTrack(context.Background(), "nope"), ErrUnknownRendition)
	assert.ErrorIs(t, env.player.SelectTrack(context.Background(), "vp8"), pipeline.ErrUnsupportedFormat)

	require.NoError(t, env.player.SelectTrack(context.Background(), "v720"))

	sel := nextEvent(t, ch, events.TrackSelectionChanged).Payload.(events.TrackSelection)
	assert.Equal(t, "v720", sel.RenditionID)
	assert.Equal(t, "video", sel.ContentType)
	meta := nextEvent(t, ch, events.MetadataReady).Payload.(events.Metadata)
	assert.Equal(t, 12, meta.SegmentCount)
	assert.Equal(t, 10.0, meta.SegmentLength)

	require.Eventually(t, func() bool {
		return engineStatus(t, env.player, manifest.ContentVideo).State == engine.StateDraining
	}, 2*time.Second, 5*time.Millisecond)

	buf := env.factory.Last()
	assert.Equal(t, `video/mp4; codecs="avc1.4d401f"`, buf.MIMEType)
	appends := buf.Appends()
	require.NotEmpty(t, appends)
	assert.Equal(t, "/vod/v720/init.mp4", string(appends[0]))

	audio := engineStatus(t, env.player, manifest.ContentAudio)
	assert.Empty(t, audio.RenditionID)
	assert.Equal(t, engine.StateIdle, audio.State)
}

func TestPlayer_audioAndVideoRunSideBySide(t *testing.T) {
	env := newTestEnv(t)
	env.load(t)

	require.NoError(t, env.player.SelectTrack(context.Background(), "v360"))
	require.NoError(t, env.player.SelectTrack(context.Background(), "a128"))
	require.Len(t, env.factory.Buffers(), 2)

	require.NoError(t, env.player.UpdatePosition(context.Background(), 85))
	require.Eventually(t, func() bool {
		v := engineStatus(t, env.player, manifest.ContentVideo)
		a := engineStatus(t, env.player, manifest.ContentAudio)
		return v.CurrentPlaySegment == 9 && a.CurrentPlaySegment == 9 &&
			v.State == engine.StateEnded && a.State == engine.StateEnded
	}, 2*time.Second, 5*time.Millisecond)

	a := engineStatus(t, env.player, manifest.ContentAudio)
	assert.Equal(t, "a128", a.RenditionID)
	assert.Contains(t, a.DownloadedSegments, 9)
	assert.NotContains(t, a.DownloadedSegments, 1)
}

func TestPlayer_UpdatePosition_invalid(t *testing.T) {
	env := newTestEnv(t)
	assert.ErrorIs(t, env.player.UpdatePosition(context.Background(), -1), ErrInvalidPosition)
}

func TestPlayer_BrowseSegment(t *testing.T) {
	env := newTestEnv(t)
	env.load(t)

	_, err := env.player.BrowseSegment(context.Background(), 3)
	assert.ErrorIs(t, err, addressor.ErrNoRenditionSelected)

	require.NoError(t, env.player.SelectTrack(context.Background(), "v720"))
	ts, err := env.player.BrowseSegment(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 70.0, ts)

	require.Eventually(t, func() bool {
		return engineStatus(t, env.player, manifest.ContentVideo).CurrentPlaySegment == 7
	}, 2*time.Second, 5*time.Millisecond)

	_, err = env.player.BrowseSegment(context.Background(), 13)
	assert.ErrorIs(t, err, ErrSegmentOutOfRange)
}

func TestPlayer_playbackControls(t *testing.T) {
	env := newTestEnv(t)
	ch := env.bus.Subscribe(events.PlaybackStateChanged)

	assert.Equal(t, StatePlay, env.player.Play())
	assert.Equal(t, "PLAY", nextEvent(t, ch, events.PlaybackStateChanged).Payload.(events.PlaybackState).State)

	assert.Equal(t, StatePause, env.player.Toggle())
	assert.Equal(t, StatePlay, env.player.Toggle())
	assert.Equal(t, StatePause, env.player.Pause())

	require.NoError(t, env.player.UpdatePosition(context.Background(), 42))
	st, err := env.player.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateStop, st)

	status, err := env.player.Status(context.Background())
	require.NoError(t, err)
	assert.Zero(t, status.Position)
	assert.Equal(t, StateStop, status.State)
}
