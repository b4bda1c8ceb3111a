package player

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"dash-player/internal/addressor"
	"dash-player/internal/engine"
	"dash-player/internal/events"
	"dash-player/internal/fetch"
	"dash-player/internal/manifest"
	"dash-player/internal/pipeline"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const eventWriteTimeout = 5 * time.Second

// Handler exposes the player control API using go-chi.
type Handler struct {
	player   *Player
	bus      *events.Bus
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewHandler returns a Handler for p. bus feeds the /events stream.
func NewHandler(p *Player, bus *events.Bus, log *slog.Logger) *Handler {
	return &Handler{
		player: p,
		bus:    bus,
		log:    log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Put("/playlist", h.SetPlaylist)
	r.Get("/renditions", h.ListRenditions)
	r.Post("/tracks/{rendition}/select", h.SelectTrack)
	r.Post("/playback/{action}", h.Playback)
	r.Put("/position", h.UpdatePosition)
	r.Post("/segments/{index}/browse", h.BrowseSegment)
	r.Get("/status", h.Status)
	r.Get("/events", h.Events)
}

type renditionView struct {
	ID            string  `json:"id"`
	ContentType   string  `json:"content_type"`
	MimeType      string  `json:"mime_type"`
	Codecs        string  `json:"codecs"`
	Bandwidth     int     `json:"bandwidth"`
	Width         int     `json:"width,omitempty"`
	Height        int     `json:"height,omitempty"`
	SegmentLength float64 `json:"segment_length"`
	SegmentCount  int     `json:"segment_count"`
}

type manifestView struct {
	Duration   float64         `json:"duration"`
	Type       string          `json:"type"`
	Renditions []renditionView `json:"renditions"`
}

func viewOf(m *manifest.Manifest) manifestView {
	v := manifestView{Duration: m.Duration, Type: m.Type}
	for _, r := range m.Renditions() {
		timing := m.Timing(r)
		v.Renditions = append(v.Renditions, renditionView{
			ID:            r.ID,
			ContentType:   string(r.ContentType()),
			MimeType:      r.Container(),
			Codecs:        r.Codecs,
			Bandwidth:     r.Bandwidth,
			Width:         r.Width,
			Height:        r.Height,
			SegmentLength: timing.SegmentLength,
			SegmentCount:  timing.SegmentCount,
		})
	}
	return v
}

// SetPlaylist handles PUT /playlist. Body: { "url": "https://cdn/x/manifest.mpd" }.
func (h *Handler) SetPlaylist(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.log.Debug("invalid playlist body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.player.SetPlaylistURL(body.URL); err != nil {
		h.writeError(w, err)
		return
	}
	m, err := h.player.LoadManifest(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(m))
}

// ListRenditions handles GET /renditions.
func (h *Handler) ListRenditions(w http.ResponseWriter, r *http.Request) {
	m, err := h.player.Manifest()
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(m))
}

// SelectTrack handles POST /tracks/{rendition}/select.
func (h *Handler) SelectTrack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "rendition")
	if id == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.player.SelectTrack(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Info("track selected", slog.String("rendition", id))
	w.WriteHeader(http.StatusNoContent)
}

// Playback handles POST /playback/{action} with action play, pause, stop or
// toggle.
func (h *Handler) Playback(w http.ResponseWriter, r *http.Request) {
	var (
		st  PlaybackState
		err error
	)
	switch chi.URLParam(r, "action") {
	case "play":
		st = h.player.Play()
	case "pause":
		st = h.player.Pause()
	case "stop":
		st, err = h.player.Stop(r.Context())
	case "toggle":
		st = h.player.Toggle()
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]PlaybackState{"state": st})
}

// UpdatePosition handles PUT /position. Body: { "time": 85.0 }.
func (h *Handler) UpdatePosition(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Time *float64 `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Time == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := h.player.UpdatePosition(r.Context(), *body.Time); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BrowseSegment handles POST /segments/{index}/browse.
func (h *Handler) BrowseSegment(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	t, err := h.player.BrowseSegment(r.Context(), index)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"time": t})
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.player.Status(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Events handles GET /events: a websocket receiving every published event as
// JSON. Clients only read; the connection ends when the client closes it.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	// Subscribed before the handshake completes so the client sees every
	// event published after its dial returns.
	ch := h.bus.Subscribe()
	defer h.bus.Unsubscribe(ch)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				h.log.Debug("event write failed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", slog.Int("status", status), slog.String("error", err.Error()))
	} else {
		h.log.Debug("request rejected", slog.Int("status", status), slog.String("error", err.Error()))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ErrUnknownRendition):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, manifest.ErrManifestParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fetch.ErrNetwork), errors.Is(err, fetch.ErrTimeout):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidURL),
		errors.Is(err, ErrInvalidPosition),
		errors.Is(err, ErrSegmentOutOfRange),
		errors.Is(err, ErrNoPlaylist),
		errors.Is(err, ErrNoManifest),
		errors.Is(err, addressor.ErrNoRenditionSelected):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
