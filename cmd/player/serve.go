package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dash-player/internal/platform/config"
	"dash-player/internal/platform/logger"
	"dash-player/internal/platform/metrics"
	"dash-player/internal/player"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var serveOpts struct {
	port     string
	playlist string
	tracks   []string
	play     bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the player with its HTTP control API",
	Long: `Run the player and serve the control API. With PLAYLIST_URL set (or
--playlist) the manifest is loaded at startup and --track selects renditions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			settings.Port = serveOpts.port
		}
		if cmd.Flags().Changed("playlist") {
			settings.PlaylistURL = serveOpts.playlist
		}
		return serve(settings)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveOpts.port, "port", "p", "8080", "HTTP listen port")
	serveCmd.Flags().StringVar(&serveOpts.playlist, "playlist", "", "manifest URL to load at startup")
	serveCmd.Flags().StringSliceVarP(&serveOpts.tracks, "track", "t", nil, "rendition ids to select at startup")
	serveCmd.Flags().BoolVar(&serveOpts.play, "play", false, "start playing after startup")
}

func serve(s config.Settings) error {
	st, err := newStack(s)
	if err != nil {
		return err
	}
	log := st.log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := make(chan error, 1)
	go func() { runErr <- st.player.Run(ctx) }()

	if s.PlaylistURL != "" {
		if err := startup(ctx, st.player, s.PlaylistURL, log); err != nil {
			return err
		}
	}

	h := player.NewHandler(st.player, st.bus, log)
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(st.metrics))
	r.Get("/metrics", st.metrics.Handler(nil).ServeHTTP)
	h.Register(r)

	srv := &http.Server{Addr: ":" + s.Port, Handler: r}
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	log.Info("server starting",
		slog.String("port", s.Port),
		slog.Int("lookahead_window", s.LookaheadWindow),
		slog.String("log_level", s.LogLevel),
		slog.String("output_dir", s.OutputDir),
	)

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, draining connections")
	case err := <-srvErr:
		log.Error("server error", slog.String("error", err.Error()))
		return err
	case err := <-runErr:
		if err != nil {
			log.Error("player stopped", slog.String("error", err.Error()))
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
		return err
	}
	log.Info("server stopped")
	return nil
}

func startup(ctx context.Context, p *player.Player, playlistURL string, log *slog.Logger) error {
	if err := p.SetPlaylistURL(playlistURL); err != nil {
		return err
	}
	if _, err := p.LoadManifest(ctx); err != nil {
		return err
	}
	for _, id := range serveOpts.tracks {
		if err := p.SelectTrack(ctx, id); err != nil {
			return err
		}
	}
	if serveOpts.play {
		p.Play()
	}
	log.Info("startup playlist loaded", slog.String("url", playlistURL), slog.Any("tracks", serveOpts.tracks))
	return nil
}
