package main

import (
	"log/slog"
	"net/http"

	"dash-player/internal/events"
	"dash-player/internal/fetch"
	"dash-player/internal/platform/config"
	"dash-player/internal/platform/logger"
	"dash-player/internal/platform/metrics"
	"dash-player/internal/player"
	"dash-player/internal/sink"

	"github.com/spf13/cobra"
)

var (
	envFile  string
	settings config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "dash-player",
	Short: "Headless DASH segment buffering player",
	Long: `dash-player fetches MPEG-DASH renditions the way a browser player does:
one segment at a time, a bounded window ahead of the play cursor, with seeks
and track switches rebasing the buffer.`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; the environment and defaults apply.
		_ = config.Load(envFile)
		flags := cmd.Flags()
		level, format := settings.LogLevel, settings.LogFormat
		settings = config.FromEnv()
		if flags.Changed("log-level") {
			settings.LogLevel = level
		}
		if flags.Changed("log-format") {
			settings.LogFormat = format
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load")
	rootCmd.PersistentFlags().StringVar(&settings.LogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&settings.LogFormat, "log-format", "json", "log format (json, text)")
	rootCmd.AddCommand(serveCmd, probeCmd, downloadCmd)
}

// stack is the wired set of components shared by the commands.
type stack struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	fetcher *fetch.Client
	bus     *events.Bus
	factory *sink.Factory
	player  *player.Player
}

func newStack(s config.Settings) (*stack, error) {
	log := logger.New(s.LogLevel, s.LogFormat)
	met := metrics.New()

	store, err := sink.NewLocalStorage(s.OutputDir)
	if err != nil {
		return nil, err
	}

	st := &stack{
		log:     log,
		metrics: met,
		fetcher: fetch.NewClient(&http.Client{}, fetch.Config{Timeout: s.FetchTimeout, RateLimit: s.FetchRateLimit}, log, met),
		bus:     events.NewBus(log),
		factory: sink.NewFactory(store, log),
	}
	st.player = player.New(player.Options{
		Fetcher:         st.fetcher,
		Factory:         st.factory,
		Bus:             st.bus,
		Logger:          log,
		Metrics:         met,
		LookaheadWindow: s.LookaheadWindow,
		Clock:           player.NewClock(s.TickInterval, s.PlaybackRate),
	})
	return st, nil
}
