package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"dash-player/internal/engine"
	"dash-player/internal/events"
	"dash-player/internal/manifest"

	"github.com/spf13/cobra"
)

var downloadOpts struct {
	video string
	audio string
	out   string
	rate  float64
}

var downloadCmd = &cobra.Command{
	Use:   "download <manifest-url>",
	Short: "Play a presentation headless and keep every buffered unit",
	Long: `Play the presentation on the internal clock and write every unit the
buffers consume under the output directory, one directory per buffer. The
first video and audio renditions are used unless --video or --audio is given;
pass "none" to skip one. Keep the rate low enough that one tick advances less
than one segment, or the cursor jumps are treated as seeks.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("out") {
			settings.OutputDir = downloadOpts.out
		}
		if flags.Changed("rate") {
			settings.PlaybackRate = downloadOpts.rate
		}
		return download(cmd, args[0])
	},
}

func init() {
	downloadCmd.Flags().StringVar(&downloadOpts.video, "video", "", "video rendition id")
	downloadCmd.Flags().StringVar(&downloadOpts.audio, "audio", "", "audio rendition id")
	downloadCmd.Flags().StringVarP(&downloadOpts.out, "out", "o", "./data/buffers", "output directory")
	downloadCmd.Flags().Float64Var(&downloadOpts.rate, "rate", 1, "playback rate")
}

func download(cmd *cobra.Command, playlistURL string) error {
	st, err := newStack(settings)
	if err != nil {
		return err
	}
	p := st.player

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := st.bus.Subscribe(events.BufferProgressChanged, events.SessionError)
	defer st.bus.Unsubscribe(progress)

	runErr := make(chan error, 1)
	go func() { runErr <- p.Run(ctx) }()

	if err := p.SetPlaylistURL(playlistURL); err != nil {
		return err
	}
	m, err := p.LoadManifest(ctx)
	if err != nil {
		return err
	}

	selected := map[manifest.ContentType]bool{}
	for ct, id := range map[manifest.ContentType]string{
		manifest.ContentVideo: pick(m, manifest.ContentVideo, downloadOpts.video),
		manifest.ContentAudio: pick(m, manifest.ContentAudio, downloadOpts.audio),
	} {
		if id == "" {
			continue
		}
		if err := p.SelectTrack(ctx, id); err != nil {
			return fmt.Errorf("select %s: %w", id, err)
		}
		selected[ct] = true
	}
	if len(selected) == 0 {
		return errors.New("no rendition to download")
	}
	p.Play()

	ended := map[manifest.ContentType]bool{}
	for len(ended) < len(selected) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-runErr:
			if err == nil {
				err = context.Canceled
			}
			return err
		case ev := <-progress:
			switch payload := ev.Payload.(type) {
			case events.Failure:
				return fmt.Errorf("%s rendition %s failed at segment %d: %s",
					payload.ContentType, payload.RenditionID, payload.Segment, payload.Error)
			case engine.Status:
				if payload.State == engine.StateEnded && payload.Error == "" {
					ended[payload.ContentType] = true
				}
			}
		}
	}
	p.Pause()
	cancel()
	if err := <-runErr; err != nil {
		st.log.Warn("player stopped with error", slog.String("error", err.Error()))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	for _, b := range st.factory.Buffers() {
		if err := enc.Encode(b.Stats()); err != nil {
			return err
		}
	}
	return nil
}

// pick returns id, or the first rendition of ct when id is empty.
func pick(m *manifest.Manifest, ct manifest.ContentType, id string) string {
	switch id {
	case "none":
		return ""
	case "":
		if rs := m.RenditionsOf(ct); len(rs) > 0 {
			return rs[0].ID
		}
		return ""
	}
	return id
}
