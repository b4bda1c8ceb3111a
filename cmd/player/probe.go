package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"dash-player/internal/fetch"
	"dash-player/internal/manifest"
	"dash-player/internal/pipeline"
	"dash-player/internal/platform/logger"
	"dash-player/internal/sink"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe <manifest-url>",
	Short: "List the renditions of a manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.New(settings.LogLevel, settings.LogFormat)
		client := fetch.NewClient(&http.Client{}, fetch.Config{Timeout: settings.FetchTimeout}, log, nil)
		factory := sink.NewFactory(nil, log)

		ctx, cancel := context.WithTimeout(cmd.Context(), settings.FetchTimeout+time.Second)
		defer cancel()

		data, err := client.Fetch(ctx, args[0])
		if err != nil {
			return err
		}
		m, err := manifest.Parse(bytes.NewReader(data))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "duration %.3fs, type %s\n\n", m.Duration, m.Type)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTYPE\tBANDWIDTH\tSIZE\tSEGMENTS\tSUPPORTED\tMIME")
		for _, r := range m.Renditions() {
			timing := m.Timing(r)
			mimeType := pipeline.MIMEType(r.Container(), r.Codecs)
			size := "-"
			if r.Width > 0 {
				size = fmt.Sprintf("%dx%d", r.Width, r.Height)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d x %.2fs\t%t\t%s\n",
				r.ID, r.ContentType(), r.Bandwidth, size,
				timing.SegmentCount, timing.SegmentLength,
				factory.IsTypeSupported(mimeType), mimeType)
		}
		return tw.Flush()
	},
}
