package manifest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMPD = `<?xml version="1.0" encoding="UTF-8"?>
<MPD xmlns="urn:mpeg:dash:schema:mpd:2011" type="static" mediaPresentationDuration="PT0H2M0.00S" minBufferTime="PT1.5S">
  <Period id="0">
    <AdaptationSet mimeType="video/mp4" segmentAlignment="true">
      <SegmentTemplate initialization="$RepresentationID$/init.mp4" media="$RepresentationID$/seg-$Number$.m4s" duration="900000" timescale="90000" startNumber="1"/>
      <Representation id="v720" codecs="avc1.4d401f" width="1280" height="720" bandwidth="3000000"/>
      <Representation id="v360" codecs="avc1.42c01e" width="640" height="360" bandwidth="800000">
        <SegmentTemplate initialization="low/init.mp4" media="low/$Number%05d$.m4s" duration="20" timescale="2"/>
      </Representation>
    </AdaptationSet>
    <AdaptationSet mimeType="audio/mp4" codecs="mp4a.40.2">
      <Representation id="a128" bandwidth="128000">
        <SegmentTemplate initialization="audio/init.mp4" media="audio/$Number$.m4s" duration="441000" timescale="44100"/>
      </Representation>
    </AdaptationSet>
  </Period>
</MPD>`

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"PT0H2M0.00S", 120},
		{"PT1H", 3600},
		{"PT1M30S", 90},
		{"PT634.566S", 634.566},
		{"PT0H0M9.5S", 9.5},
		{"P1DT1S", 86401},
		{"PT1.5M", 90},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDuration(tc.in)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestParseDuration_invalid(t *testing.T) {
	for _, in := range []string{"", "PT", "P", "2M", "PTxS", "PT1S2M", "1:00"} {
		_, err := ParseDuration(in)
		assert.ErrorIs(t, err, ErrManifestParse, "input %q", in)
	}
}

func TestParse_renditions(t *testing.T) {
	m, err := Parse(strings.NewReader(testMPD))
	require.NoError(t, err)

	assert.Equal(t, 120.0, m.Duration)
	assert.Equal(t, "static", m.Type)
	require.Len(t, m.Renditions(), 3)

	v720, ok := m.Rendition("v720")
	require.True(t, ok)
	assert.Equal(t, "avc1.4d401f", v720.Codecs)
	assert.Equal(t, "video/mp4", v720.MimeType)
	assert.Equal(t, 1280, v720.Width)
	assert.Equal(t, 720, v720.Height)
	assert.Equal(t, "$RepresentationID$/init.mp4", v720.Template.InitializationPath)
	assert.Equal(t, uint64(90000), v720.Template.Timescale)
	assert.Equal(t, 1, v720.Template.StartNumber)
	assert.Equal(t, ContentVideo, v720.ContentType())

	v360, _ := m.Rendition("v360")
	assert.Equal(t, "low/$Number%05d$.m4s", v360.Template.MediaPathPattern, "representation template overrides the set template")

	a128, _ := m.Rendition("a128")
	assert.Equal(t, "mp4a.40.2", a128.Codecs, "codecs inherited from adaptation set")
	assert.Equal(t, ContentAudio, a128.ContentType())

	assert.Len(t, m.RenditionsOf(ContentVideo), 2)
	assert.Len(t, m.RenditionsOf(ContentAudio), 1)
}

func TestManifest_Timing(t *testing.T) {
	m, err := Parse(strings.NewReader(testMPD))
	require.NoError(t, err)

	v720, _ := m.Rendition("v720")
	timing := m.Timing(v720)
	assert.Equal(t, 10.0, timing.SegmentLength)
	assert.Equal(t, 12, timing.SegmentCount)

	doc := Document{
		MPD: MPDAttributes{MediaPresentationDuration: "PT25S"},
		Renditions: []RenditionAttributes{{
			ID:              "r",
			SegmentTemplate: TemplateAttributes{Media: "$Number$.m4s", Duration: "4"},
		}},
	}
	m2, err := Build(doc)
	require.NoError(t, err)
	r, _ := m2.Rendition("r")
	assert.Equal(t, 7, m2.Timing(r).SegmentCount, "ceil(25/4)")
}

func TestBuild_errors(t *testing.T) {
	valid := RenditionAttributes{ID: "r", SegmentTemplate: TemplateAttributes{Media: "$Number$.m4s", Duration: "10"}}
	cases := map[string]Document{
		"missing duration": {Renditions: []RenditionAttributes{valid}},
		"bad duration":     {MPD: MPDAttributes{MediaPresentationDuration: "two minutes"}, Renditions: []RenditionAttributes{valid}},
		"zero duration":    {MPD: MPDAttributes{MediaPresentationDuration: "PT0S"}, Renditions: []RenditionAttributes{valid}},
		"no renditions":    {MPD: MPDAttributes{MediaPresentationDuration: "PT10S"}},
		"no template": {MPD: MPDAttributes{MediaPresentationDuration: "PT10S"},
			Renditions: []RenditionAttributes{{ID: "r"}}},
		"zero segment duration": {MPD: MPDAttributes{MediaPresentationDuration: "PT10S"},
			Renditions: []RenditionAttributes{{ID: "r", SegmentTemplate: TemplateAttributes{Media: "x", Duration: "0"}}}},
		"bad timescale": {MPD: MPDAttributes{MediaPresentationDuration: "PT10S"},
			Renditions: []RenditionAttributes{{ID: "r", SegmentTemplate: TemplateAttributes{Media: "x", Duration: "1", Timescale: "fast"}}}},
		"duplicate id": {MPD: MPDAttributes{MediaPresentationDuration: "PT10S"},
			Renditions: []RenditionAttributes{valid, valid}},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Build(doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrManifestParse), "got %v", err)
		})
	}
}

func TestParse_malformedXML(t *testing.T) {
	_, err := Parse(strings.NewReader("<MPD><Period>"))
	assert.ErrorIs(t, err, ErrManifestParse)
}

func TestRendition_Container(t *testing.T) {
	assert.Equal(t, "audio/mp4", (&Rendition{Codecs: "mp4a.40.2"}).Container())
	assert.Equal(t, "video/mp4", (&Rendition{Codecs: "avc1.64001f"}).Container())
	assert.Equal(t, "video/webm", (&Rendition{MimeType: "video/webm"}).Container())
}
