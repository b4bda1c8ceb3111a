package manifest

import (
	"encoding/xml"
	"io"
)

type mpdXML struct {
	XMLName                   xml.Name    `xml:"MPD"`
	Type                      string      `xml:"type,attr"`
	MediaPresentationDuration string      `xml:"mediaPresentationDuration,attr"`
	Periods                   []periodXML `xml:"Period"`
}

type periodXML struct {
	Duration       string             `xml:"duration,attr"`
	AdaptationSets []adaptationSetXML `xml:"AdaptationSet"`
}

type adaptationSetXML struct {
	MimeType        string              `xml:"mimeType,attr"`
	ContentType     string              `xml:"contentType,attr"`
	Codecs          string              `xml:"codecs,attr"`
	SegmentTemplate *segmentTemplateXML `xml:"SegmentTemplate"`
	Representations []representationXML `xml:"Representation"`
}

type representationXML struct {
	ID              string              `xml:"id,attr"`
	MimeType        string              `xml:"mimeType,attr"`
	Codecs          string              `xml:"codecs,attr"`
	Width           string              `xml:"width,attr"`
	Height          string              `xml:"height,attr"`
	Bandwidth       string              `xml:"bandwidth,attr"`
	SegmentTemplate *segmentTemplateXML `xml:"SegmentTemplate"`
}

type segmentTemplateXML struct {
	Initialization string `xml:"initialization,attr"`
	Media          string `xml:"media,attr"`
	Duration       string `xml:"duration,attr"`
	Timescale      string `xml:"timescale,attr"`
	StartNumber    string `xml:"startNumber,attr"`
}

// Parse decodes an MPD document and builds the Manifest it describes.
func Parse(r io.Reader) (*Manifest, error) {
	doc, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return Build(doc)
}

// Decode reads MPD XML into its attribute-level Document. Only the first
// Period is considered. A SegmentTemplate on the AdaptationSet applies to
// every Representation that does not carry its own; mime type and codecs are
// inherited the same way.
func Decode(r io.Reader) (Document, error) {
	var mpd mpdXML
	if err := xml.NewDecoder(r).Decode(&mpd); err != nil {
		return Document{}, parseErrorf("decode MPD: %v", err)
	}

	doc := Document{
		MPD: MPDAttributes{
			MediaPresentationDuration: mpd.MediaPresentationDuration,
			Type:                      mpd.Type,
		},
	}
	if len(mpd.Periods) == 0 {
		return doc, nil
	}

	period := mpd.Periods[0]
	if doc.MPD.MediaPresentationDuration == "" {
		doc.MPD.MediaPresentationDuration = period.Duration
	}

	for _, set := range period.AdaptationSets {
		for _, rep := range set.Representations {
			tmpl := rep.SegmentTemplate
			if tmpl == nil {
				tmpl = set.SegmentTemplate
			}
			ra := RenditionAttributes{
				ID:        rep.ID,
				Codecs:    firstNonEmpty(rep.Codecs, set.Codecs),
				MimeType:  firstNonEmpty(rep.MimeType, set.MimeType),
				Width:     rep.Width,
				Height:    rep.Height,
				Bandwidth: rep.Bandwidth,
			}
			if ra.MimeType == "" && set.ContentType != "" {
				ra.MimeType = set.ContentType + "/mp4"
			}
			if tmpl != nil {
				ra.SegmentTemplate = TemplateAttributes{
					Initialization: tmpl.Initialization,
					Media:          tmpl.Media,
					Duration:       tmpl.Duration,
					Timescale:      tmpl.Timescale,
					StartNumber:    tmpl.StartNumber,
				}
			}
			doc.Renditions = append(doc.Renditions, ra)
		}
	}
	return doc, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
