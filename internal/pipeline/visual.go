package pipeline

import (
	"encoding/json"
	"fmt"

	"truthsig/internal/forensics"
	"truthsig/internal/fusion"
)

// MsgUnsupportedMedia explains why no visual forensics ran.
const MsgUnsupportedMedia = "Unsupported media type for visual forensics."

// Unsupported is the visual verdict for media that is neither image nor
// video.
type Unsupported struct {
	Status      forensics.Status `json:"status"`
	Explanation string           `json:"explanation"`
}

// Visual holds exactly one of the per-kind forensics results. On the wire it
// is {"type": <media type>, "results": {...}}.
type Visual struct {
	Type        MediaType
	Image       *forensics.ImageResult
	Video       *forensics.VideoResult
	Unsupported *Unsupported
}

type visualWire struct {
	Type    MediaType       `json:"type"`
	Results json.RawMessage `json:"results"`
}

func (v Visual) results() any {
	switch {
	case v.Image != nil:
		return v.Image
	case v.Video != nil:
		return v.Video
	case v.Unsupported != nil:
		return v.Unsupported
	}
	return struct{}{}
}

// MarshalJSON implements json.Marshaler.
func (v Visual) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(v.results())
	if err != nil {
		return nil, err
	}
	return json.Marshal(visualWire{Type: v.Type, Results: data})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Visual) UnmarshalJSON(data []byte) error {
	var w visualWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*v = Visual{Type: w.Type}
	if len(w.Results) == 0 {
		return nil
	}

	switch w.Type {
	case MediaImage:
		v.Image = &forensics.ImageResult{}
		return json.Unmarshal(w.Results, v.Image)
	case MediaVideo:
		v.Video = &forensics.VideoResult{}
		return json.Unmarshal(w.Results, v.Video)
	case MediaUnknown:
		v.Unsupported = &Unsupported{}
		return json.Unmarshal(w.Results, v.Unsupported)
	default:
		return fmt.Errorf("unknown visual forensics type %q", w.Type)
	}
}

// Status returns the verdict of whichever result is set.
func (v Visual) Status() forensics.Status {
	switch {
	case v.Image != nil:
		return v.Image.Status
	case v.Video != nil:
		return v.Video.Status
	case v.Unsupported != nil:
		return v.Unsupported.Status
	}
	return forensics.StatusNotAvailable
}

// Summary returns the one-sentence description of the result.
func (v Visual) Summary() string {
	switch {
	case v.Image != nil:
		return v.Image.HeatmapSummary
	case v.Video != nil:
		return v.Video.Summary
	}
	return ""
}

// Explanation returns the failure or unavailability explanation, if any.
func (v Visual) Explanation() string {
	switch {
	case v.Image != nil:
		return v.Image.Explanation
	case v.Video != nil:
		return v.Video.Explanation
	case v.Unsupported != nil:
		return v.Unsupported.Explanation
	}
	return ""
}

// FusionInput converts the verdict into the fusion engine's record. The full
// result travels along as evidence.
func (v Visual) FusionInput() *fusion.VisualForensics {
	in := &fusion.VisualForensics{
		Status:      fusion.VisualStatus(v.Status()),
		Summary:     v.Summary(),
		Explanation: v.Explanation(),
	}
	if data, err := json.Marshal(v.results()); err == nil {
		in.Evidence = data
	}
	return in
}
