package animation

import (
	"math"

	"github.com/hpungsan/steno/internal/captions"
)

// WordFrame is the state of one word at a frame.
type WordFrame struct {
	Text     string  `json:"text"`
	Line     int     `json:"line"`
	FontSize float64 `json:"fontSize"`
	State    State   `json:"state"`
}

// CaptionFrame is an active caption sampled at a global frame.
type CaptionFrame struct {
	CaptionID string         `json:"captionId"`
	Style     captions.Style `json:"style"`
	// X and Y are percentages of the frame size.
	X             float64     `json:"x"`
	Y             float64     `json:"y"`
	ElapsedFrames int         `json:"elapsedFrames"`
	State         State       `json:"state"`
	Words         []WordFrame `json:"words"`
}

// StartFrame returns the first frame at which c is shown.
func StartFrame(c *captions.Caption, fps int) int {
	return int(math.Round(c.Start * float64(fps)))
}

// EndFrame returns the first frame after c is hidden.
func EndFrame(c *captions.Caption, fps int) int {
	return int(math.Round(c.End * float64(fps)))
}

// Sample returns every caption of doc active at frame, in document order.
func Sample(doc *captions.Document, frame int, fps int) []CaptionFrame {
	var out []CaptionFrame
	for i := range doc.Captions {
		c := &doc.Captions[i]
		start, end := StartFrame(c, fps), EndFrame(c, fps)
		if frame < start || frame >= end {
			continue
		}
		out = append(out, SampleCaption(c, frame-start, fps, doc.Settings))
	}
	return out
}

// SampleCaption computes the caption-level and per-word states of c.
func SampleCaption(c *captions.Caption, elapsed int, fps int, settings captions.Settings) CaptionFrame {
	x, y := c.Position.Resolve()
	cf := CaptionFrame{
		CaptionID:     c.ID,
		Style:         c.Style,
		X:             x,
		Y:             y,
		ElapsedFrames: elapsed,
		State:         Compute(c, elapsed, fps, nil, settings),
		Words:         make([]WordFrame, 0, len(c.Words)),
	}
	for line, words := range c.Lines(settings.MaxCharsPerLine) {
		for j := range words {
			w := &words[j]
			cf.Words = append(cf.Words, WordFrame{
				Text:     w.Text,
				Line:     line,
				FontSize: settings.FontSize * w.FontSizeMultiplier,
				State:    Compute(c, elapsed, fps, w, settings),
			})
		}
	}
	return cf
}
