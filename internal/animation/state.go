// Package animation computes the visual state of captions at a frame.
//
// Everything here is a pure function of its inputs: the live preview and the
// render engine both sample the same functions and must agree frame for
// frame.
package animation

import (
	"math"

	"github.com/hpungsan/steno/internal/captions"
)

const (
	// FadeInFrames is the length of the fade-in animation.
	FadeInFrames = 15
	// ScaleInOpacityFrames is the opacity ramp of the scale-in animation.
	ScaleInOpacityFrames = 8
	// TypewriterCharsPerFrame is the typewriter reveal rate.
	TypewriterCharsPerFrame = 0.5
	// CursorBlinkFrames is the typewriter cursor half-period.
	CursorBlinkFrames = 15

	// EmphasisColor and EmphasisWeight override emphasized words.
	EmphasisColor  = "#FFD700"
	EmphasisWeight = 900

	translateFrom = 20.0
)

// State is the visual state of a caption, or of one of its words, at a frame.
type State struct {
	Opacity    float64 `json:"opacity"`
	Scale      float64 `json:"scale"`
	TranslateY float64 `json:"translateY"`
	// Color and FontWeight are set only when they override the settings.
	Color      string `json:"color,omitempty"`
	FontWeight int    `json:"fontWeight,omitempty"`
	// VisibleText and Cursor are used by the typewriter animation.
	VisibleText string `json:"visibleText,omitempty"`
	Cursor      bool   `json:"cursor,omitempty"`
}

// Rest is the fully shown state.
var Rest = State{Opacity: 1, Scale: 1}

// Compute returns the state of c, elapsedFrames after the caption starts.
// When word is non-nil the state is for that word and emphasis applies.
func Compute(c *captions.Caption, elapsedFrames int, fps int, word *captions.Word, settings captions.Settings) State {
	var s State
	switch c.Animation {
	case captions.AnimationFadeIn:
		p := progress(elapsedFrames, FadeInFrames)
		s = State{Opacity: p, Scale: 1, TranslateY: translateFrom * (1 - p)}
	case captions.AnimationScaleIn:
		sp := Spring(elapsedFrames, fps, ScaleInSpring)
		s = State{Opacity: progress(elapsedFrames, ScaleInOpacityFrames), Scale: 0.8 + 0.2*sp}
	case captions.AnimationWordByWord:
		s = wordByWord(c, elapsedFrames, fps, word)
	case captions.AnimationTypewriter:
		s = typewriter(c.Text, elapsedFrames)
	default:
		s = Rest
	}

	if word != nil && c.IsEmphasized(word.Text) {
		scale := settings.EmphasisScale
		if scale < 1 {
			scale = 1
		}
		s.Scale *= scale
		s.Color = EmphasisColor
		s.FontWeight = EmphasisWeight
	}
	return s
}

// WordOffset returns the frame at which word starts relative to its caption.
func WordOffset(c *captions.Caption, word *captions.Word, fps int) int {
	return int(math.Round((word.Start - c.Start) * float64(fps)))
}

func wordByWord(c *captions.Caption, elapsed, fps int, word *captions.Word) State {
	local := elapsed
	if word != nil {
		local = elapsed - WordOffset(c, word, fps)
	}
	if local < 0 {
		return State{Opacity: 0, Scale: 0.5, TranslateY: translateFrom}
	}
	sp := Spring(local, fps, WordSpring)
	return State{Opacity: sp, Scale: 0.5 + 0.5*sp, TranslateY: translateFrom * (1 - sp)}
}

func typewriter(text string, elapsed int) State {
	runes := []rune(text)
	n := 0
	if elapsed > 0 {
		n = int(math.Floor(float64(elapsed) * TypewriterCharsPerFrame))
	}
	if n > len(runes) {
		n = len(runes)
	}
	s := Rest
	s.VisibleText = string(runes[:n])
	if n < len(runes) {
		s.Cursor = elapsed < 0 || (elapsed/CursorBlinkFrames)%2 == 0
	}
	return s
}

// progress is frames/total clamped to [0,1].
func progress(frames, total int) float64 {
	if total <= 0 {
		return 1
	}
	return clamp01(float64(frames) / float64(total))
}
