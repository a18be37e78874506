package captions

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Style is the visual style of a caption.
type Style string

const (
	StyleNormal    Style = "normal"
	StyleBold      Style = "bold"
	StyleItalic    Style = "italic"
	StyleHighlight Style = "highlight"
)

// Valid reports whether s is a known style.
func (s Style) Valid() bool {
	switch s {
	case StyleNormal, StyleBold, StyleItalic, StyleHighlight:
		return true
	}
	return false
}

// Animation is the entrance animation variant of a caption.
type Animation string

const (
	AnimationNone       Animation = "none"
	AnimationFadeIn     Animation = "fade-in"
	AnimationScaleIn    Animation = "scale-in"
	AnimationWordByWord Animation = "word-by-word"
	AnimationTypewriter Animation = "typewriter"
)

// ParseAnimation accepts the kebab-case wire form as well as camelCase and
// snake_case spellings ("fadeIn", "word_by_word").
func ParseAnimation(s string) (Animation, error) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.TrimSpace(s)))
	switch key {
	case "none":
		return AnimationNone, nil
	case "fadein":
		return AnimationFadeIn, nil
	case "scalein":
		return AnimationScaleIn, nil
	case "wordbyword":
		return AnimationWordByWord, nil
	case "typewriter":
		return AnimationTypewriter, nil
	case "":
		return "", nil
	}
	return "", fmt.Errorf("unknown animation %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Animation) UnmarshalText(text []byte) error {
	parsed, err := ParseAnimation(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Word is a single timed word within a caption.
type Word struct {
	Text  string  `json:"text" yaml:"text"`
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	// FontSizeMultiplier scales the base font size for this word. Defaults to 1.
	FontSizeMultiplier float64 `json:"fontSizeMultiplier" yaml:"fontSizeMultiplier"`
	// LineBreakBefore starts a new visual line immediately before this word.
	LineBreakBefore bool `json:"lineBreakBefore,omitempty" yaml:"lineBreakBefore,omitempty"`
}

type wordAlias Word

// UnmarshalJSON fills FontSizeMultiplier with 1 when the field is absent.
func (w *Word) UnmarshalJSON(data []byte) error {
	aux := wordAlias{FontSizeMultiplier: 1}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*w = Word(aux)
	return nil
}

// UnmarshalYAML fills FontSizeMultiplier with 1 when the field is absent.
func (w *Word) UnmarshalYAML(node *yaml.Node) error {
	aux := wordAlias{FontSizeMultiplier: 1}
	if err := node.Decode(&aux); err != nil {
		return err
	}
	*w = Word(aux)
	return nil
}

// Caption is a timed phrase segment with word-level sub-timing.
type Caption struct {
	ID    string  `json:"id" yaml:"id"`
	Text  string  `json:"text" yaml:"text"`
	Start float64 `json:"start" yaml:"start"`
	End   float64 `json:"end" yaml:"end"`
	// Words are sorted by Start and lie within [Start, End].
	Words []Word `json:"words" yaml:"words"`
	// Emphasis holds words flagged for highlighting; compared after NormalizeWord.
	Emphasis        []string  `json:"emphasis" yaml:"emphasis,omitempty"`
	Style           Style     `json:"style" yaml:"style,omitempty"`
	Animation       Animation `json:"animation" yaml:"animation,omitempty"`
	Position        Position  `json:"position" yaml:"position,omitempty"`
	MaxCharsPerLine *int      `json:"maxCharsPerLine,omitempty" yaml:"maxCharsPerLine,omitempty"`
}

// Duration returns End - Start in seconds.
func (c *Caption) Duration() float64 {
	return c.End - c.Start
}

// Overlaps reports whether two captions share more than epsilon seconds.
func (c *Caption) Overlaps(other *Caption, epsilon float64) bool {
	return c.Start < other.End-epsilon && other.Start < c.End-epsilon
}

// IsEmphasized reports whether word matches an entry of the emphasis set
// after normalization on both sides.
func (c *Caption) IsEmphasized(word string) bool {
	norm := NormalizeWord(word)
	if norm == "" {
		return false
	}
	for _, e := range c.Emphasis {
		if NormalizeWord(e) == norm {
			return true
		}
	}
	return false
}

// Lines groups words into visual lines. A new line starts immediately before
// any word flagged LineBreakBefore, and wherever a line would exceed the
// caption's MaxCharsPerLine, or fallbackMaxChars when the caption sets none.
// Timing is unaffected.
func (c *Caption) Lines(fallbackMaxChars int) [][]Word {
	if len(c.Words) == 0 {
		return nil
	}
	limit := fallbackMaxChars
	if c.MaxCharsPerLine != nil {
		limit = *c.MaxCharsPerLine
	}
	var lines [][]Word
	var current []Word
	for _, w := range BreakLines(c.Words, limit) {
		if w.LineBreakBefore && len(current) > 0 {
			lines = append(lines, current)
			current = nil
		}
		current = append(current, w)
	}
	return append(lines, current)
}

// clone returns a deep copy of the caption.
func (c Caption) clone() Caption {
	out := c
	if c.Words != nil {
		out.Words = append([]Word(nil), c.Words...)
	}
	if c.Emphasis != nil {
		out.Emphasis = append([]string(nil), c.Emphasis...)
	}
	if c.MaxCharsPerLine != nil {
		v := *c.MaxCharsPerLine
		out.MaxCharsPerLine = &v
	}
	return out
}
