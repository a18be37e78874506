package captions

import (
	"strings"
)

// animationCycle is the rotation applied by Stylize when varying animations.
var animationCycle = []Animation{AnimationScaleIn, AnimationFadeIn, AnimationWordByWord}

// maxEmphasis caps the number of emphasized words per caption.
const maxEmphasis = 2

// CycleAnimation returns the animation for the caption at index i.
func CycleAnimation(i int) Animation {
	if i < 0 {
		i = -i
	}
	return animationCycle[i%len(animationCycle)]
}

// SelectStyle picks a style from the caption text and its emphasis set.
func SelectStyle(c *Caption) Style {
	text := strings.TrimSpace(c.Text)
	switch {
	case strings.HasSuffix(text, "?"):
		return StyleItalic
	case strings.HasSuffix(text, "!"):
		return StyleBold
	case len(c.Words) <= 2:
		return StyleBold
	case len(c.Emphasis) >= 2:
		return StyleHighlight
	}
	return StyleNormal
}

// StylizeOptions controls Stylize.
type StylizeOptions struct {
	VaryAnimations    bool
	EmphasizeKeywords bool
}

// Stylize returns a copy of doc with emphasis, animation and style chosen
// per caption. Existing emphasis sets are kept; captions without one get
// their last word emphasized.
func Stylize(doc *Document, opts StylizeOptions) *Document {
	out := doc.Clone()
	for i := range out.Captions {
		c := &out.Captions[i]
		if opts.EmphasizeKeywords && len(c.Emphasis) == 0 {
			c.Emphasis = fallbackEmphasis(c)
		}
		if len(c.Emphasis) > maxEmphasis {
			c.Emphasis = c.Emphasis[:maxEmphasis]
		}
		if opts.VaryAnimations {
			c.Animation = CycleAnimation(i)
		}
		c.Style = SelectStyle(c)
	}
	return out
}

func fallbackEmphasis(c *Caption) []string {
	if len(c.Words) == 0 {
		return []string{}
	}
	last := strings.TrimRight(c.Words[len(c.Words)-1].Text, ".,!?")
	if last == "" {
		return []string{}
	}
	return []string{last}
}

// Theme names accepted by ThemeSettings.
const (
	ThemeDefault = "default"
	ThemeMinimal = "minimal"
	ThemeBold    = "bold"
	ThemePlayful = "playful"
)

// ThemeNames lists the known themes in display order.
var ThemeNames = []string{ThemeDefault, ThemeMinimal, ThemeBold, ThemePlayful}

// ThemeSettings returns the settings of the named theme. Unknown names fall
// back to the default theme; ok reports whether name was recognized.
func ThemeSettings(name string) (s Settings, ok bool) {
	s = DefaultSettings()
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ThemeDefault, "":
		return s, true
	case ThemeMinimal:
		s.FontFamily, s.FontSize, s.FontWeight, s.EmphasisScale, s.LineHeight = "Helvetica", 40, 400, 1.1, 1.1
		return s, true
	case ThemeBold:
		s.FontFamily, s.FontSize, s.FontWeight, s.EmphasisScale, s.LineHeight = "Impact", 56, 900, 1.3, 1.3
		return s, true
	case ThemePlayful:
		s.FontFamily, s.FontSize, s.Color, s.EmphasisScale, s.LineHeight = "Comic Sans MS", 44, "#FFFF00", 1.4, 1.4
		return s, true
	}
	return s, false
}

// ApplyTheme returns a copy of doc using the named theme's settings.
func ApplyTheme(doc *Document, name string) *Document {
	out := doc.Clone()
	out.Settings, _ = ThemeSettings(name)
	return out
}
