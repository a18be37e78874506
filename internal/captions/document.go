package captions

import (
	"math"

	"github.com/hpungsan/steno/internal/errors"
)

// DocumentVersion is the schema version written into new documents.
const DocumentVersion = "1.0"

// Settings are the document-wide display settings.
type Settings struct {
	FontFamily      string  `json:"fontFamily" yaml:"fontFamily" toml:"font_family"`
	FontSize        float64 `json:"fontSize" yaml:"fontSize" toml:"font_size"`
	FontWeight      int     `json:"fontWeight" yaml:"fontWeight" toml:"font_weight"`
	Color           string  `json:"color" yaml:"color" toml:"color"`
	BackgroundColor string  `json:"backgroundColor" yaml:"backgroundColor" toml:"background_color"`
	// EmphasisScale multiplies the scale of emphasized words. Must be >= 1.
	EmphasisScale   float64 `json:"emphasisScale" yaml:"emphasisScale" toml:"emphasis_scale"`
	MaxCharsPerLine int     `json:"maxCharsPerLine" yaml:"maxCharsPerLine" toml:"max_chars_per_line"`
	LineHeight      float64 `json:"lineHeight" yaml:"lineHeight" toml:"line_height"`
}

// DefaultSettings returns the settings used when a document omits them.
func DefaultSettings() Settings {
	return Settings{
		FontFamily:      "Inter",
		FontSize:        48,
		FontWeight:      700,
		Color:           "#FFFFFF",
		BackgroundColor: "transparent",
		EmphasisScale:   1.2,
		MaxCharsPerLine: 32,
		LineHeight:      1.2,
	}
}

// fill replaces zero fields with defaults.
func (s *Settings) fill() {
	def := DefaultSettings()
	if s.FontFamily == "" {
		s.FontFamily = def.FontFamily
	}
	if s.FontSize == 0 {
		s.FontSize = def.FontSize
	}
	if s.FontWeight == 0 {
		s.FontWeight = def.FontWeight
	}
	if s.Color == "" {
		s.Color = def.Color
	}
	if s.BackgroundColor == "" {
		s.BackgroundColor = def.BackgroundColor
	}
	if s.EmphasisScale == 0 {
		s.EmphasisScale = def.EmphasisScale
	}
	if s.MaxCharsPerLine == 0 {
		s.MaxCharsPerLine = def.MaxCharsPerLine
	}
	if s.LineHeight == 0 {
		s.LineHeight = def.LineHeight
	}
}

// Document is the caption document owned by an editing session.
type Document struct {
	Version string `json:"version" yaml:"version"`
	// Captions keep insertion order; ids are unique within the document.
	Captions []Caption `json:"captions" yaml:"captions"`
	Settings Settings  `json:"settings" yaml:"settings"`
}

// ApplyDefaults fills missing settings and per-caption defaults in place.
func (d *Document) ApplyDefaults() {
	if d.Version == "" {
		d.Version = DocumentVersion
	}
	d.Settings.fill()
	for i := range d.Captions {
		c := &d.Captions[i]
		if c.Style == "" {
			c.Style = StyleNormal
		}
		if c.Animation == "" {
			c.Animation = AnimationScaleIn
		}
		if c.Position.Kind == "" {
			c.Position = AtPreset(PresetCenter)
		}
		if c.Emphasis == nil {
			c.Emphasis = []string{}
		}
		if c.Words == nil {
			c.Words = []Word{}
		}
	}
}

// Validate checks every document and caption invariant. The returned error
// is an INVALID_REQUEST StenoError naming the first violation.
func (d *Document) Validate() error {
	if d.Settings.FontSize <= 0 {
		return errors.NewInvalidRequest("settings.fontSize must be > 0")
	}
	if d.Settings.EmphasisScale < 1 {
		return errors.NewInvalidRequest("settings.emphasisScale must be >= 1")
	}
	if d.Settings.MaxCharsPerLine < 0 {
		return errors.NewInvalidRequest("settings.maxCharsPerLine must be >= 0")
	}

	seen := make(map[string]struct{}, len(d.Captions))
	for i := range d.Captions {
		c := &d.Captions[i]
		if c.ID == "" {
			return errors.NewInvalidRequestf("captions[%d]: id is required", i)
		}
		if _, dup := seen[c.ID]; dup {
			return errors.NewInvalidRequestf("duplicate caption id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a single caption's timing, words and enum fields.
func (c *Caption) Validate() error {
	if !finite(c.Start) || !finite(c.End) {
		return errors.NewInvalidRequestf("caption %s: times must be finite", c.ID)
	}
	if c.Start < 0 {
		return errors.NewInvalidRequestf("caption %s: start must be >= 0", c.ID)
	}
	if c.End <= c.Start {
		return errors.NewInvalidRequestf("caption %s: end (%g) must be greater than start (%g)", c.ID, c.End, c.Start)
	}
	if c.Style != "" && !c.Style.Valid() {
		return errors.NewInvalidRequestf("caption %s: unknown style %q", c.ID, c.Style)
	}
	if c.Animation != "" {
		if a, err := ParseAnimation(string(c.Animation)); err != nil || a != c.Animation {
			return errors.NewInvalidRequestf("caption %s: unknown animation %q", c.ID, c.Animation)
		}
	}
	if err := c.Position.Validate(); err != nil {
		return errors.NewInvalidRequestf("caption %s: %v", c.ID, err)
	}
	if c.MaxCharsPerLine != nil && *c.MaxCharsPerLine <= 0 {
		return errors.NewInvalidRequestf("caption %s: maxCharsPerLine must be > 0", c.ID)
	}

	prev := math.Inf(-1)
	for j, w := range c.Words {
		if !finite(w.Start) || !finite(w.End) || w.End < w.Start {
			return errors.NewInvalidRequestf("caption %s: word %d has invalid timing", c.ID, j)
		}
		if w.Start < prev {
			return errors.NewInvalidRequestf("caption %s: words must be sorted by start", c.ID)
		}
		prev = w.Start
		if w.Start < c.Start || w.End > c.End {
			return errors.NewInvalidRequestf("caption %s: word %q lies outside [%g, %g]", c.ID, w.Text, c.Start, c.End)
		}
		if w.FontSizeMultiplier < 0 {
			return errors.NewInvalidRequestf("caption %s: word %q has negative fontSizeMultiplier", c.ID, w.Text)
		}
	}
	return nil
}

// Clone returns a deep copy that shares no slices with d.
func (d *Document) Clone() *Document {
	out := &Document{Version: d.Version, Settings: d.Settings}
	if d.Captions != nil {
		out.Captions = make([]Caption, len(d.Captions))
		for i, c := range d.Captions {
			out.Captions[i] = c.clone()
		}
	}
	return out
}

// Caption returns the caption with the given id.
func (d *Document) Caption(id string) (*Caption, bool) {
	for i := range d.Captions {
		if d.Captions[i].ID == id {
			return &d.Captions[i], true
		}
	}
	return nil, false
}

// ReplaceCaption swaps in c for the caption with the same id, keeping its
// position in the document. Returns NOT_FOUND if no caption matches.
func (d *Document) ReplaceCaption(c Caption) error {
	for i := range d.Captions {
		if d.Captions[i].ID == c.ID {
			d.Captions[i] = c.clone()
			return nil
		}
	}
	return errors.NewNotFound("caption", c.ID)
}

// LastEnd returns the latest caption end time, or 0 for an empty document.
func (d *Document) LastEnd() float64 {
	var last float64
	for i := range d.Captions {
		if d.Captions[i].End > last {
			last = d.Captions[i].End
		}
	}
	return last
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
