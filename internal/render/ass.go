package render

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/hpungsan/steno/internal/animation"
	"github.com/hpungsan/steno/internal/captions"
)

// referenceHeight is the frame height settings font sizes are authored for.
const referenceHeight = 1080.0

var assEscaper = strings.NewReplacer(`{`, `(`, `}`, `)`, `\`, `/`, "\n", " ")

// writeASS writes an Advanced SubStation overlay for comp. Each caption is
// sampled frame by frame through the animation engine; consecutive frames
// with identical output are merged into one event.
func writeASS(w io.Writer, comp Composition) error {
	bw := bufio.NewWriter(w)
	doc := comp.Document
	s := doc.Settings
	factor := float64(min(comp.Width, comp.Height)) / referenceHeight

	fmt.Fprintf(bw, "[Script Info]\nScriptType: v4.00+\nPlayResX: %d\nPlayResY: %d\nWrapStyle: 2\nScaledBorderAndShadow: yes\n\n", comp.Width, comp.Height)
	fmt.Fprint(bw, "[V4+ Styles]\nFormat: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(bw, "Style: Default,%s,%d,%s,%s,&H00000000,&H80000000,%d,0,0,0,100,100,0,0,1,2,0,5,0,0,0,1\n\n",
		s.FontFamily, int(math.Round(s.FontSize*factor)), assColor(s.Color), assColor(s.Color), assBold(s.FontWeight))
	fmt.Fprint(bw, "[Events]\nFormat: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for i := range doc.Captions {
		c := &doc.Captions[i]
		start := animation.StartFrame(c, comp.FPS)
		end := min(animation.EndFrame(c, comp.FPS), comp.DurationFrames)

		runStart, runText := start, ""
		flush := func(until int) {
			if runText != "" && until > runStart {
				fmt.Fprintf(bw, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
					assTime(runStart, comp.FPS), assTime(until, comp.FPS), runText)
			}
		}
		for f := start; f < end; f++ {
			cf := animation.SampleCaption(c, f-start, comp.FPS, s)
			text := dialogueText(c, cf, s, comp, factor)
			if text != runText {
				flush(f)
				runStart, runText = f, text
			}
		}
		flush(end)
	}
	return bw.Flush()
}

// dialogueText renders one sampled caption frame as ASS override tags.
func dialogueText(c *captions.Caption, cf animation.CaptionFrame, s captions.Settings, comp Composition, factor float64) string {
	var b strings.Builder
	x := cf.X / 100 * float64(comp.Width)
	y := cf.Y/100*float64(comp.Height) + cf.State.TranslateY*factor
	fmt.Fprintf(&b, `{\an5\pos(%.1f,%.1f)`, x, y)
	switch c.Style {
	case captions.StyleItalic:
		b.WriteString(`\i1`)
	case captions.StyleBold:
		b.WriteString(`\b1`)
	case captions.StyleHighlight:
		b.WriteString(`\bord6\3c&H00000000&`)
	}
	b.WriteString("}")

	if c.Animation == captions.AnimationTypewriter {
		fmt.Fprintf(&b, `{\alpha%s}%s`, assAlpha(cf.State.Opacity), assEscaper.Replace(cf.State.VisibleText))
		if cf.State.Cursor {
			b.WriteString("|")
		}
		return b.String()
	}

	if len(cf.Words) == 0 {
		fmt.Fprintf(&b, `{\alpha%s\fscx%d\fscy%d}%s`, assAlpha(cf.State.Opacity),
			percent(cf.State.Scale), percent(cf.State.Scale), assEscaper.Replace(c.Text))
		return b.String()
	}

	line := 0
	for i, w := range cf.Words {
		if i > 0 {
			if w.Line != line {
				b.WriteString(`\N`)
				line = w.Line
			} else {
				b.WriteString(" ")
			}
		}
		color, weight := s.Color, s.FontWeight
		if w.State.Color != "" {
			color = w.State.Color
		}
		if w.State.FontWeight != 0 {
			weight = w.State.FontWeight
		}
		fmt.Fprintf(&b, `{\alpha%s\fscx%d\fscy%d\fs%d\c%s\b%d}%s`,
			assAlpha(w.State.Opacity), percent(w.State.Scale), percent(w.State.Scale),
			int(math.Round(w.FontSize*factor)), assColor(color), boolInt(assBold(weight) != 0 || c.Style == captions.StyleBold),
			assEscaper.Replace(w.Text))
	}
	return b.String()
}

// assTime formats a frame index as h:mm:ss.cc.
func assTime(frame, fps int) string {
	cs := int(math.Round(float64(frame) * 100 / float64(fps)))
	h := cs / 360000
	m := (cs / 6000) % 60
	sec := (cs / 100) % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, sec, cs%100)
}

// assColor converts #RRGGBB to &H00BBGGRR&. Unparseable values map to white.
func assColor(hex string) string {
	hex = strings.TrimPrefix(hex, "#")
	var r, g, b int
	if len(hex) != 6 {
		return "&H00FFFFFF&"
	}
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		return "&H00FFFFFF&"
	}
	return fmt.Sprintf("&H00%02X%02X%02X&", b, g, r)
}

// assAlpha converts opacity to an ASS alpha tag value (00 opaque, FF hidden).
func assAlpha(opacity float64) string {
	a := int(math.Round((1 - clampUnit(opacity)) * 255))
	return fmt.Sprintf("&H%02X&", a)
}

func assBold(weight int) int {
	if weight >= 600 {
		return -1
	}
	return 0
}

func percent(scale float64) int {
	return int(math.Round(scale * 100))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
