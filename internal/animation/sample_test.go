package animation

import (
	"testing"

	"github.com/hpungsan/steno/internal/captions"
)

func TestSample(t *testing.T) {
	first := helloWorld(captions.AnimationFadeIn)
	second := captions.Caption{
		ID: "c2", Text: "Later", Start: 3.0, End: 4.0,
		Words:     []captions.Word{{Text: "Later", Start: 3.0, End: 4.0, FontSizeMultiplier: 1}},
		Animation: captions.AnimationNone,
		Position:  captions.At(20, 30),
	}
	doc := &captions.Document{Captions: []captions.Caption{*first, second}}
	doc.ApplyDefaults()

	if got := Sample(doc, 0, fps); len(got) != 0 {
		t.Fatalf("frame 0 active = %d, want 0", len(got))
	}

	got := Sample(doc, 36, fps)
	if len(got) != 1 {
		t.Fatalf("frame 36 active = %d, want 1", len(got))
	}
	cf := got[0]
	if cf.CaptionID != "c1" || cf.ElapsedFrames != 6 {
		t.Errorf("caption frame = %s elapsed %d", cf.CaptionID, cf.ElapsedFrames)
	}
	if cf.X != 50 || cf.Y != 85 {
		t.Errorf("position = (%v,%v), want bottom (50,85)", cf.X, cf.Y)
	}
	if len(cf.Words) != 2 {
		t.Fatalf("words = %d, want 2", len(cf.Words))
	}
	if cf.Words[1].FontSize != 72 {
		t.Errorf("word font size = %v, want 48*1.5", cf.Words[1].FontSize)
	}
	if cf.Words[1].State.Color != EmphasisColor {
		t.Errorf("emphasized word color = %q", cf.Words[1].State.Color)
	}

	// End is exclusive: c1 hides and c2 shows at frame 90.
	got = Sample(doc, 90, fps)
	if len(got) != 1 || got[0].CaptionID != "c2" {
		t.Fatalf("frame 90 = %+v, want only c2", got)
	}
	if got[0].X != 20 || got[0].Y != 30 {
		t.Errorf("c2 position = (%v,%v)", got[0].X, got[0].Y)
	}
}

func TestSampleLines(t *testing.T) {
	c := helloWorld(captions.AnimationNone)
	c.Words[1].LineBreakBefore = true
	cf := SampleCaption(c, 0, fps, captions.DefaultSettings())
	if cf.Words[0].Line != 0 || cf.Words[1].Line != 1 {
		t.Errorf("lines = %d, %d, want 0, 1", cf.Words[0].Line, cf.Words[1].Line)
	}
}

func TestSampleLines_WrapsLongCaption(t *testing.T) {
	c := captions.Caption{ID: "long", Text: "one two three four five six seven eight", Start: 0, End: 4, Animation: captions.AnimationNone}
	c.Words = captions.SpreadWords(c.Text, c.Start, c.End)
	settings := captions.DefaultSettings()
	settings.MaxCharsPerLine = 10

	cf := SampleCaption(&c, 0, fps, settings)
	last := cf.Words[len(cf.Words)-1].Line
	if last < 2 {
		t.Fatalf("last word on line %d, want wrapping onto at least 3 lines", last)
	}
	for i := 1; i < len(cf.Words); i++ {
		if cf.Words[i].Line < cf.Words[i-1].Line {
			t.Errorf("line numbers decrease at word %d", i)
		}
	}

	limit := 100
	c.MaxCharsPerLine = &limit
	cf = SampleCaption(&c, 0, fps, settings)
	if got := cf.Words[len(cf.Words)-1].Line; got != 0 {
		t.Errorf("caption limit 100: last word on line %d, want 0", got)
	}
}
