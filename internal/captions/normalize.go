package captions

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// NormalizeWord folds case and strips punctuation so that "World." and
// "world" compare equal. A Caser holds state, so one is built per call.
func NormalizeWord(s string) string {
	folded := cases.Fold().String(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded)
}

// SplitWords splits caption text into whitespace-separated tokens.
func SplitWords(text string) []string {
	return strings.Fields(text)
}

// BreakLines returns a copy of words with LineBreakBefore set wherever the
// running line would exceed maxChars. Existing breaks are kept. A
// non-positive maxChars returns the words unchanged.
func BreakLines(words []Word, maxChars int) []Word {
	out := append([]Word(nil), words...)
	if maxChars <= 0 {
		return out
	}
	lineLen := 0
	for i := range out {
		n := len([]rune(out[i].Text))
		if out[i].LineBreakBefore {
			lineLen = n
			continue
		}
		if lineLen > 0 && lineLen+1+n > maxChars {
			out[i].LineBreakBefore = true
			lineLen = n
			continue
		}
		if lineLen > 0 {
			lineLen++
		}
		lineLen += n
	}
	return out
}

// SpreadWords splits text into words and divides [start, end] evenly among
// them. Inner boundaries are rounded to milliseconds.
func SpreadWords(text string, start, end float64) []Word {
	tokens := SplitWords(text)
	out := make([]Word, len(tokens))
	if len(tokens) == 0 {
		return out
	}
	step := (end - start) / float64(len(tokens))
	for i, tok := range tokens {
		out[i] = Word{
			Text:               tok,
			Start:              roundMillis(start + step*float64(i)),
			End:                roundMillis(start + step*float64(i+1)),
			FontSizeMultiplier: 1,
		}
	}
	out[0].Start = start
	out[len(out)-1].End = end
	return out
}

func roundMillis(v float64) float64 {
	return math.Round(v*1000) / 1000
}
