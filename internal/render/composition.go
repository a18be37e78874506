package render

import (
	"math"
	"sort"

	"github.com/hpungsan/steno/internal/captions"
	"github.com/hpungsan/steno/internal/errors"
)

// DefaultAspectRatio and DefaultQuality apply when a request omits them.
const (
	DefaultAspectRatio = "16:9"
	DefaultQuality     = 80
)

// Dimensions is a pixel size.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// AspectRatios maps supported aspect ratios to output sizes.
var AspectRatios = map[string]Dimensions{
	"16:9": {1920, 1080},
	"9:16": {1080, 1920},
	"1:1":  {1080, 1080},
	"4:5":  {1080, 1350},
	"4:3":  {1440, 1080},
}

// AspectRatioNames returns the supported aspect ratios, sorted.
func AspectRatioNames() []string {
	names := make([]string, 0, len(AspectRatios))
	for name := range AspectRatios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseAspectRatio resolves an aspect ratio, defaulting an empty value.
func ParseAspectRatio(s string) (string, Dimensions, error) {
	if s == "" {
		s = DefaultAspectRatio
	}
	dims, ok := AspectRatios[s]
	if !ok {
		return "", Dimensions{}, errors.NewInvalidRequestf("unsupported aspectRatio %q", s)
	}
	return s, dims, nil
}

// QualityToCRF maps quality in [0,100] onto [minCRF,maxCRF]. Higher quality
// yields a lower CRF.
func QualityToCRF(quality, minCRF, maxCRF int) int {
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	span := float64(maxCRF - minCRF)
	return maxCRF - int(math.Round(float64(quality)/100*span))
}

// DurationSeconds is the render length for a document: the last caption end
// rounded up, plus one second.
func DurationSeconds(doc *captions.Document) int {
	return int(math.Ceil(doc.LastEnd())) + 1
}

// Composition describes one render target.
type Composition struct {
	JobID           string
	VideoPath       string
	OutputPath      string
	Document        *captions.Document
	Width           int
	Height          int
	FPS             int
	DurationSeconds int
	DurationFrames  int
	CRF             int
	Threads         int
}

// newComposition derives the render parameters for a job.
func newComposition(job *Job, outputPath string, opts Options) Composition {
	dims := AspectRatios[job.AspectRatio]
	seconds := DurationSeconds(job.Document)
	return Composition{
		JobID:           job.ID,
		VideoPath:       job.VideoPath,
		OutputPath:      outputPath,
		Document:        job.Document,
		Width:           dims.Width,
		Height:          dims.Height,
		FPS:             opts.FPS,
		DurationSeconds: seconds,
		DurationFrames:  seconds * opts.FPS,
		CRF:             QualityToCRF(job.Quality, opts.MinCRF, opts.MaxCRF),
		Threads:         opts.Threads,
	}
}
