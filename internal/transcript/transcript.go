package transcript

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Segment is one time-coded span of speech. Times are seconds from the start
// of the media.
type Segment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the speech-to-text result for one job.
type Transcript struct {
	FullText       string    `json:"fullText"`
	Segments       []Segment `json:"segments"`
	SourceLanguage string    `json:"sourceLanguage"`
}

// Translated is a transcript rendered into the target language. Segments has
// the same length and index alignment as the source transcript.
type Translated struct {
	FullText       string    `json:"fullText"`
	Segments       []Segment `json:"segments"`
	TargetLanguage string    `json:"targetLanguage"`
	// FallbackSegments lists indexes that kept their source text after a
	// translation failure.
	FallbackSegments []int `json:"fallbackSegments,omitempty"`
}

// Normalize returns segments sorted by start (stable), with indexes rewritten to
// be contiguous from zero, text trimmed, negative starts clamped to zero, and
// any end earlier than its start clamped to the start. Segments with NaN or
// infinite times are dropped.
func Normalize(segments []Segment) []Segment {
	out := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if !finite(seg.Start) || !finite(seg.End) {
			continue
		}
		if seg.Start < 0 {
			seg.Start = 0
		}
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		seg.Text = strings.TrimSpace(seg.Text)
		out = append(out, seg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := range out {
		out[i].Index = i
	}
	return out
}

// Validate checks the ordering and timing invariants Normalize establishes.
func Validate(segments []Segment) error {
	for i, seg := range segments {
		if seg.Index != i {
			return fmt.Errorf("segment %d: index %d is not contiguous", i, seg.Index)
		}
		if !finite(seg.Start) || !finite(seg.End) {
			return fmt.Errorf("segment %d: non-finite time", i)
		}
		if seg.Start < 0 {
			return fmt.Errorf("segment %d: negative start %.3f", i, seg.Start)
		}
		if seg.End < seg.Start {
			return fmt.Errorf("segment %d: end %.3f before start %.3f", i, seg.End, seg.Start)
		}
		if i > 0 && seg.Start < segments[i-1].Start {
			return fmt.Errorf("segment %d: start %.3f before previous start %.3f", i, seg.Start, segments[i-1].Start)
		}
	}
	return nil
}

// JoinText joins segment texts with single spaces, skipping empty ones.
func JoinText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if text := strings.TrimSpace(seg.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
