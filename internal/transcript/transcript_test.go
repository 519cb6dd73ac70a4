package transcript

import (
	"math"
	"testing"
)

func TestNormalizeOrdersAndReindexes(t *testing.T) {
	input := []Segment{
		{Index: 7, Start: 4, End: 6, Text: " later "},
		{Index: 3, Start: 1, End: 0.5, Text: "clamped"},
		{Index: 9, Start: 1, End: 2, Text: "same start keeps order"},
		{Index: 1, Start: math.NaN(), End: 2, Text: "dropped"},
		{Index: 2, Start: -1, End: 0.2, Text: ""},
	}
	got := Normalize(input)
	if len(got) != 4 {
		t.Fatalf("expected 4 segments, got %d", len(got))
	}
	wantText := []string{"", "clamped", "same start keeps order", "later"}
	for i, seg := range got {
		if seg.Index != i {
			t.Errorf("segment %d has index %d", i, seg.Index)
		}
		if seg.Text != wantText[i] {
			t.Errorf("segment %d text = %q, want %q", i, seg.Text, wantText[i])
		}
		if seg.End < seg.Start {
			t.Errorf("segment %d end before start", i)
		}
	}
	if got[0].Start != 0 {
		t.Errorf("negative start not clamped: %v", got[0].Start)
	}
	if got[1].End != 1 {
		t.Errorf("end not clamped to start: %v", got[1].End)
	}
	if err := Validate(got); err != nil {
		t.Fatalf("normalized segments failed validation: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		segs []Segment
	}{
		{name: "gap in index", segs: []Segment{{Index: 0, Start: 0, End: 1}, {Index: 2, Start: 1, End: 2}}},
		{name: "end before start", segs: []Segment{{Index: 0, Start: 2, End: 1}}},
		{name: "out of order", segs: []Segment{{Index: 0, Start: 5, End: 6}, {Index: 1, Start: 1, End: 2}}},
		{name: "negative", segs: []Segment{{Index: 0, Start: -1, End: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.segs); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateAllowsOverlap(t *testing.T) {
	segs := []Segment{{Index: 0, Start: 0, End: 3}, {Index: 1, Start: 2, End: 4}}
	if err := Validate(segs); err != nil {
		t.Fatalf("overlap should be permitted: %v", err)
	}
}

func TestJoinText(t *testing.T) {
	segs := []Segment{{Text: "Hello"}, {Text: "  "}, {Text: "world"}}
	if got := JoinText(segs); got != "Hello world" {
		t.Fatalf("JoinText = %q", got)
	}
}
