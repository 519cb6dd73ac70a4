package subtitles

import (
	"math"
	"path/filepath"
	"strings"
	"testing"

	"subforge/internal/transcript"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{1.001, "00:00:01,001"},
		{1.9999, "00:00:01,999"},
		{0.0009, "00:00:00,000"},
		{61.5, "00:01:01,500"},
		{3661.25, "01:01:01,250"},
		{360000, "100:00:00,000"},
		{-4, "00:00:00,000"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.seconds); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := map[string]float64{
		"00:00:01,500":  1.5,
		"01:02:03.004":  3723.004,
		" 00:00:00,000": 0,
	}
	for in, want := range tests {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", in, err)
		}
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", in, got, want)
		}
	}
	for _, bad := range []string{"", "1:2", "00:00:01", "aa:00:00,000"} {
		if _, err := ParseTimestamp(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestFormatNumbersSequentiallyAndKeepsEmptyCues(t *testing.T) {
	segs := []transcript.Segment{
		{Index: 4, Start: 0, End: 1.2, Text: "Hello"},
		{Index: 9, Start: 1.2, End: 2, Text: ""},
		{Index: 11, Start: 2.5, End: 4.0004, Text: "two\n\nlines"},
	}
	file, err := Format(segs)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if len(file.Cues) != len(segs) {
		t.Fatalf("expected %d cues, got %d", len(segs), len(file.Cues))
	}
	for i, cue := range file.Cues {
		if cue.Sequence != i+1 {
			t.Errorf("cue %d numbered %d", i, cue.Sequence)
		}
	}
	want := "1\n00:00:00,000 --> 00:00:01,200\nHello\n\n" +
		"2\n00:00:01,200 --> 00:00:02,000\n\n\n" +
		"3\n00:00:02,500 --> 00:00:04,000\ntwo\nlines\n\n"
	if got := string(file.Bytes()); got != want {
		t.Fatalf("unexpected srt:\n%q\nwant:\n%q", got, want)
	}
}

func TestFormatRejectsInvalidTimes(t *testing.T) {
	for _, seg := range []transcript.Segment{
		{Start: -1, End: 1},
		{Start: math.NaN(), End: 1},
		{Start: 2, End: 1},
	} {
		if _, err := Format([]transcript.Segment{seg}); err == nil {
			t.Errorf("expected error for %+v", seg)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	segs := []transcript.Segment{
		{Index: 0, Start: 0.1234, End: 1.9876, Text: "first"},
		{Index: 1, Start: 2, End: 3, Text: ""},
		{Index: 2, Start: 2.5, End: 5.5555, Text: "overlapping\nsecond line"},
	}
	file, err := Format(segs)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	parsed, err := Parse(file.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(parsed.Cues) != len(segs) {
		t.Fatalf("expected %d cues, got %d", len(segs), len(parsed.Cues))
	}
	for i, cue := range parsed.Cues {
		seg := segs[i]
		if cue.Text != seg.Text {
			t.Errorf("cue %d text %q, want %q", i, cue.Text, seg.Text)
		}
		if seg.Start-cue.Start < 0 || seg.Start-cue.Start >= 0.001 {
			t.Errorf("cue %d start %v not within 1ms truncation of %v", i, cue.Start, seg.Start)
		}
		if seg.End-cue.End < 0 || seg.End-cue.End >= 0.001 {
			t.Errorf("cue %d end %v not within 1ms truncation of %v", i, cue.End, seg.End)
		}
	}

	reparsed := make([]transcript.Segment, len(parsed.Cues))
	for i, cue := range parsed.Cues {
		reparsed[i] = transcript.Segment{Index: i, Start: cue.Start, End: cue.End, Text: cue.Text}
	}
	again, err := Format(reparsed)
	if err != nil {
		t.Fatalf("Format again: %v", err)
	}
	if string(again.Bytes()) != string(file.Bytes()) {
		t.Fatal("formatting parsed cues should be idempotent")
	}
}

func TestParseToleratesBOMAndCRLF(t *testing.T) {
	input := "\ufeff1\r\n00:00:01.000 --> 00:00:02,000 X1:10\r\nHola\r\n\r\n\r\n2\r\n00:00:03,000 --> 00:00:04,000\r\nAdiós\r\n"
	file, err := Parse([]byte(input))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(file.Cues) != 2 {
		t.Fatalf("expected 2 cues, got %d", len(file.Cues))
	}
	if file.Cues[0].Text != "Hola" || file.Cues[1].Text != "Adiós" {
		t.Fatalf("unexpected texts %+v", file.Cues)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not a cue\n")); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Parse([]byte("1\nno timing here\ntext\n")); err == nil {
		t.Fatal("expected timing error")
	}
}

func TestWriteAndParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.srt")
	file, err := Format([]transcript.Segment{{Start: 0, End: 1, Text: "x"}})
	if err != nil {
		t.Fatal(err)
	}
	if err := file.WriteFile(path); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	parsed, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(parsed.Cues) != 1 || !strings.Contains(string(parsed.Bytes()), "00:00:01,000") {
		t.Fatalf("unexpected parsed file %+v", parsed)
	}
}
