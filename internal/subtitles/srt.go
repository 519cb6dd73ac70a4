package subtitles

import (
	"bufio"
	"bytes"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"subforge/internal/transcript"
)

// Cue is one numbered SRT entry. Times are seconds.
type Cue struct {
	Sequence int
	Start    float64
	End      float64
	Text     string
}

// CueFile is an ordered list of cues.
type CueFile struct {
	Cues []Cue
}

var blankLines = regexp.MustCompile(`\n\s*\n+`)

// Format converts segments into cues. Negative or non-finite times fail.
func Format(segments []transcript.Segment) (CueFile, error) {
	cues := make([]Cue, 0, len(segments))
	for i, seg := range segments {
		if invalidTime(seg.Start) || invalidTime(seg.End) {
			return CueFile{}, fmt.Errorf("segment %d: invalid time %v --> %v", seg.Index, seg.Start, seg.End)
		}
		if seg.End < seg.Start {
			return CueFile{}, fmt.Errorf("segment %d: end %.3f before start %.3f", seg.Index, seg.End, seg.Start)
		}
		cues = append(cues, Cue{
			Sequence: i + 1,
			Start:    seg.Start,
			End:      seg.End,
			Text:     cleanCueText(seg.Text),
		})
	}
	return CueFile{Cues: cues}, nil
}

// cleanCueText keeps multi-line text but removes blank lines, which would
// terminate the cue early.
func cleanCueText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSpace(text)
	return blankLines.ReplaceAllString(text, "\n")
}

func invalidTime(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v < 0
}

// Bytes serializes the cue file as SRT.
func (f CueFile) Bytes() []byte {
	var buf bytes.Buffer
	for _, cue := range f.Cues {
		buf.WriteString(strconv.Itoa(cue.Sequence))
		buf.WriteByte('\n')
		buf.WriteString(FormatTimestamp(cue.Start))
		buf.WriteString(" --> ")
		buf.WriteString(FormatTimestamp(cue.End))
		buf.WriteByte('\n')
		buf.WriteString(cue.Text)
		buf.WriteString("\n\n")
	}
	return buf.Bytes()
}

// WriteFile writes the SRT to path.
func (f CueFile) WriteFile(path string) error {
	if err := os.WriteFile(path, f.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write srt: %w", err)
	}
	return nil
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm, truncating below a
// millisecond. Hours widen past 99. Negative input renders as zero.
func FormatTimestamp(seconds float64) string {
	if invalidTime(seconds) {
		seconds = 0
	}
	// The epsilon absorbs binary representation error such as 1.001*1000 = 1000.999...
	totalMillis := int64(math.Floor(seconds*1000 + 1e-6))
	hours := totalMillis / 3_600_000
	minutes := (totalMillis / 60_000) % 60
	secs := (totalMillis / 1000) % 60
	millis := totalMillis % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// ParseTimestamp reads HH:MM:SS,mmm (a period before the milliseconds is also
// accepted) into seconds.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	seconds, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil || hours < 0 || minutes < 0 || seconds < 0 || millis < 0 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	totalMillis := int64(hours)*3_600_000 + int64(minutes)*60_000 + int64(seconds)*1000 + int64(millis)
	return float64(totalMillis) / 1000, nil
}

// Parse reads SRT content. It tolerates a UTF-8 BOM, CRLF line endings, extra
// blank lines between cues, and cues with empty text.
func Parse(data []byte) (CueFile, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	content := strings.ReplaceAll(string(data), "\r\n", "\n")

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []Cue
	lineNo := 0
	next := func() (string, bool) {
		if !scanner.Scan() {
			return "", false
		}
		lineNo++
		return scanner.Text(), true
	}

	for {
		line, ok := next()
		if !ok {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		seq, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			return CueFile{}, fmt.Errorf("line %d: expected cue number, got %q", lineNo, line)
		}
		timing, ok := next()
		if !ok {
			return CueFile{}, fmt.Errorf("line %d: cue %d missing timing", lineNo, seq)
		}
		start, end, err := parseTiming(timing)
		if err != nil {
			return CueFile{}, fmt.Errorf("line %d: %w", lineNo, err)
		}
		var textLines []string
		for {
			text, ok := next()
			if !ok || strings.TrimSpace(text) == "" {
				break
			}
			textLines = append(textLines, text)
		}
		cues = append(cues, Cue{Sequence: seq, Start: start, End: end, Text: strings.Join(textLines, "\n")})
	}
	if err := scanner.Err(); err != nil {
		return CueFile{}, fmt.Errorf("scan srt: %w", err)
	}
	return CueFile{Cues: cues}, nil
}

// ParseFile reads and parses an SRT file.
func ParseFile(path string) (CueFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CueFile{}, fmt.Errorf("read srt: %w", err)
	}
	return Parse(data)
}

func parseTiming(line string) (float64, float64, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}
	// Position hints such as "X1:100" may follow the end time.
	endField := strings.Fields(parts[1])
	if len(endField) == 0 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	end, err := ParseTimestamp(endField[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}
