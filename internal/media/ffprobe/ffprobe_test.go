package ffprobe

import (
	"math"
	"testing"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "h264", "codec_type": "video", "width": 1920, "height": 1080},
    {"index": 1, "codec_name": "aac", "codec_type": "audio", "sample_rate": "48000", "channels": 2, "tags": {"language": "eng"}},
    {"index": 2, "codec_name": "mov_text", "codec_type": "subtitle"}
  ],
  "format": {"filename": "in.mp4", "nb_streams": 3, "duration": "30.016000", "size": "1048576", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`

func TestParseAndHelpers(t *testing.T) {
	result, err := Parse([]byte(sampleJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("expected 1 audio stream, got %d", result.AudioStreamCount())
	}
	audio, ok := result.PrimaryAudio()
	if !ok {
		t.Fatal("expected primary audio")
	}
	if audio.SampleRateHz() != 48000 || audio.Channels != 2 {
		t.Fatalf("unexpected audio layout %d/%d", audio.SampleRateHz(), audio.Channels)
	}
	if audio.Language() != "eng" {
		t.Fatalf("unexpected language %q", audio.Language())
	}
	if result.DurationSeconds() != 30.016 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 1048576 {
		t.Fatalf("unexpected size: %d", result.SizeBytes())
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad", Size: "-1"}}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if result.SizeBytes() != 0 {
		t.Fatalf("expected size 0, got %d", result.SizeBytes())
	}
	if _, ok := result.PrimaryAudio(); ok {
		t.Fatal("expected no audio stream")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}
