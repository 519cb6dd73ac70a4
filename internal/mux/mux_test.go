package mux

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"subforge/internal/logging"
	"subforge/internal/services"
	"subforge/internal/testsupport"
)

func TestEscapeFilterPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "/tmp/job/subs.srt", want: "/tmp/job/subs.srt"},
		{name: "spaces", in: "/tmp/my job/subs.srt", want: "/tmp/my job/subs.srt"},
		{name: "colon", in: "/tmp/a:b/subs.srt", want: `/tmp/a\\:b/subs.srt`},
		{name: "windows drive", in: `C:\Users\x\subs.srt`, want: `C\\:\\\\Users\\\\x\\\\subs.srt`},
		{name: "quote", in: "/tmp/it's/subs.srt", want: `/tmp/it\\\'s/subs.srt`},
		{name: "graph specials", in: "/tmp/[a],b;c.srt", want: `/tmp/\[a\]\,b\;c.srt`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := EscapeFilterPath(tc.in); got != tc.want {
				t.Fatalf("EscapeFilterPath(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeBurn, "burn": ModeBurn, "HARD": ModeBurn, "soft": ModeSoft} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("sideways"); err == nil {
		t.Fatal("expected error")
	}
}

type recorder struct {
	args   []string
	output []byte
	err    error
}

func (r *recorder) run(_ context.Context, name string, args ...string) error {
	r.args = append([]string{name}, args...)
	if r.err != nil {
		return r.err
	}
	if r.output != nil {
		return os.WriteFile(args[len(args)-1], r.output, 0o644)
	}
	return nil
}

func setup(t *testing.T) (string, string, string) {
	t.Helper()
	dir := t.TempDir()
	video := filepath.Join(dir, "input.mp4")
	subs := filepath.Join(dir, "sub: titles.srt")
	testsupport.WriteMP4(t, video, 256)
	if err := os.WriteFile(subs, []byte("1\n00:00:00,000 --> 00:00:01,000\nHi\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return video, subs, filepath.Join(dir, "output.mp4")
}

func TestEmbedBurn(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	rec := &recorder{output: []byte("video")}
	m := New(cfg, rec.run, logging.NewNop())
	video, subs, out := setup(t)

	res, err := m.Embed(context.Background(), Request{VideoPath: video, SubtitlePath: subs, OutputPath: out})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if res.Mode != ModeBurn || res.SizeBytes != 5 || res.OutputPath != out {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file should be renamed")
	}
	joined := strings.Join(rec.args, " ")
	wantFilter := "subtitles=filename=" + EscapeFilterPath(subs) + `:force_style=FontName=Arial\,FontSize=24\,PrimaryColour=&H00FFFFFF\,OutlineColour=&H00000000\,Outline=2\,MarginV=30`
	if !strings.Contains(joined, "-vf "+wantFilter) {
		t.Fatalf("burn filter missing, args: %s", joined)
	}
	for _, want := range []string{"-c:v libx264", "-crf 23", "-preset veryfast", "-c:a aac", "-b:a 160k", "-movflags +faststart"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
}

func TestEmbedSoft(t *testing.T) {
	rec := &recorder{output: []byte("video")}
	m := New(testsupport.NewConfig(t), rec.run, logging.NewNop())
	video, subs, out := setup(t)

	if _, err := m.Embed(context.Background(), Request{VideoPath: video, SubtitlePath: subs, OutputPath: out, Mode: ModeSoft, Language: "es"}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	joined := strings.Join(rec.args, " ")
	for _, want := range []string{"-i " + subs, "-c:v copy", "-c:s mov_text", "-metadata:s:s:0 language=spa"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
	if strings.Contains(joined, "-vf") {
		t.Fatal("soft mode must not re-encode")
	}
}

func TestEmbedEmptyOutputIsMuxFailed(t *testing.T) {
	rec := &recorder{output: []byte{}}
	m := New(testsupport.NewConfig(t), rec.run, logging.NewNop())
	video, subs, out := setup(t)

	_, err := m.Embed(context.Background(), Request{VideoPath: video, SubtitlePath: subs, OutputPath: out})
	if services.KindOf(err) != services.KindMuxFailed {
		t.Fatalf("expected MuxFailed, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("no output should remain")
	}
}

func TestEmbedMissingOutputIsMuxFailed(t *testing.T) {
	rec := &recorder{}
	m := New(testsupport.NewConfig(t), rec.run, logging.NewNop())
	video, subs, out := setup(t)

	_, err := m.Embed(context.Background(), Request{VideoPath: video, SubtitlePath: subs, OutputPath: out})
	if services.KindOf(err) != services.KindMuxFailed {
		t.Fatalf("expected MuxFailed, got %v", err)
	}
}

func TestEmbedToolFailure(t *testing.T) {
	rec := &recorder{err: errors.New("exit status 1")}
	m := New(testsupport.NewConfig(t), rec.run, logging.NewNop())
	video, subs, out := setup(t)

	_, err := m.Embed(context.Background(), Request{VideoPath: video, SubtitlePath: subs, OutputPath: out})
	if services.KindOf(err) != services.KindMuxFailed {
		t.Fatalf("expected MuxFailed, got %v", err)
	}
}
