package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"subforge/internal/services"
	"subforge/internal/toolexec"
	"subforge/internal/transcript"
)

const (
	whisperXCommand        = "uvx"
	whisperXPackage        = "whisperx"
	whisperXPypiIndexURL   = "https://pypi.org/simple"
	whisperXCUDAIndexURL   = "https://download.pytorch.org/whl/cu128"
	whisperXOutputFormat   = "json"
	whisperXVADMethod      = "silero"
	whisperXCPUComputeType = "int8"
)

// WhisperXConfig configures a local WhisperX run.
type WhisperXConfig struct {
	Model  string
	Device string
}

// WhisperX runs WhisperX through uvx and reads its JSON output.
type WhisperX struct {
	model  string
	device string
	run    toolexec.RunFunc
}

// NewWhisperX constructs the backend. run should inject
// TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1 into the environment.
func NewWhisperX(cfg WhisperXConfig, run toolexec.RunFunc) *WhisperX {
	backend := &WhisperX{
		model:  strings.TrimSpace(cfg.Model),
		device: strings.ToLower(strings.TrimSpace(cfg.Device)),
		run:    run,
	}
	if backend.model == "" {
		backend.model = "large-v3-turbo"
	}
	if backend.device == "" {
		backend.device = "cpu"
	}
	return backend
}

func (w *WhisperX) Name() string { return "whisperx" }

type whisperXOutput struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe runs WhisperX into req.WorkDir and parses <audio>.json.
func (w *WhisperX) Transcribe(ctx context.Context, req Request) (Result, error) {
	if w.run == nil {
		return Result{}, services.Fail(services.KindInternal, stageName, "whisperx", "no command runner configured", nil)
	}
	outputDir := req.WorkDir
	if outputDir == "" {
		outputDir = filepath.Dir(req.AudioPath)
	}
	if err := w.run(ctx, whisperXCommand, w.buildArgs(req.AudioPath, outputDir, req.Language)...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, services.Fail(services.KindTranscriptionEngineError, stageName, "whisperx", "whisperx run failed", err)
	}

	base := strings.TrimSuffix(filepath.Base(req.AudioPath), filepath.Ext(req.AudioPath))
	jsonPath := filepath.Join(outputDir, base+".json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return Result{}, services.Fail(services.KindTranscriptionEngineError, stageName, "whisperx", "whisperx produced no json output", err)
	}
	var parsed whisperXOutput
	if err := json.Unmarshal(data, &parsed); err != nil {
		return Result{}, services.Fail(services.KindTranscriptionEngineError, stageName, "whisperx", fmt.Sprintf("decode %s", filepath.Base(jsonPath)), err)
	}
	segments := make([]transcript.Segment, 0, len(parsed.Segments))
	for i, seg := range parsed.Segments {
		segments = append(segments, transcript.Segment{Index: i, Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	return Result{Language: parsed.Language, Segments: segments}, nil
}

func (w *WhisperX) buildArgs(source, outputDir, language string) []string {
	cuda := w.device == "cuda"
	args := make([]string, 0, 24)
	if cuda {
		args = append(args, "--index-url", whisperXCUDAIndexURL, "--extra-index-url", whisperXPypiIndexURL)
	} else {
		args = append(args, "--index-url", whisperXPypiIndexURL)
	}
	args = append(args,
		whisperXPackage,
		source,
		"--model", w.model,
		"--output_dir", outputDir,
		"--output_format", whisperXOutputFormat,
		"--vad_method", whisperXVADMethod,
	)
	if lang := strings.TrimSpace(language); lang != "" && lang != "auto" {
		args = append(args, "--language", lang)
	}
	if cuda {
		args = append(args, "--device", "cuda")
	} else {
		args = append(args, "--device", "cpu", "--compute_type", whisperXCPUComputeType)
	}
	return args
}
