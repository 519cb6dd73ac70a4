package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement defines an external binary subforge relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// PipelineRequirements lists the binaries the pipeline runs for the given
// transcription engine.
func PipelineRequirements(ffmpeg, ffprobe, transcriptionEngine string) []Requirement {
	reqs := []Requirement{
		{Name: "FFmpeg", Command: ffmpeg, Description: "Extracts audio and muxes subtitles"},
		{Name: "FFprobe", Command: ffprobe, Description: "Inspects input streams"},
	}
	reqs = append(reqs, Requirement{
		Name:        "uvx",
		Command:     "uvx",
		Description: "Runs WhisperX for local transcription",
		Optional:    strings.TrimSpace(transcriptionEngine) != "whisperx",
	})
	return reqs
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		path, err := exec.LookPath(cmd)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		status.Path = path
		results = append(results, status)
	}
	return results
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
