package pipeline

// Stage is a step in the job state machine.
type Stage string

const (
	StageIdle         Stage = "idle"
	StageExtracting   Stage = "extracting"
	StageTranscribing Stage = "transcribing"
	StageTranslating  Stage = "translating"
	StageFormatting   Stage = "formatting"
	StageMuxing       Stage = "muxing"
	StagePublishing   Stage = "publishing"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// Progress checkpoints, in percent.
const (
	PercentExtracting   = 10
	PercentTranscribing = 20
	PercentTranscribed  = 30
	PercentTranslating  = 50
	PercentFormatting   = 70
	PercentMuxing       = 80
	PercentPublishing   = 90
	PercentCompleted    = 100
)

// Terminal reports whether no further transitions can happen.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Label is the human readable description used in progress messages.
func (s Stage) Label() string {
	switch s {
	case StageIdle:
		return "Queued"
	case StageExtracting:
		return "Extracting audio"
	case StageTranscribing:
		return "Transcribing speech"
	case StageTranslating:
		return "Translating subtitles"
	case StageFormatting:
		return "Formatting subtitles"
	case StageMuxing:
		return "Embedding subtitles"
	case StagePublishing:
		return "Publishing results"
	case StageCompleted:
		return "Completed"
	case StageFailed:
		return "Failed"
	default:
		return string(s)
	}
}
