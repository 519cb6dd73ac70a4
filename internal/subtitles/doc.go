// Package subtitles renders time-coded segments as SRT cue files and parses
// SRT back into cues.
//
// Timestamps are HH:MM:SS,mmm with sub-millisecond precision truncated. Cues
// are numbered from 1 in order regardless of segment indexes, and cues with
// empty text are kept so cue count always equals segment count.
package subtitles
