// Package transcript holds the time-coded text model shared by the
// transcription, translation, subtitle, and pipeline packages.
package transcript
