// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe and returns a Result; helpers on Result and Stream
// answer the questions the pipeline asks of a container: does it have audio,
// what is the audio layout, and how long is it.
package ffprobe
