// Package extract turns a submitted video source into a local input file and a
// normalized speech-recognition audio track.
//
// Sources arrive as uploaded bytes, a remote URL, or a local path. URL sources
// are downloaded with a size cap; every source is content-sniffed and probed
// with ffprobe before ffmpeg extracts a mono 16 kHz track. Output that is empty
// or does not match the configured channel layout fails with ExtractionFailed
// rather than reaching the transcription stage.
package extract
