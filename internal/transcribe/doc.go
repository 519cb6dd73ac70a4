// Package transcribe converts extracted audio into a time-coded transcript.
//
// Adapter enforces the engine's input size ceiling before any network call,
// delegates to a Backend (the OpenAI-compatible transcription API or a local
// WhisperX run), and normalizes the returned segments. Engine failures are
// surfaced as TranscriptionEngineError, flagged transient for rate limits and
// server errors; the adapter never retries on its own.
package transcribe
