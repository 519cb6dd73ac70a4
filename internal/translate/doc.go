// Package translate renders a transcript into a target language.
//
// Translator issues one engine call per segment, sequentially and in index
// order, writing each result into a pre-sized slice so translated segment i
// always keeps the timing of source segment i. A failed segment keeps its
// source text and is recorded in Translated.FallbackSegments; the job
// continues. The whole transcript text is translated separately for display.
//
// Engines: "llm" (OpenRouter-compatible chat completions) and "gemini" (Google
// GenAI). Calls are paced by a token-bucket limiter.
package translate
