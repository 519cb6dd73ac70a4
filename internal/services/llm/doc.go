// Package llm provides an OpenRouter-compatible chat completion client.
//
// The translation stage uses Client.Complete to render one subtitle segment or
// a full transcript into the target language. The doctor command uses
// Client.HealthCheck to verify the key and model before jobs are accepted.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.Complete: send system/user prompts, receive plain text.
// Client.HealthCheck: verify API key and model availability.
//
// # Retry Behaviour
//
// By default the client retries HTTP 408/429/5xx errors and network timeouts
// with exponential backoff (base 1s, max 10s, up to 5 attempts). Pipeline
// callers construct it with WithRetryMaxAttempts(1) so failures surface to the
// stage, which decides how to degrade. StatusCode and IsTransient classify the
// returned error.
package llm
