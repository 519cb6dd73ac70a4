// Package api exposes the subtitle pipeline over HTTP.
//
// Routes are served by gin with CORS, OpenTelemetry request spans, request
// ids and optional bearer-token authentication. The synchronous endpoint runs
// a job inside the request; the jobs endpoints submit work in the background
// and report status, cancel, purge and stream progress over a websocket.
package api
