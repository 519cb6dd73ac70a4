// Package notifications pushes job outcome alerts to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so the
// workflow manager can publish unconditionally. Completed and failed events are
// individually switchable in the [notifications] config section.
package notifications
