// Package notifications delivers batch run events via ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// the orchestrator can always call it. Delivery failures are returned to the
// caller, which logs them; a notification never affects a run's outcome.
package notifications
