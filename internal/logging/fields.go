package logging

// Standardized attribute keys. Using the constants keeps field names
// consistent across components so log searches stay reliable.
const (
	FieldComponent = "component"
	FieldEventType = "event_type"
	FieldErrorHint = "error_hint"
	FieldImpact    = "impact"
	FieldJobID     = "job_id"
	FieldSession   = "session"
)
