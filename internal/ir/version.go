package ir

// Version constants for the stored document layout and the service.
const (
	// SchemaVersion is stamped on every queued action record.
	SchemaVersion = "1"

	// ServiceVersion is the syncq release version.
	ServiceVersion = "0.3.0"
)
