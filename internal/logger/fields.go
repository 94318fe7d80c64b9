package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldBatchID is the OCR run batch ID
	FieldBatchID = "batch_id"

	// FieldSyncID is the snapshot sync pass ID
	FieldSyncID = "sync_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"

	// FieldDocumentID is the remote document ID being processed
	FieldDocumentID = "document_id"

	// FieldEngine is the OCR engine handling the run
	FieldEngine = "engine"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldSize is the data size in bytes
	FieldSize = "size"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldOutcome is the classified outcome of an OCR run
	FieldOutcome = "outcome"

	// FieldAttempts is the number of attempts an operation took
	FieldAttempts = "attempts"
)
