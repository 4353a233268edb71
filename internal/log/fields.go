package log

// Canonical field names.
const (
	FieldComponent = "component"
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"

	FieldFilename = "filename"
	FieldSize     = "size"
	FieldIP       = "ip"
	FieldPath     = "path"
	FieldDelay    = "delay"
	FieldStatus   = "status"
)
