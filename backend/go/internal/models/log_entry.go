package models

// LogEntry is the structured log shape shared by every service.
type LogEntry struct {
	// ServiceName is the component that produced the entry.
	ServiceName string `json:"service_name"`

	// TraceID correlates log lines of one ingestion across HTTP, Kafka and the pipeline.
	TraceID string `json:"trace_id,omitempty"`

	// UserID is the caller, if known.
	UserID string `json:"user_id,omitempty"`

	RequestInfo *RequestInfo `json:"request_info,omitempty"`

	Error *ErrorInfo `json:"error,omitempty"`

	// Payload carries any other structured business data.
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// RequestInfo describes the HTTP request behind a log line.
type RequestInfo struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	RemoteAddr string `json:"remote_addr"`
	UserAgent  string `json:"user_agent"`
	Status     int    `json:"status,omitempty"`
	LatencyMS  int64  `json:"latency_ms,omitempty"`
}

// ErrorInfo describes an error attached to a log line.
type ErrorInfo struct {
	Message    string `json:"message"`
	Kind       string `json:"kind,omitempty"` // e.g. "ExternalServiceError"
	Stack      string `json:"stack,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
}
