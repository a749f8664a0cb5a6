package middleware

// ErrorResponse is the JSON shape middleware writes when it aborts a request
// before a handler runs. Handler errors render through pkg/httputil instead.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}
