package httppipeline

// Response is the pipeline's normalized response value. Header is keyed by
// lowercased header name, with repeated values joined by ", ", per spec.md
// §3's Response header shape (distinct from net/http.Header's Title-Case,
// first-value-only Get).
type Response struct {
	StatusCode      int
	Header          map[string]string
	Body            []byte
	RequestID       string // from x-ms-request-id
	ClientRequestID string // from x-ms-client-request-id

	// Err is populated by ErrorHandler instead of being raised, when the
	// pipeline is configured with raise-on-error disabled.
	Err error
}
