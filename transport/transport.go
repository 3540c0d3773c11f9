// Package transport defines the injectable HTTP transport boundary that
// every token-acquisition call and the HTTP pipeline's client dispatch
// through. It deliberately mirrors net/http.Client's Do method so that
// *http.Client satisfies it directly; DNS, TCP pooling, and TLS remain
// entirely the transport's concern (see spec Non-goals).
package transport

import "net/http"

// HTTPDoer is the injectable transport. Production code passes an
// *http.Client (or a client wrapping one with its own timeouts); tests
// substitute a fake that returns canned *http.Response values.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}
