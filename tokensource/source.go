// Package tokensource implements the stateless token-acquisition strategies
// from spec.md §4.3: ClientAssertion (federation -> OAuth2 JWT-bearer),
// ManagedIdentity (IMDS or App-Service identity), and WorkloadIdentity
// (projected-file -> OAuth2). Each is a closed, exhaustively-matched type
// rather than a dynamically dispatched tag, per spec.md §9's design note.
package tokensource

import (
	"context"

	"github.com/nimbus-oss/azurecreds/token"
)

// Source is the shared contract: fetch(cfg) -> {ok, token} | {error, err}.
// Concrete sources bake their configuration in at construction time instead
// of taking a dynamic map, per spec.md §9 ("closed sum type with exhaustive
// matching" rather than runtime reflection).
type Source interface {
	Fetch(ctx context.Context) (*token.Token, error)
}
