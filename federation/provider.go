// Package federation implements the federated-token providers described in
// spec.md §4.2: given a provider tag and an options map, obtain an external
// assertion string to be exchanged for an Azure AD token. Only AWS Cognito
// is implemented, matching the teacher's pattern of one small dispatcher
// (atc/creds/manager.go's ManagerFactory registry) fronting provider-
// specific implementations.
package federation

import (
	"context"

	"github.com/nimbus-oss/azurecreds/errtax"
)

// Provider obtains an external assertion for federation to Azure AD.
type Provider interface {
	Fetch(ctx context.Context, identityID string, opts map[string]any) (string, error)
}

// Dispatcher selects a Provider by tag and forwards the request, extracting
// identity_id from opts (defaulting to "" if absent) per spec.md §4.2.
type Dispatcher struct {
	providers map[string]Provider
}

// NewDispatcher builds a Dispatcher over the given tag->Provider table.
func NewDispatcher(providers map[string]Provider) *Dispatcher {
	return &Dispatcher{providers: providers}
}

// Fetch dispatches to the named provider.
func (d *Dispatcher) Fetch(ctx context.Context, tag string, opts map[string]any) (string, error) {
	provider, ok := d.providers[tag]
	if !ok {
		return "", &errtax.FederationError{Type: "unknown_provider", Provider: tag}
	}

	identityID, _ := opts["identity_id"].(string)
	return provider.Fetch(ctx, identityID, opts)
}
