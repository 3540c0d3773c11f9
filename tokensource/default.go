package tokensource

import (
	"os"

	"code.cloudfoundry.org/lager/v3"

	"github.com/nimbus-oss/azurecreds/oauth2"
	"github.com/nimbus-oss/azurecreds/transport"
)

// DefaultCredentialConfig carries the resource/scope values a default-chain
// source needs; everything identity-related is read from the environment.
type DefaultCredentialConfig struct {
	Resource      string // used by the ManagedIdentity leg
	Scope         string // used by the WorkloadIdentity leg
	Cloud         oauth2.Cloud
	CustomBaseURL string
}

// NewDefaultCredentialAgent assembles a Chained source from environment
// hints: when AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_FEDERATED_TOKEN_FILE
// are all set, WorkloadIdentity is tried first. A ManagedIdentity source
// always follows it in the chain: app_service when IDENTITY_ENDPOINT is set,
// otherwise imds. This is additive convenience and does not alter
// ManagedIdentity's own "auto" resolution rule.
func NewDefaultCredentialAgent(cfg DefaultCredentialConfig, doer transport.HTTPDoer, log lager.Logger) (*Chained, error) {
	exchanger := oauth2.New(doer, log)

	var sources []Source

	if isWorkloadIdentityEnv() {
		wi, err := NewWorkloadIdentity(WorkloadIdentityConfig{
			Scope:         cfg.Scope,
			Cloud:         cfg.Cloud,
			CustomBaseURL: cfg.CustomBaseURL,
		}, exchanger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, wi)
	}

	miType := "imds"
	if os.Getenv("IDENTITY_ENDPOINT") != "" {
		miType = "app_service"
	}
	mi, err := NewManagedIdentity(ManagedIdentityConfig{Type: miType, Resource: cfg.Resource}, doer, log)
	if err != nil {
		return nil, err
	}
	sources = append(sources, mi)

	return NewChained(sources, ChainedOptions{})
}
