package tokensource

import (
	"context"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/oauth2"
	"github.com/nimbus-oss/azurecreds/token"
)

// workloadIdentityEnv mirrors the AKS-projected environment variables,
// parsed with caarlos0/env rather than individual os.Getenv calls.
type workloadIdentityEnv struct {
	TenantID  string `env:"AZURE_TENANT_ID"`
	ClientID  string `env:"AZURE_CLIENT_ID"`
	TokenFile string `env:"AZURE_FEDERATED_TOKEN_FILE"`
}

// WorkloadIdentityConfig configures the AKS workload-identity flow. An
// empty TenantID, ClientID or TokenFilePath falls back to its environment
// variable (AZURE_TENANT_ID, AZURE_CLIENT_ID, AZURE_FEDERATED_TOKEN_FILE), read fresh on every
// Fetch so a rotated projection is picked up without reconstruction.
type WorkloadIdentityConfig struct {
	Scope         string
	TenantID      string
	ClientID      string
	TokenFilePath string
	Cloud         oauth2.Cloud
	CustomBaseURL string
}

// WorkloadIdentity exchanges a Kubernetes-projected service-account token
// for an Azure AD token.
type WorkloadIdentity struct {
	cfg       WorkloadIdentityConfig
	exchanger *oauth2.Exchanger
	readFile  func(string) ([]byte, error)
}

// NewWorkloadIdentity validates cfg and constructs a WorkloadIdentity source.
func NewWorkloadIdentity(cfg WorkloadIdentityConfig, exchanger *oauth2.Exchanger) (*WorkloadIdentity, error) {
	if cfg.Scope == "" {
		return nil, &errtax.ConfigurationError{Type: "missing_required", Key: "scope"}
	}
	return &WorkloadIdentity{cfg: cfg, exchanger: exchanger, readFile: os.ReadFile}, nil
}

// Fetch reads the projected token file and exchanges it via OAuth2.
func (w *WorkloadIdentity) Fetch(ctx context.Context) (*token.Token, error) {
	var fallback workloadIdentityEnv
	if err := env.Parse(&fallback); err != nil {
		return nil, &errtax.ConfigurationError{Type: "invalid_value", Key: "workload_identity_env", Value: err.Error()}
	}

	tenantID := firstNonEmpty(w.cfg.TenantID, fallback.TenantID)
	clientID := firstNonEmpty(w.cfg.ClientID, fallback.ClientID)
	tokenFile := firstNonEmpty(w.cfg.TokenFilePath, fallback.TokenFile)

	if tenantID == "" {
		return nil, &errtax.ConfigurationError{Type: "missing_required", Key: "tenant_id"}
	}
	if clientID == "" {
		return nil, &errtax.ConfigurationError{Type: "missing_required", Key: "client_id"}
	}
	if tokenFile == "" {
		return nil, &errtax.ConfigurationError{Type: "missing_required", Key: "token_file_path"}
	}

	raw, err := w.readFile(tokenFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errtax.ManagedIdentityError{Type: "token_file_not_found", Provider: "workload_identity", Reason: err.Error()}
		}
		return nil, &errtax.ManagedIdentityError{Type: "token_file_read_error", Provider: "workload_identity", Reason: err.Error()}
	}

	assertion := strings.TrimSpace(string(raw))
	if assertion == "" {
		return nil, &errtax.ManagedIdentityError{Type: "token_file_read_error", Provider: "workload_identity", Reason: "token file is empty"}
	}

	cloud := w.cfg.Cloud
	if cloud == "" {
		cloud = oauth2.CloudPublic
	}

	return w.exchanger.Exchange(ctx, oauth2.Config{
		TenantID:      tenantID,
		ClientID:      clientID,
		Assertion:     assertion,
		Scope:         w.cfg.Scope,
		Cloud:         cloud,
		CustomBaseURL: w.cfg.CustomBaseURL,
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
