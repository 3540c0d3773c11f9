package tokensource

import (
	"context"
	"os"
	"time"

	"code.cloudfoundry.org/lager/v3"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/token"
	"github.com/nimbus-oss/azurecreds/transport"
)

// ManagedIdentityConfig selects and configures a managed-identity token
// source. At most one of ClientID/ObjectID/MiResID may be set (spec.md §4.3).
type ManagedIdentityConfig struct {
	Type     string // "auto" (default), "imds", or "app_service"
	Resource string
	ClientID string
	ObjectID string
	MiResID  string
	Timeout  time.Duration
}

// ManagedIdentity fetches a token from IMDS or the App Service identity
// endpoint, resolving "auto" per spec.md §4.3's precedence: App Service env
// vars present -> app_service; else workload-identity env vars present ->
// a provider_error pointing at WorkloadIdentity; else IMDS.
type ManagedIdentity struct {
	cfg        ManagedIdentityConfig
	imds       *imdsProvider
	appService *appServiceProvider
}

// NewManagedIdentity validates cfg and constructs a ManagedIdentity source.
func NewManagedIdentity(cfg ManagedIdentityConfig, doer transport.HTTPDoer, log lager.Logger) (*ManagedIdentity, error) {
	if cfg.Resource == "" {
		return nil, &errtax.ConfigurationError{Type: "missing_required", Key: "resource"}
	}
	set := 0
	if cfg.ClientID != "" {
		set++
	}
	if cfg.ObjectID != "" {
		set++
	}
	if cfg.MiResID != "" {
		set++
	}
	if set > 1 {
		return nil, &errtax.ConfigurationError{Type: "invalid_value", Key: "client_id/object_id/mi_res_id", Value: "at most one may be set"}
	}
	switch cfg.Type {
	case "", "auto", "imds", "app_service":
	default:
		return nil, &errtax.ConfigurationError{Type: "invalid_value", Key: "type", Value: cfg.Type}
	}
	if cfg.Type == "" {
		cfg.Type = "auto"
	}

	return &ManagedIdentity{
		cfg:        cfg,
		imds:       newIMDSProvider(doer, log),
		appService: newAppServiceProvider(doer, log),
	}, nil
}

// isAppServiceEnv reports whether the App Service identity endpoint is
// configured in the environment.
func isAppServiceEnv() bool {
	return os.Getenv("IDENTITY_ENDPOINT") != "" && os.Getenv("IDENTITY_HEADER") != ""
}

// isWorkloadIdentityEnv reports whether the AKS workload-identity projection
// is configured in the environment.
func isWorkloadIdentityEnv() bool {
	return os.Getenv("AZURE_TENANT_ID") != "" && os.Getenv("AZURE_CLIENT_ID") != "" && os.Getenv("AZURE_FEDERATED_TOKEN_FILE") != ""
}

// Fetch dispatches to the resolved provider and fetches a token.
func (m *ManagedIdentity) Fetch(ctx context.Context) (*token.Token, error) {
	switch m.cfg.Type {
	case "imds":
		return m.imds.fetch(ctx, m.cfg.Resource, m.cfg.ClientID, m.cfg.ObjectID, m.cfg.MiResID, m.cfg.Timeout)
	case "app_service":
		return m.appService.fetch(ctx, m.cfg.Resource, m.cfg.ClientID, m.cfg.Timeout)
	default: // "auto"
		if isAppServiceEnv() {
			return m.appService.fetch(ctx, m.cfg.Resource, m.cfg.ClientID, m.cfg.Timeout)
		}
		if isWorkloadIdentityEnv() {
			return nil, &errtax.ManagedIdentityError{
				Type:     "provider_error",
				Provider: "auto",
				Reason:   "use WorkloadIdentity token source",
			}
		}
		return m.imds.fetch(ctx, m.cfg.Resource, m.cfg.ClientID, m.cfg.ObjectID, m.cfg.MiResID, m.cfg.Timeout)
	}
}
