package tokensource

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"code.cloudfoundry.org/lager/v3"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/token"
	"github.com/nimbus-oss/azurecreds/transport"
)

const appServiceAPIVersion = "2019-08-01"

// appServiceProvider implements the App Service managed-identity flow. It
// never retries, unlike imdsProvider (spec.md §4.3).
type appServiceProvider struct {
	doer transport.HTTPDoer
	log  lager.Logger
}

func newAppServiceProvider(doer transport.HTTPDoer, log lager.Logger) *appServiceProvider {
	return &appServiceProvider{doer: doer, log: log.Session("app-service")}
}

func (p *appServiceProvider) fetch(ctx context.Context, resource, clientID string, timeout time.Duration) (*token.Token, error) {
	endpoint := os.Getenv("IDENTITY_ENDPOINT")
	header := os.Getenv("IDENTITY_HEADER")
	if endpoint == "" || header == "" {
		return nil, &errtax.ManagedIdentityError{Type: "environment_not_detected", Provider: "app_service", Reason: "IDENTITY_ENDPOINT and IDENTITY_HEADER must both be set"}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	values := url.Values{}
	values.Set("api-version", appServiceAPIVersion)
	values.Set("resource", resource)
	if clientID != "" {
		values.Set("client_id", clientID)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return nil, &errtax.ManagedIdentityError{Type: "provider_error", Provider: "app_service", Reason: err.Error()}
	}
	req.Header.Set("X-IDENTITY-HEADER", header)

	resp, err := p.doer.Do(req)
	if err != nil {
		p.log.Error("request-failed", err)
		return nil, &errtax.NetworkError{Service: "azure_app_service_identity", Endpoint: endpoint, Reason: err.Error()}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusOK {
		return parseMSIResponse(body)
	}

	errStr, description := parseMSIError(body)
	return nil, &errtax.ManagedIdentityError{Type: "provider_error", Provider: "app_service", Status: resp.StatusCode, Reason: errStr + ": " + description}
}
