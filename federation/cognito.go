package federation

import (
	"context"
	"strings"

	"code.cloudfoundry.org/lager/v3"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentity"

	"github.com/nimbus-oss/azurecreds/errtax"
)

// CognitoAPI is the subset of the AWS Cognito Identity client this provider
// needs, injected for testability the same way atc/creds/secretsmanager
// injects secretsmanageriface.SecretsManagerAPI.
type CognitoAPI interface {
	GetOpenIdToken(ctx context.Context, params *cognitoidentity.GetOpenIdTokenInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetOpenIdTokenOutput, error)
	GetOpenIdTokenForDeveloperIdentity(ctx context.Context, params *cognitoidentity.GetOpenIdTokenForDeveloperIdentityInput, optFns ...func(*cognitoidentity.Options)) (*cognitoidentity.GetOpenIdTokenForDeveloperIdentityOutput, error)
}

// CognitoProvider implements the aws_cognito federated-token provider, with
// basic (anonymous) and enhanced (developer-authenticated) auth modes.
type CognitoProvider struct {
	api CognitoAPI
	log lager.Logger
}

// NewCognitoProvider constructs a CognitoProvider bound to an injected
// client and logger.
func NewCognitoProvider(log lager.Logger, api CognitoAPI) *CognitoProvider {
	return &CognitoProvider{api: api, log: log.Session("aws-cognito")}
}

// Fetch obtains an OpenID token from Cognito, per the auth_type option
// (basic|enhanced, default basic).
func (p *CognitoProvider) Fetch(ctx context.Context, identityID string, opts map[string]any) (string, error) {
	authType, _ := opts["auth_type"].(string)
	if authType == "" {
		authType = "basic"
	}

	switch authType {
	case "basic":
		return p.basic(ctx, identityID)
	case "enhanced":
		return p.enhanced(ctx, identityID, opts)
	default:
		return "", &errtax.ConfigurationError{Type: "invalid_value", Key: "auth_type", Value: authType}
	}
}

func (p *CognitoProvider) basic(ctx context.Context, identityID string) (string, error) {
	out, err := p.api.GetOpenIdToken(ctx, &cognitoidentity.GetOpenIdTokenInput{
		IdentityId: aws.String(identityID),
	})
	if err != nil {
		p.log.Error("get-open-id-token-failed", err)
		return "", &errtax.FederationError{Type: "token_fetch_failed", Provider: "aws_cognito", Reason: err.Error()}
	}
	return aws.ToString(out.Token), nil
}

func (p *CognitoProvider) enhanced(ctx context.Context, identityID string, opts map[string]any) (string, error) {
	rawLogins, ok := opts["logins"]
	if !ok {
		return "", &errtax.ConfigurationError{Type: "missing_required", Key: "logins"}
	}

	logins, err := normalizeLogins(rawLogins)
	if err != nil {
		return "", err
	}

	out, err := p.api.GetOpenIdTokenForDeveloperIdentity(ctx, &cognitoidentity.GetOpenIdTokenForDeveloperIdentityInput{
		IdentityId: aws.String(identityID),
		Logins:     logins,
	})
	if err != nil {
		p.log.Error("get-open-id-token-for-developer-identity-failed", err)
		return "", &errtax.FederationError{Type: "token_fetch_failed", Provider: "aws_cognito", Reason: err.Error()}
	}
	return aws.ToString(out.Token), nil
}

// normalizeLogins accepts either a map[string]string already, or a
// comma-separated string of provider=token pairs. Per spec.md §4.2: split
// on ',', trim whitespace around each entry, split each entry on the first
// '=', trim both sides, silently drop malformed entries (no '='); empty
// input yields an empty mapping.
func normalizeLogins(raw any) (map[string]string, error) {
	switch v := raw.(type) {
	case map[string]string:
		return v, nil
	case string:
		return parseLoginString(v), nil
	default:
		return nil, &errtax.ConfigurationError{Type: "invalid_value", Key: "logins"}
	}
}

func parseLoginString(s string) map[string]string {
	logins := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return logins
	}

	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		idx := strings.Index(entry, "=")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(entry[:idx])
		value := strings.TrimSpace(entry[idx+1:])
		if key == "" {
			continue
		}
		logins[key] = value
	}
	return logins
}
