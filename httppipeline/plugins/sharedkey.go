package plugins

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/nimbus-oss/azurecreds/errtax"
	"github.com/nimbus-oss/azurecreds/httppipeline"
	"github.com/nimbus-oss/azurecreds/token"
)

// sharedKeyHeaders lists, in canonical-string order, the fixed headers that
// precede the canonicalized x-ms-* headers and resource, per spec.md §4.5.
var sharedKeyHeaders = []string{
	"Content-Encoding",
	"Content-Language",
	"Content-Length",
	"Content-MD5",
	"Content-Type",
	"Date",
	"If-Modified-Since",
	"If-Match",
	"If-None-Match",
	"If-Unmodified-Since",
	"Range",
}

// SharedKey signs the request with an Azure Storage Shared Key, adding an
// Authorization: SharedKey header.
type SharedKey struct {
	AccountName string
	AccountKey  string
	Credential  token.NamedKey
}

func (p *SharedKey) Register(c *httppipeline.Client) {
	c.AddRequestStep(func(ctx context.Context, req *httppipeline.Request) error {
		name, key := p.resolve(req)
		if name == "" || key == "" {
			req.SetPrivate("shared_key_error", "account_name/account_key not configured")
			return nil
		}

		sig, err := sign(req, name, key)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "SharedKey "+name+":"+sig)
		return nil
	})
}

func (p *SharedKey) resolve(req *httppipeline.Request) (name, key string) {
	if v, ok := req.Option("named_key_credential").(token.NamedKey); ok {
		return v.Name(), v.Key()
	}
	if p.Credential.Name() != "" {
		return p.Credential.Name(), p.Credential.Key()
	}
	name = p.AccountName
	key = p.AccountKey
	if v, ok := req.Option("account_name").(string); ok && v != "" {
		name = v
	}
	if v, ok := req.Option("account_key").(string); ok && v != "" {
		key = v
	}
	return name, key
}

func sign(req *httppipeline.Request, accountName, accountKey string) (string, error) {
	decodedKey, err := base64.StdEncoding.DecodeString(accountKey)
	if err != nil {
		return "", &errtax.CredentialError{Type: "invalid_key"}
	}

	stringToSign := canonicalString(req, accountName)

	mac := hmac.New(sha256.New, decodedKey)
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func canonicalString(req *httppipeline.Request, accountName string) string {
	lines := make([]string, 0, len(sharedKeyHeaders)+2)
	lines = append(lines, strings.ToUpper(req.Method))

	for _, h := range sharedKeyHeaders {
		if h == "Content-Length" {
			lines = append(lines, contentLength(req))
			continue
		}
		lines = append(lines, req.Header.Get(h))
	}

	lines = append(lines, canonicalizedHeaders(req))
	lines = append(lines, canonicalizedResource(req, accountName))

	return strings.Join(lines, "\n")
}

func contentLength(req *httppipeline.Request) string {
	if v := req.Header.Get("Content-Length"); v != "" {
		return v
	}
	if len(req.Body) == 0 {
		return ""
	}
	return strconv.Itoa(len(req.Body))
}

func canonicalizedHeaders(req *httppipeline.Request) string {
	var names []string
	for name := range req.Header {
		if strings.HasPrefix(strings.ToLower(name), "x-ms-") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, strings.ToLower(name)+":"+strings.TrimSpace(req.Header.Get(name)))
	}
	return strings.Join(lines, "\n")
}

func canonicalizedResource(req *httppipeline.Request, accountName string) string {
	u, err := url.Parse(req.URL)
	if err != nil {
		return "/" + accountName + "/"
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	resource := "/" + accountName + path
	if u.RawQuery == "" {
		return resource
	}

	values := u.Query()
	var params []string
	for name := range values {
		params = append(params, name)
	}
	sort.Strings(params)

	lines := []string{resource}
	for _, name := range params {
		vals := values[name]
		sort.Strings(vals)
		lines = append(lines, strings.ToLower(name)+":"+strings.Join(vals, ","))
	}
	return strings.Join(lines, "\n")
}
