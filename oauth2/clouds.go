package oauth2

// Cloud selects the Azure AD authority host used to build the token
// endpoint. Base URLs are fixed per spec.
type Cloud string

const (
	CloudPublic     Cloud = "public"
	CloudGovernment Cloud = "government"
	CloudChina      Cloud = "china"
	CloudGermany    Cloud = "germany"
	CloudCustom     Cloud = "custom_base_url"
)

var cloudHosts = map[Cloud]string{
	CloudPublic:     "login.microsoftonline.com",
	CloudGovernment: "login.microsoftonline.us",
	CloudChina:      "login.chinacloudapi.cn",
	CloudGermany:    "login.microsoftonline.de",
}

// Host returns the authority host for a well-known cloud, or "" for
// CloudCustom (callers must supply CustomBaseURL on Config).
func (c Cloud) Host() string {
	return cloudHosts[c]
}
