package keystone

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/everstacklabs/compass/internal/catalog"
	"github.com/everstacklabs/compass/internal/httpclient"
	"github.com/everstacklabs/compass/internal/source"
)

func init() {
	source.Register(&Keystone{})
}

// Credentials are the password-auth settings, named after the usual
// OS_* environment variables.
type Credentials struct {
	AuthURL           string `mapstructure:"auth_url"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	ProjectName       string `mapstructure:"project_name"`
	ProjectID         string `mapstructure:"project_id"`
	UserDomainName    string `mapstructure:"user_domain_name"`
	ProjectDomainName string `mapstructure:"project_domain_name"`
	// APIVersion is "3" or "2.0". Empty means infer from AuthURL, else 3.
	APIVersion string `mapstructure:"identity_api_version"`
}

// Keystone authenticates with a password and returns the token's catalog.
type Keystone struct {
	creds  Credentials
	client *httpclient.Client
}

func (k *Keystone) Name() string { return "keystone" }

// Configure sets credentials and the HTTP client.
func (k *Keystone) Configure(creds Credentials, client *httpclient.Client) {
	k.creds = creds
	k.client = client
}

func (k *Keystone) Fetch(ctx context.Context) (*catalog.ServiceCatalog, error) {
	if k.client == nil {
		return nil, fmt.Errorf("keystone source not configured")
	}
	if k.creds.AuthURL == "" {
		return nil, fmt.Errorf("keystone: auth_url is required")
	}
	if k.creds.Username == "" {
		return nil, fmt.Errorf("keystone: username is required")
	}

	base, version := splitAuthURL(k.creds.AuthURL, k.creds.APIVersion)
	switch version {
	case "2.0":
		return k.authenticateV2(ctx, base)
	case "3":
		return k.authenticateV3(ctx, base)
	default:
		return nil, fmt.Errorf("keystone: unsupported identity API version %q", version)
	}
}

// Keystone v2.0 request body.
type v2AuthRequest struct {
	Auth v2Auth `json:"auth"`
}

type v2Auth struct {
	PasswordCredentials v2PasswordCredentials `json:"passwordCredentials"`
	TenantName          string                `json:"tenantName,omitempty"`
	TenantID            string                `json:"tenantId,omitempty"`
}

type v2PasswordCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (k *Keystone) authenticateV2(ctx context.Context, base string) (*catalog.ServiceCatalog, error) {
	req := v2AuthRequest{Auth: v2Auth{
		PasswordCredentials: v2PasswordCredentials{Username: k.creds.Username, Password: k.creds.Password},
		TenantName:          k.creds.ProjectName,
		TenantID:            k.creds.ProjectID,
	}}

	resp, err := k.client.PostJSON(ctx, base+"/v2.0/tokens", req, nil)
	if err != nil {
		return nil, fmt.Errorf("keystone v2.0 authentication: %w", err)
	}

	cat, err := buildCatalog(resp.Body)
	if err != nil {
		return nil, err
	}
	slog.Info("keystone authentication complete", "api", "2.0", "services", cat.Len(), "expires", cat.Token().ExpiresAt)
	return cat, nil
}

// Keystone v3 request body.
type v3AuthRequest struct {
	Auth v3Auth `json:"auth"`
}

type v3Auth struct {
	Identity v3Identity `json:"identity"`
	Scope    *v3Scope   `json:"scope,omitempty"`
}

type v3Identity struct {
	Methods  []string   `json:"methods"`
	Password v3Password `json:"password"`
}

type v3Password struct {
	User v3User `json:"user"`
}

type v3User struct {
	Name     string    `json:"name"`
	Password string    `json:"password"`
	Domain   *v3Domain `json:"domain,omitempty"`
}

type v3Domain struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type v3Scope struct {
	Project *v3Project `json:"project,omitempty"`
}

type v3Project struct {
	ID     string    `json:"id,omitempty"`
	Name   string    `json:"name,omitempty"`
	Domain *v3Domain `json:"domain,omitempty"`
}

func (k *Keystone) v3Request() v3AuthRequest {
	user := v3User{Name: k.creds.Username, Password: k.creds.Password}
	if k.creds.UserDomainName != "" {
		user.Domain = &v3Domain{Name: k.creds.UserDomainName}
	}

	req := v3AuthRequest{Auth: v3Auth{Identity: v3Identity{
		Methods:  []string{"password"},
		Password: v3Password{User: user},
	}}}

	switch {
	case k.creds.ProjectID != "":
		req.Auth.Scope = &v3Scope{Project: &v3Project{ID: k.creds.ProjectID}}
	case k.creds.ProjectName != "":
		domain := k.creds.ProjectDomainName
		if domain == "" {
			domain = k.creds.UserDomainName
		}
		project := &v3Project{Name: k.creds.ProjectName}
		if domain != "" {
			project.Domain = &v3Domain{Name: domain}
		}
		req.Auth.Scope = &v3Scope{Project: project}
	}
	return req
}

func (k *Keystone) authenticateV3(ctx context.Context, base string) (*catalog.ServiceCatalog, error) {
	resp, err := k.client.PostJSON(ctx, base+"/v3/auth/tokens", k.v3Request(), nil)
	if err != nil {
		return nil, fmt.Errorf("keystone v3 authentication: %w", err)
	}

	// The v3 token id is only in the response header.
	tokenID := resp.Header.Get("X-Subject-Token")
	if tokenID == "" {
		return nil, fmt.Errorf("keystone v3 authentication: response has no X-Subject-Token header")
	}

	cat, err := buildCatalog(resp.Body)
	if err != nil {
		return nil, err
	}
	cat = cat.WithTokenID(tokenID)
	slog.Info("keystone authentication complete", "api", "3", "services", cat.Len(), "expires", cat.Token().ExpiresAt)
	return cat, nil
}

func buildCatalog(body []byte) (*catalog.ServiceCatalog, error) {
	cat, err := catalog.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("building catalog from token response: %w", err)
	}
	return cat, nil
}

// splitAuthURL strips a trailing version segment from the auth URL and
// decides which API to use. An explicit version wins over the URL.
func splitAuthURL(authURL, version string) (string, string) {
	base := strings.TrimRight(authURL, "/")
	inferred := ""
	switch {
	case strings.HasSuffix(base, "/v3"):
		base, inferred = strings.TrimSuffix(base, "/v3"), "3"
	case strings.HasSuffix(base, "/v2.0"):
		base, inferred = strings.TrimSuffix(base, "/v2.0"), "2.0"
	}

	switch strings.TrimPrefix(strings.TrimSpace(version), "v") {
	case "3", "3.0":
		return base, "3"
	case "2", "2.0":
		return base, "2.0"
	case "":
		if inferred != "" {
			return base, inferred
		}
		return base, "3"
	default:
		return base, version
	}
}
