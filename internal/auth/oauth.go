package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"docutalk-backend/internal/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

const (
	ProviderNameGoogle    = "google"
	ProviderNameMicrosoft = "microsoft"

	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	graphMeURL        = "https://graph.microsoft.com/v1.0/me"
)

var (
	ErrUnknownProvider = errors.New("unknown oauth provider")
	ErrNoEmail         = errors.New("oauth profile has no email")
)

// Profile is the part of a provider profile used to create an account.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
}

// OAuthProvider couples an oauth2 config with the endpoint returning the
// signed-in user's profile.
type OAuthProvider struct {
	Name        string
	Config      *oauth2.Config
	UserInfoURL string
	parse       func([]byte) (*Profile, error)
}

// NewOAuthProviders returns the enabled providers keyed by name.
func NewOAuthProviders(cfg config.OAuthConfig) map[string]*OAuthProvider {
	providers := make(map[string]*OAuthProvider)
	if cfg.Google.Enabled() {
		providers[ProviderNameGoogle] = &OAuthProvider{
			Name: ProviderNameGoogle,
			Config: &oauth2.Config{
				ClientID:     cfg.Google.ClientID,
				ClientSecret: cfg.Google.ClientSecret,
				RedirectURL:  cfg.Google.RedirectURL,
				Endpoint:     google.Endpoint,
				Scopes:       []string{"openid", "email", "profile"},
			},
			UserInfoURL: googleUserInfoURL,
			parse:       parseGoogleProfile,
		}
	}
	if cfg.Microsoft.Enabled() {
		tenant := cfg.Microsoft.Tenant
		if tenant == "" {
			tenant = "common"
		}
		providers[ProviderNameMicrosoft] = &OAuthProvider{
			Name: ProviderNameMicrosoft,
			Config: &oauth2.Config{
				ClientID:     cfg.Microsoft.ClientID,
				ClientSecret: cfg.Microsoft.ClientSecret,
				RedirectURL:  cfg.Microsoft.RedirectURL,
				Endpoint:     microsoft.AzureADEndpoint(tenant),
				Scopes:       []string{"openid", "email", "profile", "User.Read"},
			},
			UserInfoURL: graphMeURL,
			parse:       parseGraphProfile,
		}
	}
	return providers
}

// NewState returns a random value for the oauth state parameter.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// AuthCodeURL is the provider login page for state.
func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.Config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades code for a token and fetches the user's profile.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s code exchange: %w", p.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Config.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s profile request: %w", p.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s profile read: %w", p.Name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s profile request: status %d", p.Name, resp.StatusCode)
	}
	profile, err := p.parse(body)
	if err != nil {
		return nil, fmt.Errorf("%s profile: %w", p.Name, err)
	}
	profile.Email = strings.ToLower(strings.TrimSpace(profile.Email))
	return profile, nil
}

func parseGoogleProfile(body []byte) (*Profile, error) {
	var info struct {
		Email      string `json:"email"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
		Name       string `json:"name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, err
	}
	if info.Email == "" {
		return nil, ErrNoEmail
	}
	p := &Profile{Email: info.Email, FirstName: info.GivenName, LastName: info.FamilyName}
	if p.FirstName == "" {
		p.FirstName, p.LastName = splitName(info.Name)
	}
	return p, nil
}

// Graph leaves mail empty for some personal accounts; userPrincipalName is
// the sign-in address then.
func parseGraphProfile(body []byte) (*Profile, error) {
	var me struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
		GivenName         string `json:"givenName"`
		Surname           string `json:"surname"`
		DisplayName       string `json:"displayName"`
	}
	if err := json.Unmarshal(body, &me); err != nil {
		return nil, err
	}
	email := me.Mail
	if email == "" && strings.Contains(me.UserPrincipalName, "@") {
		email = me.UserPrincipalName
	}
	if email == "" {
		return nil, ErrNoEmail
	}
	p := &Profile{Email: email, FirstName: me.GivenName, LastName: me.Surname}
	if p.FirstName == "" {
		p.FirstName, p.LastName = splitName(me.DisplayName)
	}
	return p, nil
}

func splitName(full string) (string, string) {
	fields := strings.Fields(full)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}
