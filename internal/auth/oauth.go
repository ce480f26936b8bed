package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// ErrGitHubDisabled is returned when GitHub sign-in is used without a
// configured client ID and secret.
var ErrGitHubDisabled = errors.New("auth: GitHub sign-in is not configured")

const gitHubAPIURL = "https://api.github.com"

// GitHubUser is the part of GitHub's /user response the app uses.
// Name and Email are empty when the GitHub user has not made them public.
type GitHubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// DisplayName is the GitHub name, or the login when no name is public.
func (u GitHubUser) DisplayName() string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.Login
}

// GitHubOAuth runs the OAuth2 authorization-code flow against GitHub.
//
//  1. AuthURL sends the browser to GitHub with a random state value
//  2. GitHub redirects back to the callback URL with ?code=...&state=...
//  3. Exchange swaps the code for an access token and reads /user with it
//
// The GitHub access token is used once and thrown away; the app issues its
// own session token.
type GitHubOAuth struct {
	config *oauth2.Config
	apiURL string
}

// GitHubOption configures a GitHubOAuth.
type GitHubOption func(*GitHubOAuth)

// WithGitHubEndpoints points the flow at other OAuth and API servers.
// Tests use it with an httptest server.
func WithGitHubEndpoints(endpoint oauth2.Endpoint, apiURL string) GitHubOption {
	return func(g *GitHubOAuth) {
		g.config.Endpoint = endpoint
		g.apiURL = strings.TrimSuffix(apiURL, "/")
	}
}

// NewGitHubOAuth returns nil when clientID or clientSecret is empty, which
// is how GitHub sign-in is switched off.
func NewGitHubOAuth(clientID, clientSecret, callbackURL string, opts ...GitHubOption) *GitHubOAuth {
	if clientID == "" || clientSecret == "" {
		return nil
	}
	g := &GitHubOAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiURL: gitHubAPIURL,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AuthURL is where the browser is sent to approve access. state must be
// checked against the callback's state parameter (CSRF protection).
func (g *GitHubOAuth) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for the GitHub profile behind it.
func (g *GitHubOAuth) Exchange(ctx context.Context, code string) (*GitHubUser, error) {
	oauthToken, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// the client adds "Authorization: Bearer <token>" to every request
	client := g.config.Client(ctx, oauthToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building GitHub /user request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling GitHub /user API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: GitHub /user API returned status %d", resp.StatusCode)
	}

	var ghUser GitHubUser
	if err := json.NewDecoder(resp.Body).Decode(&ghUser); err != nil {
		return nil, fmt.Errorf("auth: decoding GitHub /user response: %w", err)
	}
	if ghUser.ID == 0 {
		return nil, errors.New("auth: GitHub returned an invalid user (ID = 0)")
	}

	return &ghUser, nil
}
