package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultTokenURL is the Google OAuth2 token endpoint.
const DefaultTokenURL = "https://oauth2.googleapis.com/token"

// GoogleRefresher exchanges refresh tokens at the Google OAuth2 token
// endpoint.
type GoogleRefresher struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
}

// GoogleOption configures a GoogleRefresher.
type GoogleOption func(*GoogleRefresher)

// WithTokenURL overrides the token endpoint (tests).
func WithTokenURL(u string) GoogleOption {
	return func(g *GoogleRefresher) {
		if strings.TrimSpace(u) != "" {
			g.tokenURL = u
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) GoogleOption {
	return func(g *GoogleRefresher) {
		if c != nil {
			g.httpClient = c
		}
	}
}

// NewGoogleRefresher creates a refresher using the given OAuth client
// credentials.
func NewGoogleRefresher(clientID, clientSecret string, opts ...GoogleOption) *GoogleRefresher {
	g := &GoogleRefresher{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     DefaultTokenURL,
		httpClient:   &http.Client{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type googleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Refresh implements Refresher against the Google token endpoint.
func (g *GoogleRefresher) Refresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", g.clientID)
	form.Set("client_secret", g.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return TokenResponse{}, fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr googleTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return TokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return TokenResponse{}, fmt.Errorf("token endpoint returned no access token")
	}
	return TokenResponse{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresIn:    tr.ExpiresIn,
	}, nil
}
