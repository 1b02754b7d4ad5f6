package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"parlomo-ticketing/internal/logger"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// M2MClient obtains machine-to-machine access tokens via the client
// credentials grant. Tokens are cached in Redis so concurrent service
// instances share them.
type M2MClient struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	cache        *RedisTokenCache
	logger       *logger.Logger
}

// NewM2MClient builds a client against an OIDC issuer. The cache may be
// nil; every call then hits the issuer.
func NewM2MClient(issuer, clientID, clientSecret string, httpClient *http.Client, cache *RedisTokenCache, log *logger.Logger) *M2MClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &M2MClient{
		tokenURL:     strings.TrimRight(issuer, "/") + "/protocol/openid-connect/token",
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		cache:        cache,
		logger:       log,
	}
}

// Token returns a valid access token, from cache when possible.
func (c *M2MClient) Token(ctx context.Context) (string, error) {
	if c.cache != nil {
		cached, err := c.cache.GetToken(ctx)
		if err != nil {
			c.logger.Warn("AUTH", fmt.Sprintf("token cache read failed: %v", err))
		} else if cached != nil {
			return cached.Token, nil
		}
	}

	token, expiresIn, err := c.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	if c.cache != nil {
		if err := c.cache.SetToken(ctx, token, expiresIn); err != nil {
			c.logger.Warn("AUTH", fmt.Sprintf("token cache write failed: %v", err))
		}
	}
	return token, nil
}

func (c *M2MClient) fetchToken(ctx context.Context) (string, int, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("AUTH", fmt.Sprintf("token endpoint returned %s: %s", resp.Status, string(body)))
		return "", 0, fmt.Errorf("failed to get token, status: %s", resp.Status)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("failed to decode token response: %w", err)
	}
	return tr.AccessToken, tr.ExpiresIn, nil
}
