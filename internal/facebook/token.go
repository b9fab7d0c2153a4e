package facebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// ExchangeToken trades a short-lived user token for a long-lived one. Single
// stateless call: no retry, no caching.
func (c *Client) ExchangeToken(ctx context.Context, appID, appSecret, shortToken string) (string, error) {
	query := url.Values{}
	query.Set("grant_type", "fb_exchange_token")
	query.Set("client_id", appID)
	query.Set("client_secret", appSecret)
	query.Set("fb_exchange_token", shortToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.oauthURL()+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	raw, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	var resp struct {
		AccessToken string          `json:"access_token"`
		Error       json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	if resp.AccessToken == "" {
		if len(resp.Error) > 0 {
			return "", fmt.Errorf("%w: %s", ErrTokenExchange, resp.Error)
		}
		return "", fmt.Errorf("%w: unknown error", ErrTokenExchange)
	}

	return resp.AccessToken, nil
}
