package ownerquery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client resolves the current owner of a token by querying an external
// asset-ownership registry over HTTP. It is the production implementation of
// the loan engine's OwnerOracle.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// New builds a client against the registry base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:   &http.Client{Timeout: 5 * time.Second},
	}
}

type ownerResponse struct {
	Owner string `json:"owner"`
}

// OwnerOf returns the current owner account of (contract, tokenID).
func (c *Client) OwnerOf(contract, tokenID string) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("ownerquery: client not configured")
	}
	query := url.Values{}
	query.Set("contract", contract)
	query.Set("token_id", tokenID)
	endpoint := c.baseURL + "/v1/owner?" + query.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("ownerquery: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ownerquery: registry returned status %d", resp.StatusCode)
	}
	var decoded ownerResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("ownerquery: decode response: %w", err)
	}
	if strings.TrimSpace(decoded.Owner) == "" {
		return "", fmt.Errorf("ownerquery: registry returned no owner for %s/%s", contract, tokenID)
	}
	return decoded.Owner, nil
}
