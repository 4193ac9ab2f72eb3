// Package ldap wraps the email-list collaborator the report scheduler
// consults for each day's subscriber roster. The directory itself is an
// external collaborator; only this HTTP response contract is owned here.
package ldap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/solidex/shpak/internal/config"
)

// User is one LDAP-listed subscriber and its notification addresses.
type User struct {
	Login  string   `json:"login"`
	Emails []string `json:"emails"`
}

type listResponse struct {
	Users []User `json:"users"`
}

// Client fetches the subscriber roster over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New builds a Client targeting cfg.Host:cfg.Port.
func New(cfg config.LDAPConfig) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// List fetches the current subscriber roster via GET /list.
func (c *Client) List(ctx context.Context) ([]User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/list", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ldap list request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ldap list returned status %d", resp.StatusCode)
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ldap list response: %w", err)
	}
	return out.Users, nil
}
