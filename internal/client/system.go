package client

import (
	"context"
	"encoding/json"
	"net/url"
)

// SystemInfo describes the DW Spectrum server itself
type SystemInfo struct {
	ID       string `json:"id"`
	SystemID string `json:"systemId"`
	Name     string `json:"name"`
	Version  string `json:"version"`
}

// ServerID returns the best available server identifier
func (s *SystemInfo) ServerID() string {
	if s.ID != "" {
		return s.ID
	}
	return s.SystemID
}

// User is a DW Spectrum user account
type User struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	FullName    string          `json:"fullName"`
	Email       string          `json:"email"`
	Type        string          `json:"type"`
	IsEnabled   bool            `json:"isEnabled"`
	Permissions json.RawMessage `json:"permissions"`
}

// DisplayName returns the best human-readable name for the user
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	if u.Name != "" {
		return u.Name
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// GetSystemInfo fetches server identity and version
func (c *Client) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	if err := c.requestJSON(ctx, "GET", "/rest/v3/system/info", nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

const userFields = "id,name,fullName,email,type,isEnabled,permissions"

// GetUsers lists the server's user accounts
func (c *Client) GetUsers(ctx context.Context) ([]User, error) {
	params := url.Values{}
	params.Set("_with", userFields)

	var raw json.RawMessage
	if err := c.requestJSON(ctx, "GET", "/rest/v3/users", params, nil, &raw); err != nil {
		return nil, err
	}

	users, err := decodeList[User](raw, "items", "data", "users")
	if err != nil {
		return nil, transportErrf("GET /rest/v3/users", "unexpected response shape: %w", err)
	}
	return users, nil
}

// SetUserEnabled enables or disables a user account
func (c *Client) SetUserEnabled(ctx context.Context, userID string, enabled bool) error {
	err := c.requestJSON(ctx, "PATCH", "/rest/v3/users/"+userID, nil, map[string]interface{}{"isEnabled": enabled}, nil)
	return remapNotFound(err, "user", userID)
}

// GetLicenseSummary fetches the raw license summary. The schema varies by
// server build, so extraction is left to the caller.
func (c *Client) GetLicenseSummary(ctx context.Context) (map[string]interface{}, error) {
	var raw json.RawMessage
	if err := c.requestJSON(ctx, "GET", "/rest/v3/licenses/*/summary", nil, nil, &raw); err != nil {
		return nil, err
	}

	var summary map[string]interface{}
	if err := json.Unmarshal(raw, &summary); err == nil {
		return summary, nil
	}

	var items []interface{}
	if err := json.Unmarshal(raw, &items); err == nil {
		return map[string]interface{}{"items": items}, nil
	}

	return map[string]interface{}{"raw": string(raw)}, nil
}
