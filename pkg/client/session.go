package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login exchanges the admin password for a session token. The client
// uses the token for later writes; Login must not race other calls.
func (c *Client) Login(ctx context.Context, password string) (*Session, error) {
	body, err := json.Marshal(map[string]string{"password": password})
	if err != nil {
		return nil, fmt.Errorf("encode login: %w", err)
	}

	var out Session
	if err := c.send(ctx, http.MethodPost, c.opts.BaseURL+"/admin/session", body, "application/json", &out); err != nil {
		return nil, err
	}
	c.opts.Token = out.Token
	return &out, nil
}

type Health struct {
	Status    string    `json:"status"`
	Function  string    `json:"function"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.get(ctx, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
