package client

import (
	"context"
	"net/http"

	"github.com/communityconnect/server/models"
)

// Credentials is the body of register and login.
type Credentials struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	Email         string `json:"email,omitempty"`
	CaptchaID     string `json:"captcha_id,omitempty"`
	CaptchaAnswer string `json:"captcha_answer,omitempty"`
}

// Session is returned by register and login.
type Session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// Register creates an account and keeps the returned token.
func (c *Client) Register(ctx context.Context, cred Credentials) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/auth/register", nil, cred, &s); err != nil {
		return nil, err
	}
	c.SetToken(s.Token)
	return &s, nil
}

// Login authenticates and keeps the returned token.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	var s Session
	body := Credentials{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, body, &s); err != nil {
		return nil, err
	}
	c.SetToken(s.Token)
	return &s, nil
}

// Logout revokes the current token and forgets it.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil); err != nil {
		return err
	}
	c.SetToken("")
	return nil
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*models.User, error) {
	var u models.User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
