package client

import (
	"context"
	"net/http"

	"github.com/physiobook/physiobook/libs/auth"
)

type Me struct {
	UserID       string            `json:"user_id"`
	Role         auth.Role         `json:"role"`
	Name         string            `json:"name"`
	Capabilities []auth.Capability `json:"capabilities"`
	Routes       []auth.Route      `json:"routes"`
}

func (c *Client) Login(ctx context.Context, email, password string) (Tokens, error) {
	var out Tokens
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/login",
		body:   map[string]string{"email": email, "password": password},
	}, &out)
	return out, err
}

func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (Tokens, error) {
	var out Tokens
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/refresh",
		body:   map[string]string{"refresh_token": refreshToken},
	}, &out)
	return out, err
}

func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/logout",
		body:   map[string]string{"refresh_token": refreshToken},
	}, nil)
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var out Me
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/auth/me"}, &out)
	return out, err
}

func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/password-reset",
		body:   map[string]string{"email": email},
	}, nil)
}

func (c *Client) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/api/v1/auth/password-reset/confirm",
		body:   map[string]string{"token": token, "password": password},
	}, nil)
}

type NewUser struct {
	Email    string    `json:"email"`
	Password string    `json:"password"`
	FullName string    `json:"full_name"`
	Role     auth.Role `json:"role"`
}

func (c *Client) ListUsers(ctx context.Context) ([]Profile, error) {
	var out struct {
		Users []Profile `json:"users"`
	}
	err := c.do(ctx, request{method: http.MethodGet, path: "/api/v1/auth/users"}, &out)
	return out.Users, err
}

func (c *Client) CreateUser(ctx context.Context, u NewUser) (Profile, error) {
	var out Profile
	err := c.do(ctx, request{method: http.MethodPost, path: "/api/v1/auth/users", body: u}, &out)
	return out, err
}

type UserUpdate struct {
	FullName *string    `json:"full_name,omitempty"`
	Role     *auth.Role `json:"role,omitempty"`
}

func (c *Client) UpdateUser(ctx context.Context, id string, u UserUpdate) (Profile, error) {
	var out Profile
	err := c.do(ctx, request{method: http.MethodPatch, path: "/api/v1/auth/users/" + id, body: u}, &out)
	return out, err
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/api/v1/auth/users/" + id}, nil)
}
