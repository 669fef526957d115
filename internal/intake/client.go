// Package intake talks to the form-intake REST service: it authenticates
// operators, uploads capture media, and pushes finalized notice fields.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ErrUnauthorized is returned when the intake service refuses the credentials
// or no user matches the login.
var ErrUnauthorized = errors.New("intake: unauthorized")

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

// User is one entry of the intake user directory.
type User struct {
	ID    UserID `json:"id"`
	Login string `json:"login"`
}

// UserID accepts both numeric and string ids from the directory.
type UserID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *UserID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decode user id: %w", err)
	}
	*id = UserID(n.String())
	return nil
}

// Session identifies an authenticated operator.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// Client is a thin wrapper over the intake REST API.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

type envelope[T any] struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

type loginData struct {
	Token string `json:"token"`
}

type usersData struct {
	Users []User `json:"users"`
}

// NewClient builds a Client rooted at cfg.BaseURL.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("intake base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("parse intake base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: c, logger: logger.Named("intake")}, nil
}

// Login exchanges operator credentials for a session token.
func (c *Client) Login(ctx context.Context, company, user, password string) (string, error) {
	var out envelope[loginData]
	res, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"user": user, "password": password, "company": company}).
		SetResult(&out).
		Post("/login")
	if err != nil {
		return "", fmt.Errorf("intake login: %w", err)
	}
	c.logger.Debug("intake call", zap.String("method", "POST"), zap.String("path", "/login"), zap.Int("status", res.StatusCode()))
	if res.IsError() || out.Data.Token == "" {
		return "", fmt.Errorf("intake login: status %d: %w", res.StatusCode(), ErrUnauthorized)
	}
	return out.Data.Token, nil
}

// Users lists the users visible to token.
func (c *Client) Users(ctx context.Context, token string) ([]User, error) {
	var out envelope[usersData]
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", token).
		SetResult(&out).
		Get("/users")
	if err != nil {
		return nil, fmt.Errorf("intake users: %w", err)
	}
	c.logger.Debug("intake call", zap.String("method", "GET"), zap.String("path", "/users"), zap.Int("status", res.StatusCode()))
	if res.IsError() {
		return nil, fmt.Errorf("intake users: status %d: %w", res.StatusCode(), ErrUnauthorized)
	}
	return out.Data.Users, nil
}

// Authenticate logs in and resolves the operator's user id by a
// case-insensitive login match.
func (c *Client) Authenticate(ctx context.Context, company, login, password string) (Session, error) {
	token, err := c.Login(ctx, company, login, password)
	if err != nil {
		return Session{}, err
	}
	users, err := c.Users(ctx, token)
	if err != nil {
		return Session{}, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Login, login) {
			return Session{Token: token, UserID: string(u.ID)}, nil
		}
	}
	return Session{}, fmt.Errorf("intake user %q not found: %w", login, ErrUnauthorized)
}

// PostMedia uploads binary media under name for formID.
func (c *Client) PostMedia(ctx context.Context, token, formID, name string, data []byte) error {
	path := fmt.Sprintf("/forms/%s/medias/%s", url.PathEscape(formID), url.PathEscape(name))
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", token).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(data).
		Post(path)
	if err != nil {
		return fmt.Errorf("intake media upload: %w", err)
	}
	c.logger.Debug("intake call", zap.String("method", "POST"), zap.String("path", path), zap.Int("status", res.StatusCode()))
	if res.IsError() {
		return fmt.Errorf("intake media upload: status %d", res.StatusCode())
	}
	return nil
}

// PushFields pushes a field set to recipientID on formID.
func (c *Client) PushFields(ctx context.Context, token, formID, recipientID string, fields Fields) error {
	path := fmt.Sprintf("/forms/%s/push", url.PathEscape(formID))
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", token).
		SetBody(map[string]any{"recipient_user_id": recipientID, "fields": fields}).
		Post(path)
	if err != nil {
		return fmt.Errorf("intake push: %w", err)
	}
	c.logger.Debug("intake call", zap.String("method", "POST"), zap.String("path", path), zap.Int("status", res.StatusCode()))
	if res.IsError() {
		return fmt.Errorf("intake push: status %d", res.StatusCode())
	}
	return nil
}
