package backend

import (
	"context"
	"net/http"

	"github.com/BearBump/CourierBox/internal/models"
	"github.com/pkg/errors"
)

const (
	statisticsPath   = "/api/orders/courier/statistics/"
	profilePath      = "/authentication/profile/"
	tokenPath        = "/api/token/"
	tokenRefreshPath = "/api/token/refresh/"
)

func (c *Client) Statistics(ctx context.Context) (models.Statistics, error) {
	u, err := c.endpoint(statisticsPath, nil)
	if err != nil {
		return models.Statistics{}, err
	}
	var st models.Statistics
	if _, err := c.do(ctx, request{method: http.MethodGet, url: u, auth: true}, &st); err != nil {
		return models.Statistics{}, err
	}
	return st, nil
}

func (c *Client) GetProfile(ctx context.Context) (models.Profile, error) {
	u, err := c.endpoint(profilePath, nil)
	if err != nil {
		return models.Profile{}, err
	}
	var p models.Profile
	if _, err := c.do(ctx, request{method: http.MethodGet, url: u, auth: true}, &p); err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

func (c *Client) UpdateProfile(ctx context.Context, upd models.ProfileUpdate) (models.Profile, error) {
	u, err := c.endpoint(profilePath, nil)
	if err != nil {
		return models.Profile{}, err
	}
	var p models.Profile
	if _, err := c.do(ctx, request{method: http.MethodPatch, url: u, body: upd, auth: true}, &p); err != nil {
		return models.Profile{}, err
	}
	return p, nil
}

// TokenPair is what the token endpoints return.
type TokenPair struct {
	Access  string            `json:"access"`
	Refresh string            `json:"refresh"`
	UserID  models.FlexString `json:"id,omitempty"`
	Email   string            `json:"email,omitempty"`
}

// ObtainToken exchanges email/password for a token pair. No bearer is sent.
func (c *Client) ObtainToken(ctx context.Context, email, password string) (TokenPair, error) {
	return c.token(ctx, tokenPath, map[string]string{"email": email, "password": password})
}

// RefreshToken exchanges a refresh token for a new access token; Refresh may be empty
// when the backend does not rotate refresh tokens.
func (c *Client) RefreshToken(ctx context.Context, refresh string) (TokenPair, error) {
	return c.token(ctx, tokenRefreshPath, map[string]string{"refresh": refresh})
}

func (c *Client) token(ctx context.Context, path string, body map[string]string) (TokenPair, error) {
	u, err := c.endpoint(path, nil)
	if err != nil {
		return TokenPair{}, err
	}
	var tp TokenPair
	if _, err := c.do(ctx, request{method: http.MethodPost, url: u, body: body}, &tp); err != nil {
		return TokenPair{}, err
	}
	if tp.Access == "" {
		return TokenPair{}, errors.Wrap(ErrUnauthorized, "token response without access")
	}
	return tp, nil
}
