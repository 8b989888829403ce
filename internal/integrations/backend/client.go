// Package backend is the REST client for the marketplace backend that owns orders,
// profiles and notifications.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// GenericErrorMessage is shown when the backend gives no usable explanation.
const GenericErrorMessage = "Произошла ошибка. Попробуйте позже."

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrTransport    = errors.New("backend transport error")
)

// APIError is a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// TransportError covers network failures and bodies that could not be decoded.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// UserMessage returns the text a courier should see for err.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return GenericErrorMessage
}

type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type Client struct {
	baseURL string
	tokens  TokenSource
	httpc   *http.Client
}

func New(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8000"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

// WithTokens returns a copy of the client that authenticates through ts.
func (c *Client) WithTokens(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

func (c *Client) endpoint(path string, q url.Values) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", errors.Wrap(err, "parse base url")
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

type request struct {
	method string
	url    string
	body   any
	auth   bool
}

// do executes r and decodes a JSON answer into out. decoded is false when the
// backend answered 2xx without a JSON body.
func (c *Client) do(ctx context.Context, r request, out any) (decoded bool, err error) {
	var rdr io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return false, errors.Wrap(err, "marshal body")
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, rdr)
	if err != nil {
		return false, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.auth {
		if c.tokens == nil {
			return false, errors.Wrap(ErrUnauthorized, "no credential")
		}
		tok, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return false, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return false, &TransportError{Op: "do request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return false, &TransportError{Op: "read body", Err: err}
	}

	if resp.StatusCode/100 != 2 {
		return false, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 || !isJSON(resp.Header.Get("Content-Type"), body) {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, &TransportError{Op: "decode", Err: err}
	}
	return true, nil
}

func isJSON(contentType string, body []byte) bool {
	if strings.Contains(contentType, "json") {
		return true
	}
	// бэкенд иногда отдаёт JSON без заголовка
	b := bytes.TrimSpace(body)
	return len(b) > 0 && (b[0] == '{' || b[0] == '[')
}

// errorMessage extracts detail, then message, else the generic text.
func errorMessage(body []byte) string {
	var e struct {
		Detail  any `json:"detail"`
		Message any `json:"message"`
	}
	if json.Unmarshal(body, &e) != nil {
		return GenericErrorMessage
	}
	if s, ok := e.Detail.(string); ok && s != "" {
		return s
	}
	if s, ok := e.Message.(string); ok && s != "" {
		return s
	}
	return GenericErrorMessage
}
