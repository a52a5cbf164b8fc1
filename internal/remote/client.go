// Package remote is the JSON-over-HTTP plumbing shared by the clients of the
// storefront API. It maps transport failures to entity.ErrRemoteUnavailable
// and API error codes back to the sentinel errors that produced them.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tea-storefront/internal/entity"
)

// DefaultTimeout bounds every call; a timeout is reported like any other network failure.
const DefaultTimeout = 10 * time.Second

// TokenSource returns the current bearer token, or "" when there is no session.
type TokenSource func() string

// StaticToken always returns token.
func StaticToken(token string) TokenSource {
	return func() string { return token }
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
}

func NewClient(baseURL string, token TokenSource, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if token == nil {
		token = StaticToken("")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		token:      token,
	}
}

// Request describes one API call.
type Request struct {
	Method  string
	Path    string
	Body    any
	Headers map[string]string
	// Public calls are sent without a bearer token.
	Public bool
}

// APIError is returned for non-2xx responses. It unwraps to the sentinel named by Code.
type APIError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Do sends req and decodes a successful response body into out when out is not nil.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var token string
	if !req.Public {
		token = c.token()
		if token == "" {
			return fmt.Errorf("%s %s: %w", req.Method, req.Path, entity.ErrUnauthorized)
		}
	}

	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", req.Method, req.Path, entity.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: %w: undecodable response: %v", req.Method, req.Path, entity.ErrRemoteUnavailable, err)
	}
	return nil
}

// DoRaw is like Do but returns the raw response body, for callers that run
// their own decode/validate step.
func (c *Client) DoRaw(ctx context.Context, req Request) ([]byte, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(data, &body)
	if body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
	}

	apiErr := &APIError{Status: resp.StatusCode, Code: body.Code, Message: body.Error}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Err = entity.ErrUnauthorized
	case entity.ErrorForCode(body.Code) != nil:
		apiErr.Err = entity.ErrorForCode(body.Code)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Err = entity.ErrRemoteUnavailable
	}
	return apiErr
}
