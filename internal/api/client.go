// Package api is the REST access layer for the calendar-chat backend. It owns
// the cookie jar of the authenticated session, attaches the CSRF header to
// every state-changing request, and turns a 401 on any non-auth path into the
// global redirect-to-login side effect.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

const (
	// CSRFCookie is set by the backend on login; its value must be echoed in
	// CSRFHeader on mutating requests.
	CSRFCookie = "csrf_access_token"
	CSRFHeader = "X-CSRF-TOKEN"
)

var (
	// ErrUnauthorized is returned for a 401 on a non-auth path, after the
	// OnUnauthorized hook has fired.
	ErrUnauthorized = errors.New("api: unauthorized")
	// ErrNoCSRFToken means the CSRF cookie is absent; the request is not sent.
	ErrNoCSRFToken = errors.New("api: CSRF token not found")
)

// StatusError is a non-2xx response that is not the global-401 case.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Code)
	}
	return fmt.Sprintf("api: status %d: %s", e.Code, e.Message)
}

// Client talks to the backend. Safe for use from multiple goroutines.
type Client struct {
	base           *url.URL
	http           *http.Client
	onUnauthorized func()
}

func New(baseURL string) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("api: parse base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("api: cookie jar: %w", err)
	}
	return &Client{
		base: base,
		http: &http.Client{Jar: jar, Timeout: 15 * time.Second},
	}, nil
}

// SetOnUnauthorized installs the hook fired when any non-auth request gets a
// 401 (the browser client's redirect to the login view). Auth endpoints never
// fire it, so a failed login cannot loop.
func (c *Client) SetOnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

// WSURL returns the socket endpoint derived from the base URL.
func (c *Client) WSURL() string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	return u.String()
}

// WSHeader builds the Cookie header for the socket dial from the REST
// session's jar, so the socket shares the authenticated session.
func (c *Client) WSHeader() http.Header {
	header := http.Header{}
	cookies := c.http.Jar.Cookies(c.base)
	if len(cookies) == 0 {
		return header
	}
	pairs := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		pairs = append(pairs, ck.Name+"="+ck.Value)
	}
	header.Set("Cookie", strings.Join(pairs, "; "))
	return header
}

// csrfToken reads the CSRF cookie from the jar.
func (c *Client) csrfToken() (string, error) {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == CSRFCookie {
			return ck.Value, nil
		}
	}
	return "", ErrNoCSRFToken
}

// errorBody is the JSON error shape the backend uses ("error", "message" or
// "msg" depending on the endpoint's vintage).
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Msg     string `json:"msg"`
}

func (b errorBody) text() string {
	switch {
	case b.Error != "":
		return b.Error
	case b.Message != "":
		return b.Message
	default:
		return b.Msg
	}
}

// do performs one request. Mutating requests (csrf=true) require the CSRF
// cookie before anything is sent. out, when non-nil, receives the decoded
// 2xx body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any, csrf bool) error {
	u := *c.base
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if csrf {
		tok, err := c.csrfToken()
		if err != nil {
			return err
		}
		req.Header.Set(CSRFHeader, tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized && !strings.HasPrefix(path, "/auth") {
		if c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		var eb errorBody
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return &StatusError{Code: resp.StatusCode, Message: eb.text()}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("api: decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
