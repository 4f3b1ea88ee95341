// Package transport provides HTTP client plumbing shared by the external
// system clients: base-URL handling, authentication header injection, JSON
// codecs, and the unauthorized-retry policy ("refresh once, retry once")
// applied uniformly instead of per call site.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/opshub/tenantsync/pkg/constants"
	"github.com/opshub/tenantsync/pkg/errors"
	"github.com/opshub/tenantsync/pkg/logging"
)

// Client performs authenticated HTTP requests against one external system.
type Client struct {
	http   *http.Client
	base   *url.URL
	auth   HeaderSource
	system string
}

// New creates a transport client for the system rooted at baseURL.
func New(baseURL string, auth HeaderSource, system string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.NewConfigError(system, "invalid base URL", err)
	}
	if auth == nil {
		auth = NoAuth{}
	}
	return &Client{
		http:   &http.Client{Timeout: constants.DefaultHTTPTimeout},
		base:   u,
		auth:   auth,
		system: system,
	}, nil
}

// SetHTTPClient replaces the underlying http.Client (used in tests and for
// custom timeouts).
func (c *Client) SetHTTPClient(h *http.Client) { c.http = h }

// BaseURL returns the configured authority, without a trailing slash.
func (c *Client) BaseURL() string { return c.base.String() }

// System returns the system label used in errors and logs.
func (c *Client) System() string { return c.system }

// URL joins a request path (or returns an already-absolute URL unchanged,
// normalized to the client's authority — continuation references from
// paginated listings may come back relative or under a downgraded scheme).
func (c *Client) URL(pathOrURL string) string {
	if pathOrURL == "" {
		return c.base.String()
	}
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") {
		ref, err := url.Parse(pathOrURL)
		if err != nil {
			return pathOrURL
		}
		// Same host under a different scheme: trust the configured
		// authority. Reverse proxies behind TLS hand out http links.
		if ref.Host == c.base.Host && ref.Scheme != c.base.Scheme {
			ref.Scheme = c.base.Scheme
			return ref.String()
		}
		return pathOrURL
	}
	if !strings.HasPrefix(pathOrURL, "/") {
		pathOrURL = "/" + pathOrURL
	}
	return c.base.String() + pathOrURL
}

// Do performs one request with authentication, applying the unauthorized
// policy: on a 401 response, refresh the credential once (when the header
// source supports it) and retry the original call once. The second response
// is returned regardless.
func (c *Client) Do(ctx context.Context, method, pathOrURL string, body any, extra http.Header) (*http.Response, error) {
	resp, err := c.send(ctx, method, pathOrURL, body, extra)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	refresher, ok := c.auth.(Refresher)
	if !ok {
		return resp, nil
	}
	drain(resp)

	logging.FromContext(ctx).Warn().
		Str("system", c.system).
		Str("url", c.URL(pathOrURL)).
		Msg("unauthorized response; refreshing credential and retrying once")

	if err := refresher.Refresh(ctx); err != nil {
		return nil, errors.NewAuthenticationError(c.system, "credentials", "credential refresh failed", err)
	}
	return c.send(ctx, method, pathOrURL, body, extra)
}

// DoJSON performs a request and decodes a successful JSON response into
// target (which may be nil for calls without a useful body). Unauthorized
// responses that survive the retry policy map to an AuthenticationError.
func (c *Client) DoJSON(ctx context.Context, method, pathOrURL string, body, target any, extra http.Header) error {
	resp, err := c.Do(ctx, method, pathOrURL, body, extra)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return errors.NewAuthenticationError(c.system, "token", "unauthorized after refresh retry", nil)
	}
	return DecodeResponse(c.system, resp, target)
}

// send builds and performs a single request attempt.
func (c *Client) send(ctx context.Context, method, pathOrURL string, body any, extra http.Header) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, errors.WrapParse("json", "request body", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	reqURL := c.URL(pathOrURL)
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, errors.WrapAPI(c.system, 0, err)
	}

	headers, err := c.auth.Headers(ctx)
	if err != nil {
		return nil, err
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}
	for key, values := range extra {
		for _, v := range values {
			req.Header.Set(key, v)
		}
	}

	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &errors.APIError{
			System:   c.system,
			Endpoint: reqURL,
			Message:  "request failed",
			Err:      err,
		}
	}
	return resp, nil
}

func drain(resp *http.Response) {
	_ = resp.Body.Close()
}
