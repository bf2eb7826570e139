package splunkd

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/json-iterator/go"
)

const (
	defaultOwner  = "nobody"
	maxErrorBody  = 2048
	outputModeKey = "output_mode"
)

// Options configures a splunkd REST client.
// Params: management URI, app namespace, session key and transport options.
// Returns: client settings.
type Options struct {
	URI                string
	App                string
	Owner              string
	SessionKey         string
	Timeout            time.Duration
	InsecureSkipVerify bool
	Client             *http.Client
}

// Client calls the splunkd management API with a search session key.
type Client struct {
	base       *url.URL
	app        string
	owner      string
	sessionKey string
	http       *http.Client
}

// APIError is a non-2xx splunkd answer.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

// Error formats method, path, status and truncated body.
func (e *APIError) Error() string {
	return fmt.Sprintf("splunkd %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// New creates a splunkd client.
// Params: opts client options; URI and SessionKey are required.
// Returns: client or validation error.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SessionKey) == "" {
		return nil, fmt.Errorf("splunkd session key is empty")
	}
	base, err := url.Parse(strings.TrimRight(opts.URI, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse splunkd uri %q: %w", opts.URI, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("splunkd uri %q must be absolute", opts.URI)
	}

	owner := opts.Owner
	if owner == "" {
		owner = defaultOwner
	}

	client := opts.Client
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // splunkd ships a self-signed certificate
		}
		client = &http.Client{Timeout: opts.Timeout, Transport: transport}
	}

	return &Client{
		base:       base,
		app:        opts.App,
		owner:      owner,
		sessionKey: opts.SessionKey,
		http:       client,
	}, nil
}

// namespaced returns an app-scoped servicesNS path.
func (c *Client) namespaced(parts ...string) string {
	segments := append([]string{"servicesNS", c.owner, c.app}, parts...)
	return "/" + strings.Join(segments, "/")
}

// do sends one request and decodes a JSON answer into out when out is non-nil.
// Params: ctx request lifecycle; method HTTP verb; path unescaped URL path; query extra params; form urlencoded body; out decode target.
// Returns: *APIError for non-2xx answers or transport/decode error.
func (c *Client) do(ctx context.Context, method, path string, query, form url.Values, out any) error {
	target := *c.base
	target.Path = c.base.Path + path
	target.RawPath = ""
	if query == nil {
		query = url.Values{}
	}
	query.Set(outputModeKey, "json")
	target.RawQuery = query.Encode()

	var body io.Reader = http.NoBody
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("build splunkd request: %w", err)
	}
	req.Header.Set("Authorization", "Splunk "+c.sessionKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("splunkd %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode splunkd %s %s: %w", method, path, err)
	}
	return nil
}
