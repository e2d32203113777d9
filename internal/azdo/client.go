package azdo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/oauth2"
)

const (
	DefaultHost = "https://dev.azure.com/"
	APIVersion  = "7.1"

	continuationHeader = "x-ms-continuationtoken"
)

// Client talks to the REST API of a single Azure DevOps organization.
type Client struct {
	HTTP    *http.Client
	BaseURL *url.URL

	gate func(context.Context) error
}

type options struct {
	verbose bool
	// writer receives verbose HTTP logs (typically stderr) so structured
	// output on stdout stays clean.
	writer  io.Writer
	retries int
	gate    func(context.Context) error
	observe func(*http.Response)
	base    http.RoundTripper
}

type Option func(*options)

func WithVerbose(enabled bool, writer io.Writer) Option {
	return func(o *options) {
		o.verbose = enabled
		o.writer = writer
	}
}

// WithRetries sets how many times a request failing with 429 or 5xx is retried.
func WithRetries(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.retries = n
		}
	}
}

// WithRequestGate installs a function called before every request; a
// non-nil error aborts the request.
func WithRequestGate(gate func(context.Context) error) Option {
	return func(o *options) { o.gate = gate }
}

// WithResponseObserver installs a function called for every HTTP response,
// retried attempts included.
func WithResponseObserver(observe func(*http.Response)) Option {
	return func(o *options) { o.observe = observe }
}

// WithTransport replaces http.DefaultTransport as the innermost transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

// loggingRoundTripper emits one line per request and response when verbose
// logging is enabled.
type loggingRoundTripper struct {
	base http.RoundTripper
	w    io.Writer
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	if t.w != nil {
		_, _ = fmt.Fprintf(t.w, "[verbose] azure devops: %s %s\n", req.Method, redactURL(req.URL))
	}
	resp, err := t.base.RoundTrip(req)
	dur := time.Since(start)
	if t.w != nil {
		if err != nil {
			_, _ = fmt.Fprintf(t.w, "[verbose] azure devops: error after %s: %v\n", dur.Truncate(time.Millisecond), err)
		} else {
			_, _ = fmt.Fprintf(t.w, "[verbose] azure devops: %d %s (%s)\n", resp.StatusCode, http.StatusText(resp.StatusCode), dur.Truncate(time.Millisecond))
		}
	}
	return resp, err
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.User = nil
	return c.String()
}

// basicAuthTransport sends a personal access token as HTTP basic auth with
// an empty user name.
type basicAuthTransport struct {
	token string
	base  http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.SetBasicAuth("", t.token)
	return t.base.RoundTrip(r)
}

// OrganizationURL turns an organization name or URL into the API base URL.
// A bare name is placed under DefaultHost.
func OrganizationURL(organization string) (*url.URL, error) {
	org := strings.TrimSpace(organization)
	if org == "" {
		return nil, fmt.Errorf("organization is required")
	}
	if !strings.Contains(org, "://") {
		if strings.ContainsAny(org, "/ ") {
			return nil, fmt.Errorf("invalid organization %q", organization)
		}
		org = DefaultHost + url.PathEscape(org)
	}
	u, err := url.Parse(org)
	if err != nil {
		return nil, fmt.Errorf("invalid organization url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("invalid organization url scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func NewClient(ctx context.Context, organization string, cred Credential, opts ...Option) (*Client, error) {
	if ctx == nil {
		return nil, fmt.Errorf("azure devops client: ctx is nil")
	}
	base, err := OrganizationURL(organization)
	if err != nil {
		return nil, fmt.Errorf("azure devops client: %w", err)
	}

	o := &options{retries: 3}
	for _, apply := range opts {
		if apply != nil {
			apply(o)
		}
	}
	if o.verbose && o.writer == nil {
		o.writer = os.Stderr
	}

	transport := o.base
	if transport == nil {
		transport = http.DefaultTransport
	}
	if o.verbose {
		transport = &loggingRoundTripper{base: transport, w: o.writer}
	}
	switch {
	case cred.Token == "":
	case cred.Scheme == SchemeBasic:
		transport = &basicAuthTransport{token: cred.Token, base: transport}
	default:
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cred.Token, TokenType: "Bearer"})
		transport = &oauth2.Transport{Source: ts, Base: transport}
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Transport: transport}
	rc.RetryMax = o.retries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 30 * time.Second
	rc.Logger = nil
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if o.observe != nil {
		observe := o.observe
		rc.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) { observe(resp) }
	}

	return &Client{
		HTTP:    rc.StandardClient(),
		BaseURL: base,
		gate:    o.gate,
	}, nil
}

// newRequest builds a request for path, relative to the organization URL.
func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	rel, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, err
	}
	u := c.BaseURL.ResolveReference(rel)

	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("api-version", APIVersion)
	u.RawQuery = q.Encode()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends req and decodes a JSON response into out (when non-nil).
func (c *Client) do(req *http.Request, out any) (*http.Response, error) {
	if c == nil || c.HTTP == nil {
		return nil, fmt.Errorf("azure devops client is not initialized")
	}
	if c.gate != nil {
		if err := c.gate(req.Context()); err != nil {
			return nil, err
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, newErrorResponse(req, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return resp, fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return resp, nil
}

type listResponse[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

// list follows x-ms-continuationtoken until the server stops sending one.
func list[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	var all []T
	token := ""
	for {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		if token != "" {
			q.Set("continuationToken", token)
		}
		req, err := c.newRequest(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return nil, err
		}
		var page listResponse[T]
		resp, err := c.do(req, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Value...)

		next := strings.TrimSpace(resp.Header.Get(continuationHeader))
		if next == "" || next == token {
			return all, nil
		}
		token = next
	}
}
