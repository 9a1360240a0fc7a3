// Package fetch forwards intercepted requests to the application origin.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/logger"
	"github.com/ridecheck/ridecheck/internal/shell"
)

// DefaultMaxBodyBytes caps a buffered upstream body.
const DefaultMaxBodyBytes int64 = 32 << 20

// ErrBodyTooLarge is returned when an upstream body exceeds the limit.
var ErrBodyTooLarge = errors.New("upstream response body too large")

// hopHeaders apply to a single connection and are never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client fetches from the upstream origin and buffers the response.
type Client struct {
	upstream  *url.URL
	http      *http.Client
	maxBody   int64
	userAgent string
	log       logger.Logger
}

var _ shell.Fetcher = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the underlying client, e.g. to set a transport.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithTimeout bounds each upstream exchange. Zero leaves it unbounded.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithMaxBodyBytes(n int64) Option { return func(c *Client) { c.maxBody = n } }

func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }

func WithLogger(l logger.Logger) Option { return func(c *Client) { c.log = l } }

// New creates a client for the origin at upstream.
func New(upstream string, opts ...Option) (*Client, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return nil, errors.Categorize(fmt.Errorf("parse upstream: %w", err), errors.CategoryConfig, "fetch")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Categorize(fmt.Errorf("upstream %q is not an absolute URL", upstream), errors.CategoryConfig, "fetch")
	}
	c := &Client{
		upstream: u,
		http:     &http.Client{},
		maxBody:  DefaultMaxBodyBytes,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxBody <= 0 {
		c.maxBody = DefaultMaxBodyBytes
	}
	// Redirects are the browser's business: pass them through as responses.
	c.http.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c, nil
}

// Upstream returns the origin URL.
func (c *Client) Upstream() *url.URL {
	u := *c.upstream
	return &u
}

// Fetch sends req upstream. In FetchNoCache mode intermediate HTTP caches are
// told to revalidate and the browser's validators are dropped, so the origin
// sends a full response. Transport errors are returned as the client produced
// them.
func (c *Client) Fetch(ctx context.Context, req *http.Request, mode shell.FetchMode) (*shell.Response, error) {
	target := c.resolve(req.URL)

	var body io.Reader
	if req.Body != nil && req.Body != http.NoBody {
		body = req.Body
	}
	out, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	out.ContentLength = req.ContentLength

	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	removeHopHeaders(out.Header)
	if req.Host != "" {
		out.Header.Set("X-Forwarded-Host", req.Host)
	}
	if c.userAgent != "" && out.Header.Get("User-Agent") == "" {
		out.Header.Set("User-Agent", c.userAgent)
	}
	if mode == shell.FetchNoCache {
		shell.StripConditional(out.Header)
		out.Header.Set("Cache-Control", "no-cache")
		out.Header.Set("Pragma", "no-cache")
	}

	start := time.Now()
	resp, err := c.http.Do(out)
	if err != nil {
		c.log.Debug("upstream fetch failed",
			logger.String("url", target.String()),
			logger.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrBodyTooLarge, target.Path, c.maxBody)
	}

	header := resp.Header.Clone()
	removeHopHeaders(header)
	header.Del("Content-Length")

	c.log.Debug("upstream fetch",
		logger.String("method", req.Method),
		logger.String("url", target.String()),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)))

	return &shell.Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   data,
	}, nil
}

// resolve maps an incoming URL onto the upstream origin. Absolute URLs on
// another host are fetched as they are.
func (c *Client) resolve(in *url.URL) *url.URL {
	if in.IsAbs() && !strings.EqualFold(in.Host, c.upstream.Host) {
		u := *in
		return &u
	}
	u := *c.upstream
	u.Path = joinPath(c.upstream.Path, in.Path)
	u.RawPath = ""
	u.RawQuery = in.RawQuery
	u.Fragment = ""
	return &u
}

func joinPath(base, p string) string {
	switch {
	case base == "" || base == "/":
		if p == "" {
			return "/"
		}
		return p
	case p == "" || p == "/":
		return strings.TrimSuffix(base, "/") + "/"
	default:
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(p, "/")
	}
}

func removeHopHeaders(h http.Header) {
	// Headers named in Connection are hop-by-hop too.
	for _, v := range h.Values("Connection") {
		for name := range strings.SplitSeq(v, ",") {
			if name = textproto.TrimString(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}
