package fetch

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/shell"
)

const origin = "https://app.ridecheck.example"

func newMockedClient(t *testing.T, opts ...Option) (*Client, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	opts = append([]Option{WithHTTPClient(&http.Client{Transport: transport})}, opts...)
	c, err := New(origin, opts...)
	require.NoError(t, err)
	return c, transport
}

func TestNew_RejectsRelativeUpstream(t *testing.T) {
	t.Parallel()

	_, err := New("/just/a/path")
	require.Error(t, err)
	category, ok := errors.CategoryOf(err)
	require.True(t, ok)
	assert.Equal(t, errors.CategoryConfig, category)
}

func TestFetch_ResolvesAgainstUpstream(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t)
	transport.RegisterResponder(http.MethodGet, origin+"/vehicles?status=available",
		httpmock.NewStringResponder(http.StatusOK, `[{"plate":"B 1234 XY"}]`))

	req, err := http.NewRequest(http.MethodGet, "/vehicles?status=available", http.NoBody)
	require.NoError(t, err)

	resp, err := c.Fetch(t.Context(), req, shell.FetchDefault)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.JSONEq(t, `[{"plate":"B 1234 XY"}]`, string(resp.Body))
	assert.Equal(t, 1, transport.GetTotalCallCount())
}

func TestFetch_CacheBypassHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		mode         shell.FetchMode
		wantBypassed bool
	}{
		{name: "default", mode: shell.FetchDefault, wantBypassed: false},
		{name: "no-cache", mode: shell.FetchNoCache, wantBypassed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, transport := newMockedClient(t)
			var seen http.Header
			transport.RegisterResponder(http.MethodGet, origin+"/dashboard",
				func(req *http.Request) (*http.Response, error) {
					seen = req.Header.Clone()
					return httpmock.NewStringResponse(http.StatusOK, "<html></html>"), nil
				})

			req, err := http.NewRequest(http.MethodGet, "/dashboard", http.NoBody)
			require.NoError(t, err)
			_, err = c.Fetch(t.Context(), req, tt.mode)
			require.NoError(t, err)

			if tt.wantBypassed {
				assert.Equal(t, "no-cache", seen.Get("Cache-Control"))
				assert.Equal(t, "no-cache", seen.Get("Pragma"))
			} else {
				assert.Empty(t, seen.Get("Cache-Control"))
				assert.Empty(t, seen.Get("Pragma"))
			}
		})
	}
}

func TestFetch_StripsHopByHopHeaders(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t, WithUserAgent("ridecheck-shell"))
	var seen http.Header
	transport.RegisterResponder(http.MethodGet, origin+"/login",
		func(req *http.Request) (*http.Response, error) {
			seen = req.Header.Clone()
			resp := httpmock.NewStringResponse(http.StatusOK, "login")
			resp.Header.Set("Connection", "close, X-Upstream-Debug")
			resp.Header.Set("X-Upstream-Debug", "1")
			resp.Header.Set("Keep-Alive", "timeout=5")
			resp.Header.Set("Content-Type", "text/html")
			resp.Header.Set("Content-Length", "5")
			return resp, nil
		})

	req, err := http.NewRequest(http.MethodGet, "/login", http.NoBody)
	require.NoError(t, err)
	req.Host = "ridecheck.example"
	req.Header.Set("Connection", "keep-alive, X-Session-Hint")
	req.Header.Set("X-Session-Hint", "abc")
	req.Header.Set("Proxy-Authorization", "Basic Zm9v")
	req.Header.Set("Accept-Language", "id-ID")

	resp, err := c.Fetch(t.Context(), req, shell.FetchDefault)
	require.NoError(t, err)

	assert.Empty(t, seen.Get("Connection"))
	assert.Empty(t, seen.Get("X-Session-Hint"))
	assert.Empty(t, seen.Get("Proxy-Authorization"))
	assert.Equal(t, "id-ID", seen.Get("Accept-Language"))
	assert.Equal(t, "ridecheck.example", seen.Get("X-Forwarded-Host"))
	assert.Equal(t, "ridecheck-shell", seen.Get("User-Agent"))

	assert.Empty(t, resp.Header.Get("Connection"))
	assert.Empty(t, resp.Header.Get("X-Upstream-Debug"))
	assert.Empty(t, resp.Header.Get("Keep-Alive"))
	assert.Empty(t, resp.Header.Get("Content-Length"))
	assert.Equal(t, "text/html", resp.Header.Get("Content-Type"))
}

func TestFetch_ForwardsBody(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t)
	var received string
	transport.RegisterResponder(http.MethodPost, origin+"/api/inspections",
		func(req *http.Request) (*http.Response, error) {
			b, err := io.ReadAll(req.Body)
			if err != nil {
				return nil, err
			}
			received = string(b)
			return httpmock.NewStringResponse(http.StatusCreated, `{"id":42}`), nil
		})

	payload := `{"vehicle":"Honda PCX","odometer":12034}`
	req, err := http.NewRequest(http.MethodPost, "/api/inspections", strings.NewReader(payload))
	require.NoError(t, err)

	resp, err := c.Fetch(t.Context(), req, shell.FetchDefault)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, payload, received)
}

func TestFetch_TransportErrorIsUnchanged(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t)
	offline := errors.New("dial tcp: connect: network is unreachable")
	transport.RegisterResponder(http.MethodGet, origin+"/", httpmock.NewErrorResponder(offline))

	req, err := http.NewRequest(http.MethodGet, "/", http.NoBody)
	require.NoError(t, err)

	resp, err := c.Fetch(t.Context(), req, shell.FetchNoCache)
	assert.Nil(t, resp)
	require.ErrorIs(t, err, offline)
}

func TestFetch_BodyLimit(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t, WithMaxBodyBytes(8))
	transport.RegisterResponder(http.MethodGet, origin+"/reports/export.pdf",
		httpmock.NewStringResponder(http.StatusOK, "0123456789"))
	transport.RegisterResponder(http.MethodGet, origin+"/icons/icon-72x72.png",
		httpmock.NewStringResponder(http.StatusOK, "01234567"))

	req, err := http.NewRequest(http.MethodGet, "/reports/export.pdf", http.NoBody)
	require.NoError(t, err)
	_, err = c.Fetch(t.Context(), req, shell.FetchDefault)
	require.ErrorIs(t, err, ErrBodyTooLarge)

	req, err = http.NewRequest(http.MethodGet, "/icons/icon-72x72.png", http.NoBody)
	require.NoError(t, err)
	resp, err := c.Fetch(t.Context(), req, shell.FetchDefault)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 8)
}

func TestFetch_RedirectsAreReturned(t *testing.T) {
	t.Parallel()

	c, transport := newMockedClient(t)
	transport.RegisterResponder(http.MethodGet, origin+"/admin",
		func(*http.Request) (*http.Response, error) {
			resp := httpmock.NewStringResponse(http.StatusFound, "")
			resp.Header.Set("Location", "/login")
			return resp, nil
		})

	req, err := http.NewRequest(http.MethodGet, "/admin", http.NoBody)
	require.NoError(t, err)
	resp, err := c.Fetch(t.Context(), req, shell.FetchDefault)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.Status)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		upstream string
		in       string
		want     string
	}{
		{name: "root", upstream: origin, in: "/", want: origin + "/"},
		{name: "query kept", upstream: origin, in: "/vehicles?page=2", want: origin + "/vehicles?page=2"},
		{name: "base path", upstream: origin + "/app/", in: "/login", want: origin + "/app/login"},
		{name: "base path root", upstream: origin + "/app", in: "/", want: origin + "/app/"},
		{name: "other host", upstream: origin, in: "https://cdn.example.com/font.woff2", want: "https://cdn.example.com/font.woff2"},
		{name: "same host absolute", upstream: origin, in: origin + "/manifest.json", want: origin + "/manifest.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(tt.upstream)
			require.NoError(t, err)
			req, err := http.NewRequest(http.MethodGet, tt.in, http.NoBody)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.resolve(req.URL).String())
		})
	}
}

func TestFetch_NoCacheDropsValidators(t *testing.T) {
	t.Parallel()

	validators := map[string]string{
		"If-None-Match":       `"v2"`,
		"If-Modified-Since":   "Mon, 02 Mar 2026 09:00:00 GMT",
		"If-Match":            `"v1"`,
		"If-Unmodified-Since": "Mon, 02 Mar 2026 09:00:00 GMT",
		"If-Range":            `"v1"`,
		"Range":               "bytes=0-99",
	}

	tests := []struct {
		name     string
		mode     shell.FetchMode
		wantKept bool
	}{
		{name: "default keeps validators", mode: shell.FetchDefault, wantKept: true},
		{name: "no-cache drops validators", mode: shell.FetchNoCache, wantKept: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, transport := newMockedClient(t)
			var seen http.Header
			transport.RegisterResponder(http.MethodGet, origin+"/",
				func(req *http.Request) (*http.Response, error) {
					seen = req.Header.Clone()
					if req.Header.Get("If-None-Match") != "" {
						return httpmock.NewStringResponse(http.StatusNotModified, ""), nil
					}
					return httpmock.NewStringResponse(http.StatusOK, "<html>v2</html>"), nil
				})

			req, err := http.NewRequest(http.MethodGet, "/", http.NoBody)
			require.NoError(t, err)
			for name, value := range validators {
				req.Header.Set(name, value)
			}

			resp, err := c.Fetch(t.Context(), req, tt.mode)
			require.NoError(t, err)

			for name, value := range validators {
				if tt.wantKept {
					assert.Equal(t, value, seen.Get(name), name)
				} else {
					assert.Empty(t, seen.Get(name), name)
				}
			}
			if tt.wantKept {
				assert.Equal(t, http.StatusNotModified, resp.Status)
			} else {
				assert.Equal(t, http.StatusOK, resp.Status)
				assert.Equal(t, "<html>v2</html>", string(resp.Body))
			}
			assert.Equal(t, `"v2"`, req.Header.Get("If-None-Match"), "the incoming request is not modified")
		})
	}
}
