package shell

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ridecheck/ridecheck/internal/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errOffline = errors.New("dial tcp: network is unreachable")

// fakeFetcher serves canned responses keyed by RequestKey.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*Response
	failures  map[string]error
	offline   bool
	calls     map[string]int
	modes     map[string]FetchMode
	headers   map[string]http.Header
	// revalidating makes the origin answer validators with 304.
	revalidating bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		responses: make(map[string]*Response),
		failures:  make(map[string]error),
		calls:     make(map[string]int),
		modes:     make(map[string]FetchMode),
		headers:   make(map[string]http.Header),
	}
}

func (f *fakeFetcher) serve(key string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = &Response{
		Status: status,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   []byte(body),
	}
}

func (f *fakeFetcher) serveHeader(key string, status int, body string, header http.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[key] = &Response{Status: status, Header: header, Body: []byte(body)}
}

func (f *fakeFetcher) setRevalidating(on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revalidating = on
}

func (f *fakeFetcher) lastHeader(key string) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[key]
}

func (f *fakeFetcher) fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[key] = err
}

func (f *fakeFetcher) setOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func (f *fakeFetcher) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func (f *fakeFetcher) lastMode(key string) FetchMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modes[key]
}

func (f *fakeFetcher) Fetch(_ context.Context, req *http.Request, mode FetchMode) (*Response, error) {
	key := RequestKey(req)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	f.modes[key] = mode
	f.headers[key] = req.Header.Clone()
	if f.offline {
		return nil, errOffline
	}
	if err, ok := f.failures[key]; ok {
		return nil, err
	}
	if f.revalidating && (req.Header.Get("If-None-Match") != "" || req.Header.Get("If-Modified-Since") != "") {
		return &Response{Status: http.StatusNotModified, Header: http.Header{}}, nil
	}
	if resp, ok := f.responses[key]; ok {
		return resp.Clone(), nil
	}
	return &Response{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("not found")}, nil
}

// failingStorage wraps a Storage so that every Put fails.
type failingStorage struct {
	Storage
	putErr error
}

func (s *failingStorage) Open(ctx context.Context, name string) (Generation, error) {
	gen, err := s.Storage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &failingGeneration{Generation: gen, putErr: s.putErr}, nil
}

type failingGeneration struct {
	Generation
	putErr error
}

func (g *failingGeneration) Put(context.Context, string, *Response) error { return g.putErr }

// gatedStorage holds every Put while armed until release is closed.
type gatedStorage struct {
	Storage
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGatedStorage() *gatedStorage {
	return &gatedStorage{
		Storage: NewMemoryStorage(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (s *gatedStorage) Open(ctx context.Context, name string) (Generation, error) {
	gen, err := s.Storage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &gatedGeneration{Generation: gen, s: s}, nil
}

type gatedGeneration struct {
	Generation
	s *gatedStorage
}

func (g *gatedGeneration) Put(ctx context.Context, key string, resp *Response) error {
	if g.s.armed.Load() {
		g.s.entered <- struct{}{}
		<-g.s.release
	}
	return g.Generation.Put(ctx, key, resp)
}

type fakeNotifier struct {
	mu        sync.Mutex
	shown     []Notification
	dismissed []string
	showErr   error
}

func (n *fakeNotifier) Show(_ context.Context, notif Notification) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.shown = append(n.shown, notif)
	if n.showErr != nil {
		return "", n.showErr
	}
	return "n-1", nil
}

func (n *fakeNotifier) Dismiss(_ context.Context, id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dismissed = append(n.dismissed, id)
	return nil
}

type fakeClients struct {
	mu      sync.Mutex
	claimed []string
	opened  []string
}

func (c *fakeClients) Claim(_ context.Context, generation string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claimed = append(c.claimed, generation)
	return nil
}

func (c *fakeClients) OpenWindow(_ context.Context, url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opened = append(c.opened, url)
	return nil
}

type countingMetrics struct {
	storeFailures   atomic.Int64
	networkFailures atomic.Int64
	installsOK      atomic.Int64
	installsFailed  atomic.Int64
	deleted         atomic.Int64
	cacheHits       atomic.Int64
}

func (m *countingMetrics) RecordRoute(_ Strategy, source Source) {
	if source == SourceCache {
		m.cacheHits.Add(1)
	}
}
func (m *countingMetrics) RecordNetworkFailure(Strategy) { m.networkFailures.Add(1) }
func (m *countingMetrics) RecordStoreFailure()           { m.storeFailures.Add(1) }
func (m *countingMetrics) RecordInstall(ok bool) {
	if ok {
		m.installsOK.Add(1)
		return
	}
	m.installsFailed.Add(1)
}
func (m *countingMetrics) RecordGenerationDeleted() { m.deleted.Add(1) }

// smallManifest keeps tests independent of the default shell layout.
var smallManifest = []string{"/", "/manifest.json"}

func seedFetcher(f *fakeFetcher) {
	f.serve("GET /", http.StatusOK, "<html>shell</html>")
	f.serve("GET /manifest.json", http.StatusOK, `{"name":"RideCheck"}`)
}

func newTestController(t *testing.T, name string, storage Storage, fetcher Fetcher, opts ...Option) *Controller {
	t.Helper()
	ctrl, err := NewController(Config{CacheName: name, Manifest: smallManifest}, storage, fetcher, opts...)
	require.NoError(t, err)
	t.Cleanup(ctrl.Flush)
	return ctrl
}

// activate runs the full lifecycle up to ACTIVE.
func activate(t *testing.T, ctrl *Controller) {
	t.Helper()
	require.NoError(t, ctrl.OnInstall(t.Context()))
	require.NoError(t, ctrl.SkipWaiting())
	require.NoError(t, ctrl.OnActivate(t.Context()))
	require.Equal(t, StateActive, ctrl.State())
}

func navigationRequest(path string) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, path, http.NoBody)
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	return req
}

func assetRequest(path string) *http.Request {
	req, _ := http.NewRequest(http.MethodGet, path, http.NoBody)
	req.Header.Set("Accept", "image/png")
	return req
}

func mustMatch(t *testing.T, gen Generation, key string) *Response {
	t.Helper()
	resp, err := gen.Match(t.Context(), key)
	require.NoError(t, err, "expected %q to be cached", key)
	return resp
}
