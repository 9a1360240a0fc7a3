package shell

import (
	"context"
	"net/http"

	"github.com/ridecheck/ridecheck/internal/errors"
	"github.com/ridecheck/ridecheck/internal/logger"
)

// Route answers an intercepted request. Navigations go network-first with a
// cache fallback; everything else goes cache-first. Requests outside the
// caching policy are passed to the network untouched. Network errors are
// returned unchanged.
func (c *Controller) Route(ctx context.Context, req *http.Request) (*Response, error) {
	if c.State() != StateActive {
		return nil, ErrNotActive
	}
	if !c.cacheable(req) {
		resp, err := c.fetcher.Fetch(ctx, req, FetchDefault)
		if err != nil {
			c.metrics.RecordNetworkFailure(StrategyPassthrough)
			return nil, err
		}
		c.metrics.RecordRoute(StrategyPassthrough, SourceNetwork)
		return resp, nil
	}
	if IsNavigation(req) {
		return c.networkFirst(ctx, upstreamRequest(req))
	}
	return c.cacheFirst(ctx, upstreamRequest(req))
}

func (c *Controller) networkFirst(ctx context.Context, req *http.Request) (*Response, error) {
	key := RequestKey(req)
	gen := c.currentGeneration()

	resp, fetchErr := c.fetcher.Fetch(ctx, req, FetchNoCache)
	if fetchErr == nil {
		c.storeLater(ctx, gen, key, resp)
		c.metrics.RecordRoute(StrategyNetworkFirst, SourceNetwork)
		return resp, nil
	}
	c.metrics.RecordNetworkFailure(StrategyNetworkFirst)

	cached, err := gen.Match(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.log.Warn("cache lookup failed", logger.String("key", key), logger.Error(err))
		}
		return nil, fetchErr
	}
	c.metrics.RecordRoute(StrategyNetworkFirst, SourceCacheFallback)
	return cached, nil
}

func (c *Controller) cacheFirst(ctx context.Context, req *http.Request) (*Response, error) {
	key := RequestKey(req)
	gen := c.currentGeneration()

	cached, err := gen.Match(ctx, key)
	if err == nil {
		c.metrics.RecordRoute(StrategyCacheFirst, SourceCache)
		return cached, nil
	}
	if !errors.Is(err, ErrNotFound) {
		c.log.Warn("cache lookup failed", logger.String("key", key), logger.Error(err))
	}

	resp, err := c.fetcher.Fetch(ctx, req, FetchDefault)
	if err != nil {
		c.metrics.RecordNetworkFailure(StrategyCacheFirst)
		return nil, err
	}
	c.storeLater(ctx, gen, key, resp)
	c.metrics.RecordRoute(StrategyCacheFirst, SourceNetwork)
	return resp, nil
}

// storeLater writes a snapshot of resp into gen as a detached task. The
// caller gets the live response, private headers included, regardless of how
// the write ends.
func (c *Controller) storeLater(ctx context.Context, gen Generation, key string, resp *Response) {
	if !resp.storable() {
		return
	}
	stored := resp.snapshot(c.now())
	c.writer.Go(ctx, key, func(ctx context.Context) error {
		return gen.Put(ctx, key, stored)
	})
}
