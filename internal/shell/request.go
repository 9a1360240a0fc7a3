package shell

import (
	"net/http"
	"strings"
)

// RequestKey returns the cache identity of a request: method plus URL.
// The body is deliberately not part of the key, so two POSTs to the same URL
// share an entry. Unsafe methods are excluded from caching unless the
// controller is configured otherwise.
func RequestKey(req *http.Request) string {
	return req.Method + " " + requestURL(req)
}

func requestURL(req *http.Request) string {
	if req.URL == nil {
		return "/"
	}
	if req.URL.IsAbs() {
		return req.URL.String()
	}
	return req.URL.RequestURI()
}

// conditionalHeaders make the origin answer against the browser's own copy
// with 304 or 206, neither of which can be stored.
var conditionalHeaders = []string{
	"If-None-Match",
	"If-Modified-Since",
	"If-Match",
	"If-Unmodified-Since",
	"If-Range",
	"Range",
}

// StripConditional removes validator and range headers from h.
func StripConditional(h http.Header) {
	for _, name := range conditionalHeaders {
		h.Del(name)
	}
}

// upstreamRequest copies req without conditional headers so the origin sends
// a complete response the generation can hold.
func upstreamRequest(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	StripConditional(out.Header)
	return out
}

// IsNavigation reports whether req loads a new document context: either the
// browser marked it as a navigation or it asks for HTML.
func IsNavigation(req *http.Request) bool {
	if strings.EqualFold(req.Header.Get("Sec-Fetch-Mode"), "navigate") {
		return true
	}
	return strings.Contains(strings.ToLower(req.Header.Get("Accept")), "text/html")
}

// cacheable decides whether the routing policy applies to req at all.
func (c *Controller) cacheable(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead:
	default:
		if !c.cfg.CacheUnsafeMethods {
			return false
		}
	}
	if req.Header.Get("Authorization") != "" && !c.cfg.CacheAuthorized {
		return false
	}
	return true
}
