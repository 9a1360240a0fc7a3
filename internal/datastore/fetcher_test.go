package datastore

import (
	"context"
	"net/http"

	"github.com/ridecheck/ridecheck/internal/shell"
)

// staticFetcher answers from a fixed key -> body table.
type staticFetcher map[string]string

func (f staticFetcher) Fetch(_ context.Context, req *http.Request, _ shell.FetchMode) (*shell.Response, error) {
	body, ok := f[shell.RequestKey(req)]
	if !ok {
		return &shell.Response{Status: http.StatusNotFound, Header: http.Header{}}, nil
	}
	return &shell.Response{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"text/plain"}},
		Body:   []byte(body),
	}, nil
}
