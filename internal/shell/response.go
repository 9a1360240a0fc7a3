package shell

import (
	"net/http"
	"time"
)

// Response is an immutable snapshot of a network response. Entries stored in
// a Generation are replaced wholesale and never mutated in place.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Clone returns a deep copy so the caller and the cache never share buffers.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	out := &Response{
		Status:   r.Status,
		Header:   r.Header.Clone(),
		StoredAt: r.StoredAt,
	}
	if r.Body != nil {
		out.Body = make([]byte, len(r.Body))
		copy(out.Body, r.Body)
	}
	return out
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status <= 299
}

// privateHeaders belong to the client that triggered the fetch and are never
// replayed from a shared generation.
var privateHeaders = []string{"Set-Cookie", "Set-Cookie2"}

// snapshot returns the copy of r that goes into a generation.
func (r *Response) snapshot(storedAt time.Time) *Response {
	out := r.Clone()
	for _, name := range privateHeaders {
		out.Header.Del(name)
	}
	out.StoredAt = storedAt
	return out
}

// storable reports whether a response may be written into a generation.
// Partial content cannot be replayed for a different range request.
func (r *Response) storable() bool {
	return r.OK() && r.Status != http.StatusPartialContent
}
