// Package transporttest provides a scripted Transport for tests.
package transporttest

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/florianilch/copilot-proxy/internal/transport"
)

// Call records one request made through the fake.
type Call struct {
	Method string
	URL    string
	Body   any
	Header http.Header
}

// Result is one scripted outcome.
type Result struct {
	Response *transport.Response
	Stream   string
	Err      error
}

// JSON scripts a response with the given status and raw JSON body.
func JSON(status int, body string) Result {
	return Result{Response: &transport.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"application/json"}},
		Body:       []byte(body),
	}}
}

// SSE scripts a successful streaming response.
func SSE(stream string) Result {
	return Result{Stream: stream}
}

// Failure scripts a transport error.
func Failure(err error) Result {
	return Result{Err: err}
}

// Fake replays scripted results in order; the last result repeats once the
// script is exhausted. It is safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	results []Result
	calls   []Call
}

// Compile-time check that Fake implements transport.Transport.
var _ transport.Transport = (*Fake)(nil)

// New creates a fake that replays results.
func New(results ...Result) *Fake {
	return &Fake{results: results}
}

// Push appends results to the script.
func (f *Fake) Push(results ...Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, results...)
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Post implements transport.Transport.
func (f *Fake) Post(ctx context.Context, url string, body any, header http.Header) (*transport.Response, error) {
	r := f.next(Call{Method: http.MethodPost, URL: url, Body: body, Header: header})
	return r.Response, r.Err
}

// Get implements transport.Transport.
func (f *Fake) Get(ctx context.Context, url string, header http.Header) (*transport.Response, error) {
	r := f.next(Call{Method: http.MethodGet, URL: url, Header: header})
	return r.Response, r.Err
}

// PostStreaming implements transport.Transport. A scripted Response with a
// non-2xx status becomes a *transport.StatusError.
func (f *Fake) PostStreaming(ctx context.Context, url string, body any, header http.Header) (io.ReadCloser, error) {
	r := f.next(Call{Method: http.MethodPost, URL: url, Body: body, Header: header})
	if r.Err != nil {
		return nil, r.Err
	}
	if r.Response != nil && !r.Response.OK() {
		return nil, &transport.StatusError{StatusCode: r.Response.StatusCode, Body: r.Response.Body}
	}
	return io.NopCloser(strings.NewReader(r.Stream)), nil
}

func (f *Fake) next(call Call) Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call)
	if len(f.results) == 0 {
		return Result{Err: io.ErrUnexpectedEOF}
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r
}
