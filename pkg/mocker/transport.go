package mocker

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/sophialabs/httpmocker/internal/domain/trace"
	"github.com/sophialabs/httpmocker/internal/infrastructure/usecases"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

var _ http.RoundTripper = (*Transport)(nil)

// Transport is an http.RoundTripper backed by an Interceptor. Forwarded
// requests stream through the next transport untouched unless they are
// recorded, in which case the response body is buffered and the caller
// receives an identical copy.
type Transport struct {
	interceptor *Interceptor
	next        http.RoundTripper
}

// RoundTrip implements http.RoundTripper. Network failures of forwarded
// requests are returned unmodified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	it := t.interceptor
	mode := it.Mode()

	if mode == Disabled {
		it.trace(mode, passthroughEntry(it, req))
		return t.nextTransport().RoundTrip(req)
	}

	body, err := drainBody(req)
	if err != nil {
		return nil, err
	}
	sreq := newRequest(req, body)

	out, err := it.intercept(req.Context(), mode, sreq)
	if err != nil {
		return nil, err
	}

	switch out.Action {
	case Respond:
		return toHTTPResponse(req, out.Response), nil
	case Forward:
		return t.nextTransport().RoundTrip(forwardedRequest(req, body))
	case ForwardAndRecord:
		return t.forwardAndRecord(req, sreq, body)
	default:
		return nil, fmt.Errorf("unknown action %s", out.Action)
	}
}

func (t *Transport) forwardAndRecord(req *http.Request, sreq *scenario.Request, body []byte) (*http.Response, error) {
	ctx := req.Context()
	it := t.interceptor

	resp, err := t.nextTransport().RoundTrip(forwardedRequest(req, body))
	if err != nil {
		if rerr := it.RecordFailure(ctx, sreq, err); rerr != nil {
			it.logger.Warn("failed to record network error", "path", sreq.Path, "error", rerr)
		}
		return nil, err
	}

	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response body for recording: %w", err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	recorded := &scenario.Response{
		Code:    resp.StatusCode,
		Headers: headerPairs(resp.Header),
		Body:    respBody,
	}
	if err := it.Record(ctx, sreq, recorded); err != nil {
		return nil, err
	}
	return resp, nil
}

func (t *Transport) nextTransport() http.RoundTripper {
	if t.next != nil {
		return t.next
	}
	return http.DefaultTransport
}

// forwardedRequest clones req with a fresh copy of the already consumed body.
func forwardedRequest(req *http.Request, body []byte) *http.Request {
	out := req.Clone(req.Context())
	restoreBody(out, body)
	return out
}

func passthroughEntry(it *Interceptor, req *http.Request) TraceEntry {
	e := usecases.NewTraceEntry(it.container.Clock(), &scenario.Request{
		Method: req.Method,
		Host:   req.URL.Hostname(),
		Path:   req.URL.Path,
	})
	e.Source = trace.SourceNetwork
	return e
}
