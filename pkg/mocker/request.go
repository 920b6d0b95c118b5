package mocker

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/sophialabs/httpmocker/pkg/scenario"
)

// FromHTTP converts req for matching. The body is read in full and
// req.Body is replaced with an identical, re-readable copy.
func FromHTTP(req *http.Request) (*scenario.Request, error) {
	body, err := drainBody(req)
	if err != nil {
		return nil, err
	}
	restoreBody(req, body)
	return newRequest(req, body), nil
}

// drainBody reads and closes req.Body. It returns nil when the request has
// no body.
func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	return body, nil
}

func restoreBody(req *http.Request, body []byte) {
	if body == nil {
		if req.Body != nil {
			req.Body = http.NoBody
		}
		return
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	req.ContentLength = int64(len(body))
}

func newRequest(req *http.Request, body []byte) *scenario.Request {
	u := req.URL
	scheme := strings.ToLower(u.Scheme)
	if scheme == "" {
		scheme = "http"
		if req.TLS != nil {
			scheme = "https"
		}
	}

	hostport := u.Host
	if hostport == "" {
		hostport = req.Host
	}
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		host, portStr = hostport, ""
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = defaultPort(scheme)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	p := u.Path
	if p == "" {
		p = "/"
	}

	return &scenario.Request{
		Method:  method,
		Scheme:  scheme,
		Host:    strings.ToLower(strings.Trim(host, "[]")),
		Port:    port,
		Path:    p,
		Params:  parseQuery(u.RawQuery),
		Headers: headerPairs(req.Header),
		Body:    body,
	}
}

func defaultPort(scheme string) int {
	if scheme == "https" {
		return 443
	}
	return 80
}

// parseQuery keeps parameters in query order, duplicates included.
func parseQuery(raw string) []scenario.KeyValue {
	var params []scenario.KeyValue
	for pair := range strings.SplitSeq(raw, "&") {
		if pair == "" {
			continue
		}
		name, value, _ := strings.Cut(pair, "=")
		if n, err := url.QueryUnescape(name); err == nil {
			name = n
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		params = append(params, scenario.KeyValue{Name: name, Value: value})
	}
	return params
}

// headerPairs flattens h with names sorted and values in order.
func headerPairs(h http.Header) []scenario.KeyValue {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	slices.Sort(names)

	var pairs []scenario.KeyValue
	for _, name := range names {
		for _, v := range h[name] {
			pairs = append(pairs, scenario.KeyValue{Name: name, Value: v})
		}
	}
	return pairs
}

func toHTTPResponse(req *http.Request, r *scenario.Response) *http.Response {
	header := make(http.Header, len(r.Headers))
	for _, kv := range r.Headers {
		header.Add(kv.Name, kv.Value)
	}
	if header.Get("Content-Type") == "" && r.MediaType != "" {
		header.Set("Content-Type", r.MediaType)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", r.Code, http.StatusText(r.Code)),
		StatusCode:    r.Code,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(r.Body)),
		ContentLength: int64(len(r.Body)),
		Request:       req,
	}
}
