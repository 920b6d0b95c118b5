package scenario

import (
	"bytes"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// KeyValue is an ordered name/value pair used for headers and query parameters.
type KeyValue struct {
	Name  string
	Value string
}

// Request is an HTTP request in domain terms, free of net/http.
// It is a value object: two requests with identical fields are equal.
type Request struct {
	Method  string
	Scheme  string
	Host    string
	Port    int
	Path    string
	Params  []KeyValue
	Headers []KeyValue
	// Body is nil when the request carries no body.
	Body []byte
}

// HeaderValues returns every value of the named header. Names compare case-insensitively.
func (r *Request) HeaderValues(name string) []string {
	return lookup(r.Headers, name, true)
}

// ParamValues returns every value of the named query parameter.
func (r *Request) ParamValues(name string) []string {
	return lookup(r.Params, name, false)
}

// HasHeader reports whether the named header is present at least once.
func (r *Request) HasHeader(name string) bool {
	return len(r.HeaderValues(name)) > 0
}

// HasParam reports whether the named query parameter is present at least once.
func (r *Request) HasParam(name string) bool {
	return len(r.ParamValues(name)) > 0
}

// Segments splits the path into its non-empty segments.
func (r *Request) Segments() []string {
	parts := strings.Split(r.Path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Equal reports structural equality. Header names are compared in canonical form.
func (r *Request) Equal(o *Request) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Key() == o.Key()
}

// Key returns a canonical string that identifies the request by value.
// Parameter and header order is normalized so that equal requests share a key.
func (r *Request) Key() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Method))
	b.WriteByte(' ')
	b.WriteString(strings.ToLower(r.Scheme))
	b.WriteString("://")
	b.WriteString(strings.ToLower(r.Host))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(r.Port))
	b.WriteString(r.Path)
	writePairs(&b, '?', r.Params, false)
	writePairs(&b, '#', r.Headers, true)
	if r.Body != nil {
		b.WriteByte('\n')
		b.Write(r.Body)
	}
	return b.String()
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	c := *r
	c.Params = append([]KeyValue(nil), r.Params...)
	c.Headers = append([]KeyValue(nil), r.Headers...)
	if r.Body != nil {
		c.Body = bytes.Clone(r.Body)
	}
	return &c
}

func lookup(pairs []KeyValue, name string, canonical bool) []string {
	if canonical {
		name = http.CanonicalHeaderKey(name)
	}
	var out []string
	for _, kv := range pairs {
		n := kv.Name
		if canonical {
			n = http.CanonicalHeaderKey(n)
		}
		if n == name {
			out = append(out, kv.Value)
		}
	}
	return out
}

func writePairs(b *strings.Builder, sep byte, pairs []KeyValue, canonical bool) {
	sorted := make([]KeyValue, len(pairs))
	copy(sorted, pairs)
	if canonical {
		for i := range sorted {
			sorted[i].Name = http.CanonicalHeaderKey(sorted[i].Name)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Value < sorted[j].Value
	})
	for _, kv := range sorted {
		b.WriteByte(sep)
		b.WriteString(strconv.Quote(kv.Name))
		b.WriteByte('=')
		b.WriteString(strconv.Quote(kv.Value))
	}
}
