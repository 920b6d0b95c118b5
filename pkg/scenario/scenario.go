// Package scenario holds the domain model shared by the interception engine,
// the scenario mappers and the filing policies.
package scenario

import (
	"encoding/base64"
	"strings"
	"time"
)

// MatchKind selects how a StringMatcher compares values.
type MatchKind int

const (
	MatchExact MatchKind = iota
	MatchRegex
	MatchGlob
	// MatchBase64 compares raw bytes; Value holds their standard base64
	// encoding so that non-UTF-8 bodies survive text scenario formats.
	MatchBase64
)

const base64Prefix = "base64:"

// StringMatcher represents a string matching rule.
//
// On disk a value prefixed with "=" is an exact match, a value prefixed with
// "~" is a regular expression that must match the whole input, and anything
// else is an exact match. A value prefixed with "base64:" is an exact match on
// the decoded bytes. Path matchers additionally treat unprefixed values
// containing glob metacharacters as doublestar globs.
type StringMatcher struct {
	Kind  MatchKind
	Value string
}

// Exact returns a matcher that requires the input to equal v.
func Exact(v string) StringMatcher { return StringMatcher{Kind: MatchExact, Value: v} }

// Regex returns a matcher that requires the whole input to match the pattern.
func Regex(pattern string) StringMatcher { return StringMatcher{Kind: MatchRegex, Value: pattern} }

// Glob returns a path glob matcher.
func Glob(pattern string) StringMatcher { return StringMatcher{Kind: MatchGlob, Value: pattern} }

// Bytes returns a matcher that requires the input to equal b byte for byte.
func Bytes(b []byte) StringMatcher {
	return StringMatcher{Kind: MatchBase64, Value: base64.StdEncoding.EncodeToString(b)}
}

// ParseMatcher decodes the on-disk form of a matcher.
func ParseMatcher(raw string) StringMatcher {
	switch {
	case strings.HasPrefix(raw, base64Prefix):
		return StringMatcher{Kind: MatchBase64, Value: raw[len(base64Prefix):]}
	case strings.HasPrefix(raw, "="):
		return Exact(raw[1:])
	case strings.HasPrefix(raw, "~"):
		return Regex(raw[1:])
	default:
		return Exact(raw)
	}
}

// ParsePathMatcher decodes a path matcher, recognizing unprefixed globs.
func ParsePathMatcher(raw string) StringMatcher {
	if !strings.HasPrefix(raw, "=") && !strings.HasPrefix(raw, "~") && hasGlobMeta(raw) {
		return Glob(raw)
	}
	return ParseMatcher(raw)
}

// String encodes the matcher in its on-disk form. Exact values that could be
// mistaken for another kind are escaped with "=".
func (m StringMatcher) String() string {
	switch m.Kind {
	case MatchRegex:
		return "~" + m.Value
	case MatchGlob:
		return m.Value
	case MatchBase64:
		return base64Prefix + m.Value
	default:
		if strings.HasPrefix(m.Value, "=") || strings.HasPrefix(m.Value, "~") ||
			strings.HasPrefix(m.Value, base64Prefix) || hasGlobMeta(m.Value) {
			return "=" + m.Value
		}
		return m.Value
	}
}

func hasGlobMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// FieldMatcher is a predicate on a named header or query parameter.
// A nil Value only checks presence; Absent requires the field to be missing.
type FieldMatcher struct {
	Name   string
	Value  *StringMatcher
	Absent bool
}

// BodyConditions extract values from a structured request body and match them.
type BodyConditions struct {
	// ContentType is "json" or "xml".
	ContentType string
	Conditions  []BodyCondition
}

// BodyCondition represents a single body extraction + matching rule.
type BodyCondition struct {
	// Extractor is a JSONPath or XPath expression.
	Extractor string
	Matcher   StringMatcher
}

// RequestTemplate is the matcher half of an entry. Every nil or empty criterion
// is a wildcard.
type RequestTemplate struct {
	// ExactMatch requires the request to carry exactly as many headers and
	// params as the template lists.
	ExactMatch     bool
	Protocol       string
	Method         string
	Host           string
	Port           *int
	Path           *StringMatcher
	Headers        []FieldMatcher
	Params         []FieldMatcher
	Body           *StringMatcher
	BodyConditions *BodyConditions
}

// RateLimit configures a token bucket shared by every request served from one entry.
type RateLimit struct {
	Rate  float64
	Burst int
}

// ResponseDescriptor describes one possible response.
type ResponseDescriptor struct {
	Delay     time.Duration
	Code      int
	MediaType string
	Headers   []KeyValue
	// Body is served inline; when empty, BodyFile names a file relative to
	// the scenario file.
	Body      string
	BodyFile  string
	RateLimit *RateLimit
}

// NetworkError is a recorded transport failure replayed instead of a response.
type NetworkError struct {
	Type    string
	Message string
}

// Entry pairs a request template with either a response or a network error.
type Entry struct {
	Request  RequestTemplate
	Response *ResponseDescriptor
	Error    *NetworkError
}

// Scenario is the ordered entry list stored at one path. Order is file order.
type Scenario struct {
	Path    string
	Entries []Entry
}

// Response is a fully materialized response ready to hand back to a client.
type Response struct {
	Code      int
	MediaType string
	Headers   []KeyValue
	Body      []byte
}
