// Package match evaluates requests against compiled scenario entries.
package match

import (
	"strings"

	"github.com/sophialabs/httpmocker/pkg/scenario"
)

// Predicate tests a string value and returns true if it matches.
type Predicate func(string) bool

// Always returns a predicate that always matches.
func Always() Predicate {
	return func(string) bool { return true }
}

// Equal matches v exactly.
func Equal(v string) Predicate {
	return func(s string) bool { return s == v }
}

// EqualFold matches v ignoring case.
func EqualFold(v string) Predicate {
	return func(s string) bool { return strings.EqualFold(s, v) }
}

// Presence selects how a field predicate treats missing and repeated values.
type Presence int

const (
	// AnyValue requires the field to be present with at least one value
	// satisfying the predicate.
	AnyValue Presence = iota
	// Missing requires the field to be absent. The predicate is ignored.
	Missing
)

// Field names understood by the evaluator. Headers, params and body
// extractors are addressed with a prefix: "header:Accept", "param:q",
// "body:json:$.name".
const (
	FieldProtocol    = "protocol"
	FieldMethod      = "method"
	FieldHost        = "host"
	FieldPort        = "port"
	FieldPath        = "path"
	FieldBody        = "body"
	FieldHeaderCount = "headers:count"
	FieldParamCount  = "params:count"

	HeaderPrefix = "header:"
	ParamPrefix  = "param:"
	BodyPrefix   = "body:"
)

// FieldPredicate binds a named request field to its compiled predicate.
type FieldPredicate struct {
	Field     string
	Predicate Predicate
	Presence  Presence
}

// CompiledEntry is one scenario entry with its matcher compiled to predicates.
type CompiledEntry struct {
	// Index is the position of the entry in its scenario file.
	Index      int
	Predicates []FieldPredicate
	Response   *scenario.ResponseDescriptor
	Error      *scenario.NetworkError
}

// CompiledScenario is a parsed and compiled scenario file.
type CompiledScenario struct {
	// Path is the scenario path as produced by the filing policy.
	Path    string
	Entries []*CompiledEntry
}
