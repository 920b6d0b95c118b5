package match

import (
	"strconv"
	"strings"

	"github.com/sophialabs/httpmocker/internal/domain/trace"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

// EvalResult holds the outcome of evaluating entries against a request.
type EvalResult struct {
	Matched    *CompiledEntry
	Candidates []trace.CandidateResult
}

// Evaluator scans compiled entries in declaration order.
type Evaluator struct{}

// NewEvaluator creates a new Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate returns the first entry whose predicates all hold. Later entries
// are never preferred, however specific. Every entry up to and including the
// match is reported in Candidates.
func (e *Evaluator) Evaluate(req *scenario.Request, entries []*CompiledEntry) EvalResult {
	result := EvalResult{
		Candidates: make([]trace.CandidateResult, 0, len(entries)),
	}

	for _, ce := range entries {
		cr := trace.CandidateResult{Index: ce.Index, Matched: true}

		for _, fp := range ce.Predicates {
			if ok, reason := check(req, fp); !ok {
				cr.Matched = false
				cr.FailedField = fp.Field
				cr.FailedReason = reason
				break
			}
		}

		result.Candidates = append(result.Candidates, cr)
		if cr.Matched {
			result.Matched = ce
			break
		}
	}

	return result
}

func check(req *scenario.Request, fp FieldPredicate) (bool, string) {
	values, present := fieldValues(req, fp.Field)

	if fp.Presence == Missing {
		if present {
			return false, "field is present"
		}
		return true, ""
	}
	if !present {
		return false, "field is missing"
	}
	for _, v := range values {
		if fp.Predicate(v) {
			return true, ""
		}
	}
	if len(values) == 1 {
		return false, "value did not match: " + values[0]
	}
	return false, "no value matched: " + strings.Join(values, ", ")
}

// fieldValues resolves a field name to the request values it addresses.
// Body extractor fields receive the raw body; their predicates parse it.
func fieldValues(req *scenario.Request, field string) ([]string, bool) {
	switch field {
	case FieldProtocol:
		return []string{req.Scheme}, true
	case FieldMethod:
		return []string{req.Method}, true
	case FieldHost:
		return []string{req.Host}, true
	case FieldPort:
		return []string{strconv.Itoa(req.Port)}, true
	case FieldPath:
		return []string{req.Path}, true
	case FieldHeaderCount:
		return []string{strconv.Itoa(len(req.Headers))}, true
	case FieldParamCount:
		return []string{strconv.Itoa(len(req.Params))}, true
	case FieldBody:
		return []string{string(req.Body)}, req.Body != nil
	}

	switch {
	case strings.HasPrefix(field, HeaderPrefix):
		v := req.HeaderValues(strings.TrimPrefix(field, HeaderPrefix))
		return v, len(v) > 0
	case strings.HasPrefix(field, ParamPrefix):
		v := req.ParamValues(strings.TrimPrefix(field, ParamPrefix))
		return v, len(v) > 0
	case strings.HasPrefix(field, BodyPrefix):
		return []string{string(req.Body)}, req.Body != nil
	}
	return nil, false
}
