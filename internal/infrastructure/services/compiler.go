package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/sophialabs/httpmocker/internal/domain/match"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

// Compiler transforms scenario entries into compiled entries with predicates.
type Compiler struct{}

// NewCompiler creates a new Compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile turns a decoded scenario into a CompiledScenario. Entry order is
// preserved.
func (c *Compiler) Compile(sc scenario.Scenario) (*match.CompiledScenario, error) {
	cs := &match.CompiledScenario{
		Path:    sc.Path,
		Entries: make([]*match.CompiledEntry, 0, len(sc.Entries)),
	}

	for i := range sc.Entries {
		e := &sc.Entries[i]
		predicates, err := c.compileTemplate(&e.Request)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if e.Response != nil && e.Response.BodyFile != "" {
			if _, err := ResolveBodyPath(sc.Path, e.Response.BodyFile); err != nil {
				return nil, fmt.Errorf("entry %d: %w", i, err)
			}
		}
		cs.Entries = append(cs.Entries, &match.CompiledEntry{
			Index:      i,
			Predicates: predicates,
			Response:   e.Response,
			Error:      e.Error,
		})
	}

	return cs, nil
}

func (c *Compiler) compileTemplate(t *scenario.RequestTemplate) ([]match.FieldPredicate, error) {
	var predicates []match.FieldPredicate

	if t.Protocol != "" {
		predicates = append(predicates, match.FieldPredicate{Field: match.FieldProtocol, Predicate: match.EqualFold(t.Protocol)})
	}
	if t.Method != "" {
		predicates = append(predicates, match.FieldPredicate{Field: match.FieldMethod, Predicate: match.EqualFold(t.Method)})
	}
	if t.Host != "" {
		predicates = append(predicates, match.FieldPredicate{Field: match.FieldHost, Predicate: match.EqualFold(t.Host)})
	}
	if t.Port != nil {
		predicates = append(predicates, match.FieldPredicate{Field: match.FieldPort, Predicate: match.Equal(strconv.Itoa(*t.Port))})
	}
	if t.Path != nil {
		p, err := compileStringMatcher(*t.Path)
		if err != nil {
			return nil, fmt.Errorf("path: %w", err)
		}
		predicates = append(predicates, match.FieldPredicate{Field: match.FieldPath, Predicate: p})
	}

	headers, err := compileFields(match.HeaderPrefix, t.Headers, http.CanonicalHeaderKey)
	if err != nil {
		return nil, err
	}
	predicates = append(predicates, headers...)

	params, err := compileFields(match.ParamPrefix, t.Params, nil)
	if err != nil {
		return nil, err
	}
	predicates = append(predicates, params...)

	if t.ExactMatch {
		predicates = append(predicates,
			match.FieldPredicate{Field: match.FieldHeaderCount, Predicate: match.Equal(strconv.Itoa(countPresent(t.Headers)))},
			match.FieldPredicate{Field: match.FieldParamCount, Predicate: match.Equal(strconv.Itoa(countPresent(t.Params)))},
		)
	}

	if t.Body != nil {
		p, err := compileStringMatcher(*t.Body)
		if err != nil {
			return nil, fmt.Errorf("body: %w", err)
		}
		predicates = append(predicates, match.FieldPredicate{Field: match.FieldBody, Predicate: p})
	}

	if t.BodyConditions != nil {
		for _, cond := range t.BodyConditions.Conditions {
			fp, err := compileBodyCondition(cond, t.BodyConditions.ContentType)
			if err != nil {
				return nil, err
			}
			predicates = append(predicates, fp)
		}
	}

	return predicates, nil
}

func compileFields(prefix string, fields []scenario.FieldMatcher, canonical func(string) string) ([]match.FieldPredicate, error) {
	predicates := make([]match.FieldPredicate, 0, len(fields))
	for _, f := range fields {
		name := f.Name
		if canonical != nil {
			name = canonical(name)
		}
		fp := match.FieldPredicate{Field: prefix + name, Predicate: match.Always()}
		switch {
		case f.Absent:
			fp.Presence = match.Missing
		case f.Value != nil:
			p, err := compileStringMatcher(*f.Value)
			if err != nil {
				return nil, fmt.Errorf("%s%s: %w", prefix, f.Name, err)
			}
			fp.Predicate = p
		}
		predicates = append(predicates, fp)
	}
	return predicates, nil
}

// countPresent counts the fields an exact-match request must carry.
func countPresent(fields []scenario.FieldMatcher) int {
	n := 0
	for _, f := range fields {
		if !f.Absent {
			n++
		}
	}
	return n
}

func compileBodyCondition(cond scenario.BodyCondition, contentType string) (match.FieldPredicate, error) {
	matcher, err := compileStringMatcher(cond.Matcher)
	if err != nil {
		return match.FieldPredicate{}, fmt.Errorf("body condition %q: %w", cond.Extractor, err)
	}

	switch strings.ToLower(contentType) {
	case "json":
		p, err := jsonPathPredicate(cond.Extractor, matcher)
		if err != nil {
			return match.FieldPredicate{}, err
		}
		return match.FieldPredicate{Field: match.BodyPrefix + "json:" + cond.Extractor, Predicate: p}, nil
	case "xml":
		p, err := xpathPredicate(cond.Extractor, matcher)
		if err != nil {
			return match.FieldPredicate{}, err
		}
		return match.FieldPredicate{Field: match.BodyPrefix + "xml:" + cond.Extractor, Predicate: p}, nil
	default:
		// No content type: match against the raw body.
		return match.FieldPredicate{Field: match.FieldBody, Predicate: matcher}, nil
	}
}

func compileStringMatcher(m scenario.StringMatcher) (match.Predicate, error) {
	switch m.Kind {
	case scenario.MatchRegex:
		return regexPredicate(m.Value)
	case scenario.MatchGlob:
		return globPredicate(m.Value)
	case scenario.MatchBase64:
		raw, err := base64.StdEncoding.DecodeString(m.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 matcher: %w", err)
		}
		return match.Equal(string(raw)), nil
	default:
		return match.Equal(m.Value), nil
	}
}

// regexPredicate matches when the whole input matches the pattern.
func regexPredicate(pattern string) (match.Predicate, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	return re.MatchString, nil
}

func globPredicate(pattern string) (match.Predicate, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", pattern)
	}
	return func(s string) bool {
		ok, err := doublestar.Match(pattern, s)
		return err == nil && ok
	}, nil
}

// jsonPathPredicate extracts a value via JSONPath and matches it.
func jsonPathPredicate(expr string, valueMatcher match.Predicate) (match.Predicate, error) {
	eval, err := jsonpath.New(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", expr, err)
	}
	return func(body string) bool {
		var data any
		if err := decodeJSON(strings.NewReader(body), &data); err != nil {
			return false
		}

		result, err := eval(context.Background(), data)
		if err != nil {
			return false
		}

		return valueMatcher(fmt.Sprintf("%v", result))
	}, nil
}

// xpathPredicate extracts a value via XPath and matches it.
func xpathPredicate(expr string, valueMatcher match.Predicate) (match.Predicate, error) {
	compiled, err := xpath.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid XPath %q: %w", expr, err)
	}
	return func(body string) bool {
		doc, err := xmlquery.Parse(strings.NewReader(body))
		if err != nil {
			return false
		}

		node := xmlquery.QuerySelector(doc, compiled)
		if node == nil {
			return false
		}

		return valueMatcher(node.InnerText())
	}, nil
}

// ResolveBodyPath resolves a body file name against the directory of its
// scenario. The result is an fs.FS path; references that leave the scenario
// root are rejected.
func ResolveBodyPath(scenarioPath, bodyFile string) (string, error) {
	if path.IsAbs(bodyFile) {
		return "", fmt.Errorf("absolute paths not allowed in body-file: %s", bodyFile)
	}
	resolved := path.Join(path.Dir(scenarioPath), bodyFile)
	if !fs.ValidPath(resolved) {
		return "", fmt.Errorf("body-file path %q escapes the scenario root", bodyFile)
	}
	return resolved, nil
}
