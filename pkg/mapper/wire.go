package mapper

import (
	"fmt"
	"time"

	"github.com/sophialabs/httpmocker/pkg/scenario"
)

// wireEntry is the serialization target shared by the JSON and YAML mappers.
type wireEntry struct {
	Request  wireRequest   `json:"request" yaml:"request"`
	Response *wireResponse `json:"response,omitempty" yaml:"response,omitempty"`
	Error    *wireError    `json:"error,omitempty" yaml:"error,omitempty"`
}

type wireRequest struct {
	ExactMatch     bool                `json:"exact-match,omitempty" yaml:"exact-match,omitempty"`
	Protocol       string              `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Method         string              `json:"method,omitempty" yaml:"method,omitempty"`
	Host           string              `json:"host,omitempty" yaml:"host,omitempty"`
	Port           *int                `json:"port,omitempty" yaml:"port,omitempty"`
	Path           *string             `json:"path,omitempty" yaml:"path,omitempty"`
	Headers        []wireHeader        `json:"headers,omitempty" yaml:"headers,omitempty"`
	Params         wireParams          `json:"params,omitempty" yaml:"params,omitempty"`
	Body           *string             `json:"body,omitempty" yaml:"body,omitempty"`
	BodyConditions *wireBodyConditions `json:"body-conditions,omitempty" yaml:"body-conditions,omitempty"`
}

type wireHeader struct {
	Name   string  `json:"name" yaml:"name"`
	Value  *string `json:"value,omitempty" yaml:"value,omitempty"`
	Absent bool    `json:"absent,omitempty" yaml:"absent,omitempty"`
}

type wireKeyValue struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

type wireBodyConditions struct {
	ContentType string          `json:"content-type" yaml:"content-type"`
	Conditions  []wireCondition `json:"conditions" yaml:"conditions"`
}

type wireCondition struct {
	Extractor string `json:"extractor" yaml:"extractor"`
	Matcher   string `json:"matcher" yaml:"matcher"`
}

type wireResponse struct {
	Delay     int64          `json:"delay,omitempty" yaml:"delay,omitempty"`
	Code      int            `json:"code,omitempty" yaml:"code,omitempty"`
	MediaType string         `json:"media-type,omitempty" yaml:"media-type,omitempty"`
	Headers   []wireKeyValue `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body      string         `json:"body,omitempty" yaml:"body,omitempty"`
	BodyFile  string         `json:"body-file,omitempty" yaml:"body-file,omitempty"`
	RateLimit *wireRateLimit `json:"rate-limit,omitempty" yaml:"rate-limit,omitempty"`
}

type wireRateLimit struct {
	Rate  float64 `json:"rate" yaml:"rate"`
	Burst int     `json:"burst" yaml:"burst"`
}

type wireError struct {
	Type    string `json:"type" yaml:"type"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// paramKind encodes the three forms a param value takes on disk:
// a string matcher, null (must be absent) or true (must be present).
type paramKind int

const (
	paramValue paramKind = iota
	paramAbsent
	paramPresent
)

type wireParam struct {
	Name  string
	Kind  paramKind
	Value string
}

// wireParams is an ordered object; duplicate names are allowed.
type wireParams []wireParam

func toEntries(in []wireEntry) ([]scenario.Entry, error) {
	out := make([]scenario.Entry, 0, len(in))
	for i := range in {
		e, err := toEntry(&in[i])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

func toEntry(w *wireEntry) (scenario.Entry, error) {
	if w.Response == nil && w.Error == nil {
		return scenario.Entry{}, fmt.Errorf("entry has neither response nor error")
	}

	e := scenario.Entry{Request: toTemplate(&w.Request)}
	if w.Response != nil {
		e.Response = toDescriptor(w.Response)
	}
	if w.Error != nil {
		e.Error = &scenario.NetworkError{Type: w.Error.Type, Message: w.Error.Message}
	}
	return e, nil
}

func toTemplate(w *wireRequest) scenario.RequestTemplate {
	t := scenario.RequestTemplate{
		ExactMatch: w.ExactMatch,
		Protocol:   w.Protocol,
		Method:     w.Method,
		Host:       w.Host,
		Port:       w.Port,
	}
	if w.Path != nil {
		m := scenario.ParsePathMatcher(*w.Path)
		t.Path = &m
	}
	if w.Body != nil {
		m := scenario.ParseMatcher(*w.Body)
		t.Body = &m
	}
	for _, h := range w.Headers {
		fm := scenario.FieldMatcher{Name: h.Name, Absent: h.Absent}
		if h.Value != nil && !h.Absent {
			m := scenario.ParseMatcher(*h.Value)
			fm.Value = &m
		}
		t.Headers = append(t.Headers, fm)
	}
	for _, p := range w.Params {
		fm := scenario.FieldMatcher{Name: p.Name}
		switch p.Kind {
		case paramAbsent:
			fm.Absent = true
		case paramValue:
			m := scenario.ParseMatcher(p.Value)
			fm.Value = &m
		}
		t.Params = append(t.Params, fm)
	}
	if w.BodyConditions != nil {
		bc := &scenario.BodyConditions{ContentType: w.BodyConditions.ContentType}
		for _, c := range w.BodyConditions.Conditions {
			bc.Conditions = append(bc.Conditions, scenario.BodyCondition{
				Extractor: c.Extractor,
				Matcher:   scenario.ParseMatcher(c.Matcher),
			})
		}
		t.BodyConditions = bc
	}
	return t
}

func toDescriptor(w *wireResponse) *scenario.ResponseDescriptor {
	d := &scenario.ResponseDescriptor{
		Delay:     time.Duration(w.Delay) * time.Millisecond,
		Code:      w.Code,
		MediaType: w.MediaType,
		Body:      w.Body,
		BodyFile:  w.BodyFile,
	}
	for _, h := range w.Headers {
		d.Headers = append(d.Headers, scenario.KeyValue{Name: h.Name, Value: h.Value})
	}
	if w.RateLimit != nil {
		d.RateLimit = &scenario.RateLimit{Rate: w.RateLimit.Rate, Burst: w.RateLimit.Burst}
	}
	return d
}

func fromEntries(in []scenario.Entry) []wireEntry {
	out := make([]wireEntry, 0, len(in))
	for i := range in {
		out = append(out, fromEntry(&in[i]))
	}
	return out
}

func fromEntry(e *scenario.Entry) wireEntry {
	w := wireEntry{Request: fromTemplate(&e.Request)}
	if e.Response != nil {
		w.Response = fromDescriptor(e.Response)
	}
	if e.Error != nil {
		w.Error = &wireError{Type: e.Error.Type, Message: e.Error.Message}
	}
	return w
}

func fromTemplate(t *scenario.RequestTemplate) wireRequest {
	w := wireRequest{
		ExactMatch: t.ExactMatch,
		Protocol:   t.Protocol,
		Method:     t.Method,
		Host:       t.Host,
		Port:       t.Port,
	}
	if t.Path != nil {
		s := t.Path.String()
		w.Path = &s
	}
	if t.Body != nil {
		s := t.Body.String()
		w.Body = &s
	}
	for _, h := range t.Headers {
		wh := wireHeader{Name: h.Name, Absent: h.Absent}
		if h.Value != nil && !h.Absent {
			s := h.Value.String()
			wh.Value = &s
		}
		w.Headers = append(w.Headers, wh)
	}
	for _, p := range t.Params {
		wp := wireParam{Name: p.Name}
		switch {
		case p.Absent:
			wp.Kind = paramAbsent
		case p.Value == nil:
			wp.Kind = paramPresent
		default:
			wp.Value = p.Value.String()
		}
		w.Params = append(w.Params, wp)
	}
	if t.BodyConditions != nil {
		bc := &wireBodyConditions{ContentType: t.BodyConditions.ContentType}
		for _, c := range t.BodyConditions.Conditions {
			bc.Conditions = append(bc.Conditions, wireCondition{Extractor: c.Extractor, Matcher: c.Matcher.String()})
		}
		w.BodyConditions = bc
	}
	return w
}

func fromDescriptor(d *scenario.ResponseDescriptor) *wireResponse {
	w := &wireResponse{
		Delay:     d.Delay.Milliseconds(),
		Code:      d.Code,
		MediaType: d.MediaType,
		Body:      d.Body,
		BodyFile:  d.BodyFile,
	}
	for _, h := range d.Headers {
		w.Headers = append(w.Headers, wireKeyValue{Name: h.Name, Value: h.Value})
	}
	if d.RateLimit != nil {
		w.RateLimit = &wireRateLimit{Rate: d.RateLimit.Rate, Burst: d.RateLimit.Burst}
	}
	return w
}
