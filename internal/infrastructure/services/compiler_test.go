package services_test

import (
	"strings"
	"testing"

	"github.com/sophialabs/httpmocker/internal/domain/match"
	"github.com/sophialabs/httpmocker/internal/infrastructure/services"
	"github.com/sophialabs/httpmocker/pkg/scenario"
)

func ptr[T any](v T) *T { return &v }

func compileOne(t *testing.T, tmpl scenario.RequestTemplate) *match.CompiledScenario {
	t.Helper()
	cs, err := services.NewCompiler().Compile(scenario.Scenario{
		Path:    "api/users.json",
		Entries: []scenario.Entry{{Request: tmpl, Response: &scenario.ResponseDescriptor{Code: 200}}},
	})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return cs
}

func matches(t *testing.T, tmpl scenario.RequestTemplate, req *scenario.Request) bool {
	t.Helper()
	cs := compileOne(t, tmpl)
	return match.NewEvaluator().Evaluate(req, cs.Entries).Matched != nil
}

func baseRequest() *scenario.Request {
	return &scenario.Request{
		Method: "GET",
		Scheme: "https",
		Host:   "api.example.com",
		Port:   443,
		Path:   "/api/users/42",
		Params: []scenario.KeyValue{{Name: "page", Value: "2"}, {Name: "tag", Value: "a"}, {Name: "tag", Value: "b"}},
		Headers: []scenario.KeyValue{
			{Name: "Accept", Value: "application/json"},
			{Name: "X-Request-Id", Value: "abc-123"},
		},
	}
}

func withBody(body string) *scenario.Request {
	r := baseRequest()
	r.Method = "POST"
	r.Body = []byte(body)
	return r
}

func TestCompile_PreservesOrderAndPayload(t *testing.T) {
	entries := []scenario.Entry{
		{Request: scenario.RequestTemplate{Method: "GET"}, Response: &scenario.ResponseDescriptor{Code: 200}},
		{Request: scenario.RequestTemplate{Method: "POST"}, Error: &scenario.NetworkError{Type: "timeout", Message: "i/o timeout"}},
	}
	cs, err := services.NewCompiler().Compile(scenario.Scenario{Path: "api/users.json", Entries: entries})
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if cs.Path != "api/users.json" || len(cs.Entries) != 2 {
		t.Fatalf("unexpected compiled scenario: %+v", cs)
	}
	for i, ce := range cs.Entries {
		if ce.Index != i {
			t.Errorf("entry %d has index %d", i, ce.Index)
		}
	}
	if cs.Entries[0].Response.Code != 200 || cs.Entries[1].Error.Type != "timeout" {
		t.Error("payload not carried over")
	}
}

func TestCompile_Matching(t *testing.T) {
	tests := []struct {
		name string
		tmpl scenario.RequestTemplate
		req  *scenario.Request
		want bool
	}{
		{name: "empty template is a wildcard", req: baseRequest(), want: true},
		{name: "method case-insensitive", tmpl: scenario.RequestTemplate{Method: "get"}, req: baseRequest(), want: true},
		{name: "method mismatch", tmpl: scenario.RequestTemplate{Method: "DELETE"}, req: baseRequest(), want: false},
		{name: "protocol", tmpl: scenario.RequestTemplate{Protocol: "HTTPS"}, req: baseRequest(), want: true},
		{name: "host", tmpl: scenario.RequestTemplate{Host: "API.example.com"}, req: baseRequest(), want: true},
		{name: "port match", tmpl: scenario.RequestTemplate{Port: ptr(443)}, req: baseRequest(), want: true},
		{name: "port mismatch", tmpl: scenario.RequestTemplate{Port: ptr(8443)}, req: baseRequest(), want: false},
		{name: "exact path", tmpl: scenario.RequestTemplate{Path: ptr(scenario.Exact("/api/users/42"))}, req: baseRequest(), want: true},
		{name: "exact path is not a prefix", tmpl: scenario.RequestTemplate{Path: ptr(scenario.Exact("/api/users"))}, req: baseRequest(), want: false},
		{name: "regex path anchored", tmpl: scenario.RequestTemplate{Path: ptr(scenario.Regex(`/api/users/\d+`))}, req: baseRequest(), want: true},
		{name: "regex path partial does not match", tmpl: scenario.RequestTemplate{Path: ptr(scenario.Regex(`/api`))}, req: baseRequest(), want: false},
		{name: "glob path", tmpl: scenario.RequestTemplate{Path: ptr(scenario.Glob("/api/**"))}, req: baseRequest(), want: true},
		{name: "glob single segment", tmpl: scenario.RequestTemplate{Path: ptr(scenario.Glob("/api/*"))}, req: baseRequest(), want: false},
		{
			name: "header value canonicalized",
			tmpl: scenario.RequestTemplate{Headers: []scenario.FieldMatcher{{Name: "accept", Value: ptr(scenario.Exact("application/json"))}}},
			req:  baseRequest(), want: true,
		},
		{
			name: "header presence",
			tmpl: scenario.RequestTemplate{Headers: []scenario.FieldMatcher{{Name: "X-Request-Id"}}},
			req:  baseRequest(), want: true,
		},
		{
			name: "header absent",
			tmpl: scenario.RequestTemplate{Headers: []scenario.FieldMatcher{{Name: "Authorization", Absent: true}}},
			req:  baseRequest(), want: true,
		},
		{
			name: "header absent but present",
			tmpl: scenario.RequestTemplate{Headers: []scenario.FieldMatcher{{Name: "Accept", Absent: true}}},
			req:  baseRequest(), want: false,
		},
		{
			name: "header missing",
			tmpl: scenario.RequestTemplate{Headers: []scenario.FieldMatcher{{Name: "Authorization"}}},
			req:  baseRequest(), want: false,
		},
		{
			name: "repeated param any value",
			tmpl: scenario.RequestTemplate{Params: []scenario.FieldMatcher{{Name: "tag", Value: ptr(scenario.Exact("b"))}}},
			req:  baseRequest(), want: true,
		},
		{
			name: "param regex",
			tmpl: scenario.RequestTemplate{Params: []scenario.FieldMatcher{{Name: "page", Value: ptr(scenario.Regex(`\d`))}}},
			req:  baseRequest(), want: true,
		},
		{
			name: "exact match counts every field",
			tmpl: scenario.RequestTemplate{
				ExactMatch: true,
				Headers:    []scenario.FieldMatcher{{Name: "Accept"}, {Name: "X-Request-Id"}, {Name: "Authorization", Absent: true}},
				Params:     []scenario.FieldMatcher{{Name: "page"}, {Name: "tag"}, {Name: "tag"}},
			},
			req: baseRequest(), want: true,
		},
		{
			name: "exact match rejects extra headers",
			tmpl: scenario.RequestTemplate{
				ExactMatch: true,
				Headers:    []scenario.FieldMatcher{{Name: "Accept"}},
				Params:     []scenario.FieldMatcher{{Name: "page"}, {Name: "tag"}, {Name: "tag"}},
			},
			req: baseRequest(), want: false,
		},
		{name: "raw body", tmpl: scenario.RequestTemplate{Body: ptr(scenario.Exact(`{"id":1}`))}, req: withBody(`{"id":1}`), want: true},
		{name: "binary body", tmpl: scenario.RequestTemplate{Body: ptr(scenario.Bytes([]byte{0xff, 0xfe, 0x01}))}, req: withBody("\xff\xfe\x01"), want: true},
		{name: "binary body mismatch", tmpl: scenario.RequestTemplate{Body: ptr(scenario.Bytes([]byte{0xff, 0xfe, 0x01}))}, req: withBody("\ufffd\ufffd\x01"), want: false},
		{name: "body required", tmpl: scenario.RequestTemplate{Body: ptr(scenario.Regex(`.*`))}, req: baseRequest(), want: false},
		{
			name: "json body condition",
			tmpl: scenario.RequestTemplate{BodyConditions: &scenario.BodyConditions{
				ContentType: "json",
				Conditions:  []scenario.BodyCondition{{Extractor: "$.user.name", Matcher: scenario.Exact("alice")}},
			}},
			req: withBody(`{"user":{"name":"alice"}}`), want: true,
		},
		{
			name: "json body condition mismatch",
			tmpl: scenario.RequestTemplate{BodyConditions: &scenario.BodyConditions{
				ContentType: "json",
				Conditions:  []scenario.BodyCondition{{Extractor: "$.user.name", Matcher: scenario.Exact("alice")}},
			}},
			req: withBody(`{"user":{"name":"bob"}}`), want: false,
		},
		{
			name: "json body condition on invalid json",
			tmpl: scenario.RequestTemplate{BodyConditions: &scenario.BodyConditions{
				ContentType: "json",
				Conditions:  []scenario.BodyCondition{{Extractor: "$.id", Matcher: scenario.Regex(".*")}},
			}},
			req: withBody(`not json`), want: false,
		},
		{
			name: "json body condition keeps large numbers exact",
			tmpl: scenario.RequestTemplate{BodyConditions: &scenario.BodyConditions{
				ContentType: "json",
				Conditions:  []scenario.BodyCondition{{Extractor: "$.id", Matcher: scenario.Exact("12345678901234567890")}},
			}},
			req: withBody(`{"id":12345678901234567890}`), want: true,
		},
		{
			name: "xml body condition",
			tmpl: scenario.RequestTemplate{BodyConditions: &scenario.BodyConditions{
				ContentType: "xml",
				Conditions:  []scenario.BodyCondition{{Extractor: "//order/status", Matcher: scenario.Regex("ship.*")}},
			}},
			req: withBody(`<order><status>shipped</status></order>`), want: true,
		},
		{
			name: "untyped body condition matches raw body",
			tmpl: scenario.RequestTemplate{BodyConditions: &scenario.BodyConditions{
				Conditions: []scenario.BodyCondition{{Extractor: "ignored", Matcher: scenario.Regex(".*hello.*")}},
			}},
			req: withBody(`say hello`), want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matches(t, tt.tmpl, tt.req); got != tt.want {
				t.Errorf("matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		entry   scenario.Entry
		wantErr string
	}{
		{
			name:    "invalid regex",
			entry:   scenario.Entry{Request: scenario.RequestTemplate{Path: ptr(scenario.Regex(`(`))}},
			wantErr: "invalid regex",
		},
		{
			name:    "invalid base64",
			entry:   scenario.Entry{Request: scenario.RequestTemplate{Body: ptr(scenario.ParseMatcher("base64:%%%"))}},
			wantErr: "invalid base64",
		},
		{
			name:    "invalid glob",
			entry:   scenario.Entry{Request: scenario.RequestTemplate{Path: ptr(scenario.Glob(`/api/[`))}},
			wantErr: "invalid glob",
		},
		{
			name: "invalid header regex",
			entry: scenario.Entry{Request: scenario.RequestTemplate{
				Headers: []scenario.FieldMatcher{{Name: "Accept", Value: ptr(scenario.Regex(`[`))}},
			}},
			wantErr: "header:Accept",
		},
		{
			name: "invalid jsonpath",
			entry: scenario.Entry{Request: scenario.RequestTemplate{BodyConditions: &scenario.BodyConditions{
				ContentType: "json",
				Conditions:  []scenario.BodyCondition{{Extractor: "$[", Matcher: scenario.Exact("x")}},
			}}},
			wantErr: "invalid JSONPath",
		},
		{
			name: "invalid xpath",
			entry: scenario.Entry{Request: scenario.RequestTemplate{BodyConditions: &scenario.BodyConditions{
				ContentType: "xml",
				Conditions:  []scenario.BodyCondition{{Extractor: "//[", Matcher: scenario.Exact("x")}},
			}}},
			wantErr: "invalid XPath",
		},
		{
			name:    "body file escapes root",
			entry:   scenario.Entry{Response: &scenario.ResponseDescriptor{BodyFile: "../../secret.txt"}},
			wantErr: "escapes",
		},
		{
			name:    "absolute body file",
			entry:   scenario.Entry{Response: &scenario.ResponseDescriptor{BodyFile: "/etc/passwd"}},
			wantErr: "absolute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := services.NewCompiler().Compile(scenario.Scenario{Path: "api/users.json", Entries: []scenario.Entry{tt.entry}})
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) || !strings.Contains(err.Error(), "entry 0") {
				t.Errorf("error = %q, want it to mention %q and the entry", err, tt.wantErr)
			}
		})
	}
}

func TestResolveBodyPath(t *testing.T) {
	tests := []struct {
		scenario string
		bodyFile string
		want     string
		wantErr  bool
	}{
		{scenario: "api/users.json", bodyFile: "users_body_0.txt", want: "api/users_body_0.txt"},
		{scenario: "users.json", bodyFile: "data/users.txt", want: "data/users.txt"},
		{scenario: "api/v1/users.json", bodyFile: "../shared.txt", want: "api/shared.txt"},
		{scenario: "users.json", bodyFile: "../outside.txt", wantErr: true},
		{scenario: "users.json", bodyFile: "/abs.txt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.bodyFile, func(t *testing.T) {
			got, err := services.ResolveBodyPath(tt.scenario, tt.bodyFile)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected an error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveBodyPath = %q, want %q", got, tt.want)
			}
		})
	}
}
