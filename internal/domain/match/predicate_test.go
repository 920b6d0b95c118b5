package match_test

import (
	"testing"

	"github.com/sophialabs/httpmocker/internal/domain/match"
)

func TestPredicates(t *testing.T) {
	tests := []struct {
		name  string
		p     match.Predicate
		input string
		want  bool
	}{
		{name: "always", p: match.Always(), input: "", want: true},
		{name: "equal", p: match.Equal("GET"), input: "GET", want: true},
		{name: "equal is case-sensitive", p: match.Equal("GET"), input: "get", want: false},
		{name: "equal fold", p: match.EqualFold("GET"), input: "get", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p(tt.input); got != tt.want {
				t.Errorf("predicate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
