// Package trace keeps a bounded history of interception decisions.
package trace

import "time"

// Source names where the response for an intercepted request came from.
type Source string

const (
	SourceStatic  Source = "static"
	SourceDynamic Source = "dynamic"
	SourceNetwork Source = "network"
	SourceNone    Source = "none"
)

// Entry records how one intercepted request was handled.
type Entry struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Mode         string            `json:"mode"`
	Method       string            `json:"method"`
	Host         string            `json:"host"`
	Path         string            `json:"path"`
	ScenarioPath string            `json:"scenario_path,omitempty"`
	Source       Source            `json:"source"`
	MatchedIndex int               `json:"matched_index"`
	Candidates   []CandidateResult `json:"candidates,omitempty"`
	RateLimited  bool              `json:"rate_limited,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// CandidateResult records the evaluation result for a single scenario entry.
type CandidateResult struct {
	Index        int    `json:"index"`
	Matched      bool   `json:"matched"`
	FailedField  string `json:"failed_field,omitempty"`
	FailedReason string `json:"failed_reason,omitempty"`
}
