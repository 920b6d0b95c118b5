package scenario

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that no scenario file exists at a path. It is not
// fatal: resolution falls through to the next strategy.
var ErrNotFound = errors.New("scenario not found")

// ParseError reports a scenario file that exists but cannot be decoded or compiled.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing scenario %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NoMatchError is returned when a request was expected to be mocked but no
// static or dynamic source produced a response.
type NoMatchError struct {
	Request *Request
	// Path is the scenario path consulted, empty when none was.
	Path string
	// Rejections lists every entry of the scenario in file order with the
	// first criterion it failed.
	Rejections []Rejection
}

// Rejection explains why one scenario entry did not match a request.
type Rejection struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *NoMatchError) Error() string {
	msg := fmt.Sprintf("no matching scenario for %s %s", e.Request.Method, e.Request.Path)
	if e.Path != "" {
		msg += " in " + e.Path
	}
	if len(e.Rejections) > 0 {
		r := e.Rejections[0]
		msg += fmt.Sprintf(" (%d entries rejected; entry %d failed on %s: %s)", len(e.Rejections), r.Index, r.Field, r.Reason)
	}
	return msg
}

// BodyAssetError reports a body file referenced by a descriptor that cannot be read.
type BodyAssetError struct {
	Path string
	Err  error
}

func (e *BodyAssetError) Error() string {
	return fmt.Sprintf("reading body file %s: %v", e.Path, e.Err)
}

func (e *BodyAssetError) Unwrap() error { return e.Err }

// RecordingError reports a failure to persist a recorded exchange. Files
// written by earlier recordings are left untouched.
type RecordingError struct {
	Path string
	Err  error
}

func (e *RecordingError) Error() string {
	return fmt.Sprintf("recording scenario %s: %v", e.Path, e.Err)
}

func (e *RecordingError) Unwrap() error { return e.Err }

// SimulatedError is returned when the matched entry replays a recorded network failure.
type SimulatedError struct {
	Type    string
	Message string
}

func (e *SimulatedError) Error() string {
	if e.Message == "" {
		return "simulated network error: " + e.Type
	}
	return fmt.Sprintf("simulated network error %s: %s", e.Type, e.Message)
}
