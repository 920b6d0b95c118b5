package mocker

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects which interception strategies run for a request.
type Mode int32

const (
	// Disabled forwards every request untouched.
	Disabled Mode = iota
	// Enabled serves mocks only; an unmatched request fails with a
	// *scenario.NoMatchError.
	Enabled
	// Mixed serves mocks and forwards unmatched requests, recording them
	// when Config.RecordInMixed is set.
	Mixed
	// Record forwards every request and records the exchange.
	Record
)

var (
	// ErrInvalidMode is returned for values outside the four modes.
	ErrInvalidMode = errors.New("invalid mode")
	// ErrRecorderNotConfigured is returned when a mode needs the recorder
	// but no recording directory was configured.
	ErrRecorderNotConfigured = errors.New("recording directory not configured")
)

var modeNames = [...]string{
	Disabled: "disabled",
	Enabled:  "enabled",
	Mixed:    "mixed",
	Record:   "record",
}

// recordRule says when forwarded exchanges are recorded.
type recordRule int

const (
	recordNever recordRule = iota
	recordAlways
	recordIfEnabled
)

// behavior is one row of the mode table.
type behavior struct {
	resolve       bool
	forwardOnMiss bool
	record        recordRule
}

var behaviors = [...]behavior{
	Disabled: {resolve: false, forwardOnMiss: true, record: recordNever},
	Enabled:  {resolve: true, forwardOnMiss: false, record: recordNever},
	Mixed:    {resolve: true, forwardOnMiss: true, record: recordIfEnabled},
	Record:   {resolve: false, forwardOnMiss: true, record: recordAlways},
}

func (m Mode) valid() bool {
	return m >= Disabled && m <= Record
}

func (m Mode) behavior() behavior {
	return behaviors[m]
}

// records reports whether forwarded requests are recorded in m.
func (m Mode) records(recordInMixed bool) bool {
	switch m.behavior().record {
	case recordAlways:
		return true
	case recordIfEnabled:
		return recordInMixed
	default:
		return false
	}
}

// String returns the lower-case mode name.
func (m Mode) String() string {
	if !m.valid() {
		return fmt.Sprintf("Mode(%d)", int32(m))
	}
	return modeNames[m]
}

// ParseMode parses a mode name, ignoring case.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Mode(m), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int32(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
