package model

import (
	"fmt"
	"time"
)

// Status is the verdict of a single check.
type Status int

const (
	// StatusOK means the target exists or the rule is satisfied.
	StatusOK Status = iota
	// StatusBroken means the target is missing or the rule is violated.
	StatusBroken
	// StatusSkipped means the reference was not checked (offline mode,
	// timeout, unsupported scheme).
	StatusSkipped
	// StatusIgnored means the user asked for the reference to be ignored.
	StatusIgnored
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBroken:
		return "broken"
	case StatusSkipped:
		return "skipped"
	case StatusIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus converts a status name back into a Status.
func ParseStatus(name string) (Status, error) {
	switch name {
	case "ok":
		return StatusOK, nil
	case "broken":
		return StatusBroken, nil
	case "skipped":
		return StatusSkipped, nil
	case "ignored":
		return StatusIgnored, nil
	default:
		return StatusOK, fmt.Errorf("unknown status %q", name)
	}
}

// RuleExistence is the rule name used for target existence checks performed
// by the resolver and the external checker.
const RuleExistence = "existence"

// Outcome is the status part of a check, independent of the reference.
// The external checker produces outcomes per URL; they are attached to
// every reference that shares the URL.
type Outcome struct {
	Status Status `json:"status"`

	// Reason is a short human-readable explanation such as
	// "file not found" or "HTTP 404".
	Reason string `json:"reason,omitempty"`

	// StatusCode is the final HTTP status code for external checks, 0 otherwise.
	StatusCode int `json:"status_code,omitempty"`
}

// OK returns an ok outcome with the given reason.
func OK(reason string) Outcome {
	return Outcome{Status: StatusOK, Reason: reason}
}

// Broken returns a broken outcome with the given reason.
func Broken(reason string) Outcome {
	return Outcome{Status: StatusBroken, Reason: reason}
}

// Skipped returns a skipped outcome with the given reason.
func Skipped(reason string) Outcome {
	return Outcome{Status: StatusSkipped, Reason: reason}
}

// Ignored returns an ignored outcome with the given reason.
func Ignored(reason string) Outcome {
	return Outcome{Status: StatusIgnored, Reason: reason}
}

// CheckResult is the verdict on one reference for one rule.
type CheckResult struct {
	Reference Reference `json:"reference"`
	Rule      string    `json:"rule"`
	Outcome
}

// NewCheckResult attaches an outcome to a reference under the given rule.
func NewCheckResult(ref Reference, rule string, outcome Outcome) CheckResult {
	return CheckResult{Reference: ref, Rule: rule, Outcome: outcome}
}

// IsFailure reports whether the result fails the run.
func (r CheckResult) IsFailure() bool {
	return r.Status == StatusBroken
}

// CachedCheck is an external URL verdict remembered across runs.
type CachedCheck struct {
	URL       string    `json:"url"`
	CheckedAt time.Time `json:"checked_at"`
	Outcome
}
