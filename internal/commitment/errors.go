package commitment

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed operation for the UI and for HTTP status mapping.
type Kind string

const (
	KindConfigMissing      Kind = "config_missing"
	KindIdentityResolution Kind = "identity_resolution"
	KindToolInvocation     Kind = "tool_invocation"
	KindParseFailure       Kind = "parse_failure"
	KindStepFailure        Kind = "step_failure"
	KindInternal           Kind = "internal"
)

var (
	// ErrNoIdentityMatch means the address belongs to none of the known labels.
	ErrNoIdentityMatch = errors.New("address matches no known identity")

	// ErrAmbiguousIdentity means more than one label resolved to the address.
	ErrAmbiguousIdentity = errors.New("address matches more than one known identity")

	// ErrLookupFailed means the CLI could not report a label's address.
	ErrLookupFailed = errors.New("identity lookup failed")
)

// Candidate is one known identity label and what the CLI reported for it.
type Candidate struct {
	Label     string `json:"label"`
	Address   string `json:"address,omitempty"`
	LookupErr string `json:"lookupErr,omitempty"`
}

// ResolutionError reports a failed identity resolution together with every
// candidate that was considered.
type ResolutionError struct {
	Target     string
	Candidates []Candidate
	Err        error
}

func (e *ResolutionError) Error() string {
	var parts []string
	for _, c := range e.Candidates {
		switch {
		case c.LookupErr != "":
			parts = append(parts, fmt.Sprintf("%s=<%s>", c.Label, c.LookupErr))
		default:
			parts = append(parts, fmt.Sprintf("%s=%s", c.Label, c.Address))
		}
	}
	target := e.Target
	if target == "" {
		target = "<unset>"
	}
	return fmt.Sprintf("resolve %s: %v (candidates: %s)", target, e.Err, strings.Join(parts, ", "))
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// CandidateAddresses maps each label to its reported address.
func (e *ResolutionError) CandidateAddresses() map[string]string {
	out := make(map[string]string, len(e.Candidates))
	for _, c := range e.Candidates {
		out[c.Label] = c.Address
	}
	return out
}

// ParseError reports CLI output that could not be read as the expected record.
type ParseError struct {
	What string
	Raw  string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
