package sentence

import (
	"errors"
	"fmt"
	"strings"
)

// Policy decides what a read loop does with a malformed sentence.
type Policy int

const (
	// PolicyReport prints the problem and keeps reading.
	PolicyReport Policy = iota
	// PolicySkip drops malformed sentences silently.
	PolicySkip
	// PolicyStrict stops the loop on the first malformed sentence.
	PolicyStrict
)

// Action is what the loop should do with one Apply error.
type Action int

const (
	Ignore Action = iota
	Report
	Stop
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "report":
		return PolicyReport, nil
	case "skip":
		return PolicySkip, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyReport, fmt.Errorf("unknown malformed-sentence policy %q", s)
	}
}

func (p Policy) String() string {
	switch p {
	case PolicySkip:
		return "skip"
	case PolicyStrict:
		return "strict"
	default:
		return "report"
	}
}

// Decide maps an Apply error to an Action. Unknown sentences are always
// reported and never fatal.
func (p Policy) Decide(err error) Action {
	if err == nil {
		return Ignore
	}
	if errors.Is(err, ErrSkipped) {
		return Report
	}
	switch p {
	case PolicySkip:
		return Ignore
	case PolicyStrict:
		return Stop
	default:
		return Report
	}
}
