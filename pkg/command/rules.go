package command

import (
	"regexp"

	"github.com/parlancehq/parlance/pkg/action"
	"github.com/parlancehq/parlance/pkg/errors"
)

// Rule is a deterministic pattern matcher for well-known command phrasings.
// Rules are evaluated in registration order and the first match wins, so
// common commands stay fast and never hit the AI parser.
type Rule struct {
	// Action is the name of the action this rule resolves to.
	Action string
	// Pattern is matched against the whole trimmed command text.
	Pattern *regexp.Regexp
	// Extract builds the payload from the submatches (index 0 is the full
	// match). A nil Extract yields an empty payload. An extraction error
	// makes the rule a non-match for this command.
	Extract func(matches []string) (action.Payload, error)
}

// NewRule compiles pattern and returns the rule. Callers own the pattern's
// case sensitivity; prefix (?i) for the usual case-insensitive matching.
func NewRule(actionName, pattern string, extract func(matches []string) (action.Payload, error)) (Rule, error) {
	if actionName == "" {
		return Rule{}, errors.New(errors.ErrCodeInvalidInput, "rule action name cannot be empty")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, errors.Wrap(err, errors.ErrCodeInvalidInput, "rule pattern does not compile")
	}
	return Rule{Action: actionName, Pattern: re, Extract: extract}, nil
}

// MustRule is NewRule that panics on error, for boot-time rule tables.
func MustRule(actionName, pattern string, extract func(matches []string) (action.Payload, error)) Rule {
	r, err := NewRule(actionName, pattern, extract)
	if err != nil {
		panic(err)
	}
	return r
}

// Match runs the rule against the command text. ok is false when the
// pattern does not match or extraction fails.
func (r Rule) Match(raw string) (payload action.Payload, ok bool, err error) {
	m := r.Pattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, false, nil
	}
	if r.Extract == nil {
		return action.Payload{}, true, nil
	}
	payload, err = r.Extract(m)
	if err != nil {
		return nil, false, err
	}
	if payload == nil {
		payload = action.Payload{}
	}
	return payload, true, nil
}
