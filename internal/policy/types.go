package policy

import (
	"errors"
	"fmt"
	"strings"
)

// Action is the closed set of outcomes a rule can produce.
type Action uint8

const (
	ActionAllow Action = iota + 1
	ActionRewrite
	ActionBlock
)

// String returns the wire name of the action ("allow", "rewrite", "block").
func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionRewrite:
		return "rewrite"
	case ActionBlock:
		return "block"
	default:
		return "unknown"
	}
}

// ParseAction converts a rule file action name into an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allow":
		return ActionAllow, nil
	case "rewrite":
		return ActionRewrite, nil
	case "block":
		return ActionBlock, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

// Rule is a single pattern -> action mapping. Immutable once loaded.
type Rule struct {
	ID          string
	Pattern     string
	Detector    string
	Action      Action
	Replacement *string
}

// RuleSpec is the on-disk representation of a rule.
type RuleSpec struct {
	ID          string  `yaml:"id" json:"id"`
	Pattern     string  `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Detector    string  `yaml:"detector,omitempty" json:"detector,omitempty"`
	Action      string  `yaml:"action" json:"action"`
	Replacement *string `yaml:"replacement,omitempty" json:"replacement,omitempty"`
}

// RuleSource is the root of a rules file.
type RuleSource struct {
	Rules []RuleSpec `yaml:"rules" json:"rules"`
}

// Decision is the result of applying the engine to a piece of text.
type Decision struct {
	// Text is the rewritten text for rewrite matches and the input otherwise.
	Text string

	// Matched reports whether any rule matched. Action and RuleID are only
	// meaningful when Matched is true.
	Matched bool
	Action  Action
	RuleID  string
}

// ActionName returns the audit name of the decision: the matched action or
// "allow" when nothing matched.
func (d Decision) ActionName() string {
	if !d.Matched {
		return ActionAllow.String()
	}
	return d.Action.String()
}

// Blocked reports whether the decision short-circuits the request.
func (d Decision) Blocked() bool {
	return d.Matched && d.Action == ActionBlock
}

var (
	ErrInvalidPattern     = errors.New("invalid pattern")
	ErrInvalidAction      = errors.New("invalid action")
	ErrMissingRuleID      = errors.New("rule id is required")
	ErrUnknownDetector    = errors.New("unknown detector")
	ErrPatternAndDetector = errors.New("rule sets both pattern and detector")
)

// LoadError reports the rule that prevented the engine from loading.
type LoadError struct {
	RuleID string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("policy rule %q: %v", e.RuleID, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
