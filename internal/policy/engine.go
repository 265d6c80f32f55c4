package policy

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// compiledRule keeps a rule together with its matcher. Only the engine sees the matcher.
type compiledRule struct {
	rule    Rule
	matcher matcher
}

// Engine evaluates text against an ordered, immutable rule set.
type Engine struct {
	rules []compiledRule
}

// Load compiles the given rule specs in order. A single bad rule fails the
// whole load; no partial engine is ever returned. A rule names either a
// pattern or a built-in detector; detector rewrites default to the
// detector's redaction token. A pattern rewrite without a replacement
// matches as a rewrite but leaves the text unchanged.
func Load(specs []RuleSpec) (*Engine, error) {
	rules := make([]compiledRule, 0, len(specs))
	for i, spec := range specs {
		if spec.ID == "" {
			return nil, &LoadError{RuleID: fmt.Sprintf("#%d", i), Err: ErrMissingRuleID}
		}

		action, err := ParseAction(spec.Action)
		if err != nil {
			return nil, &LoadError{RuleID: spec.ID, Err: err}
		}

		replacement := spec.Replacement
		var m matcher
		if spec.Detector != "" {
			d, ok := detectors[spec.Detector]
			if !ok {
				return nil, &LoadError{RuleID: spec.ID, Err: fmt.Errorf("%w: %q", ErrUnknownDetector, spec.Detector)}
			}
			if spec.Pattern != "" {
				return nil, &LoadError{RuleID: spec.ID, Err: ErrPatternAndDetector}
			}
			if replacement == nil {
				redaction := d.redaction
				replacement = &redaction
			}
			m = compileDetector(d)
		} else {
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				return nil, &LoadError{RuleID: spec.ID, Err: fmt.Errorf("%w: %v", ErrInvalidPattern, err)}
			}
			m = re
		}

		rules = append(rules, compiledRule{
			rule: Rule{
				ID:          spec.ID,
				Pattern:     spec.Pattern,
				Detector:    spec.Detector,
				Action:      action,
				Replacement: replacement,
			},
			matcher: m,
		})
	}

	return &Engine{rules: rules}, nil
}

// Parse decodes a YAML rule source and loads it.
func Parse(data []byte) (*Engine, error) {
	var src RuleSource
	if err := yaml.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("failed to parse policy rules: %w", err)
	}
	return Load(src.Rules)
}

// LoadFile reads and loads a YAML rule file.
func LoadFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy rules %s: %w", path, err)
	}
	return Parse(data)
}

// Apply evaluates text against the rules in load order. The first matching
// rule decides; later rules are never consulted.
func (e *Engine) Apply(text string) Decision {
	for _, cr := range e.rules {
		if !cr.matcher.MatchString(text) {
			continue
		}

		out := text
		if cr.rule.Action == ActionRewrite && cr.rule.Replacement != nil {
			out = cr.matcher.ReplaceAllString(text, *cr.rule.Replacement)
		}

		return Decision{
			Text:    out,
			Matched: true,
			Action:  cr.rule.Action,
			RuleID:  cr.rule.ID,
		}
	}

	return Decision{Text: text}
}

// Rules returns a copy of the loaded rules in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	for i, cr := range e.rules {
		out[i] = cr.rule
	}
	return out
}

// Len returns the number of loaded rules.
func (e *Engine) Len() int {
	return len(e.rules)
}
