package policy

import (
	"regexp"
	"strings"
)

// detector is a built-in matcher a rule can reference by name instead of
// writing its own pattern.
type detector struct {
	pattern   string
	validate  func(match string) bool
	redaction string
}

var detectors = map[string]detector{
	"email": {
		pattern:   `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`,
		redaction: "[EMAIL_REDACTED]",
	},
	"phone": {
		pattern:   `\b(?:\+?1[-.]?)?\(?[0-9]{3}\)?[-.]?[0-9]{3}[-.]?[0-9]{4}\b`,
		redaction: "[PHONE_REDACTED]",
	},
	"ssn": {
		pattern:   `\b[0-9]{3}-?[0-9]{2}-?[0-9]{4}\b`,
		validate:  looksLikeSSN,
		redaction: "[SSN_REDACTED]",
	},
	"credit_card": {
		pattern:   `\b(?:[0-9][ -]?){12,18}[0-9]\b`,
		validate:  luhnCheck,
		redaction: "[CC_REDACTED]",
	},
	"ip_address": {
		pattern:   `\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`,
		redaction: "[IP_REDACTED]",
	},
	"secret": {
		pattern: `\bAKIA[0-9A-Z]{16}\b` +
			`|\bAIza[0-9A-Za-z\-_]{35}\b` +
			`|\bgh[pousr]_[A-Za-z0-9]{36,}\b` +
			`|\bxox[baprs]-[A-Za-z0-9\-]{10,}\b` +
			`|\b[sr]k_(?:live|test)_[0-9a-zA-Z]{24,}\b` +
			`|\bsk-[A-Za-z0-9\-_]{32,}\b` +
			`|\beyJ[A-Za-z0-9_\-]+\.eyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\b` +
			`|-----BEGIN\s+(?:RSA\s+|OPENSSH\s+|EC\s+|DSA\s+)?PRIVATE\s+KEY-----` +
			`|(?i:(?:postgres|postgresql|mysql|mongodb|redis)://[^\s'"]+:[^\s'"]+@[^\s'"]+)`,
		redaction: "[SECRET_REDACTED]",
	},
	"prompt_injection": {
		pattern: `(?i)(?:ignore\s+(?:previous|all|above|prior)\s+(?:instructions?|prompts?|commands?)` +
			`|disregard\s+(?:all|previous|above|any)\s+(?:instructions?|rules|commands?)` +
			`|(?:reveal|print|repeat|show\s+me)\s+(?:your|the)\s+(?:system|hidden|secret|original)\s+(?:prompt|instructions?)` +
			`|forget\s+(?:everything|all\s+previous)` +
			`|DAN\s+mode|developer\s+mode|jailbreak` +
			`|without\s+(?:any|ethical|moral)\s+(?:restrictions?|limitations?|guidelines?))`,
		redaction: "[INSTRUCTION_REMOVED]",
	},
}

// Detectors returns the names rules may use in their detector field.
func Detectors() []string {
	names := make([]string, 0, len(detectors))
	for name := range detectors {
		names = append(names, name)
	}
	return names
}

// matcher is the part of *regexp.Regexp the engine relies on.
type matcher interface {
	MatchString(s string) bool
	ReplaceAllString(src, repl string) string
}

// validatedMatcher only counts regexp matches that pass a checksum or shape check.
type validatedMatcher struct {
	re       *regexp.Regexp
	validate func(string) bool
}

func (m validatedMatcher) MatchString(s string) bool {
	for _, match := range m.re.FindAllString(s, -1) {
		if m.validate(match) {
			return true
		}
	}
	return false
}

// ReplaceAllString substitutes repl literally for every valid match.
func (m validatedMatcher) ReplaceAllString(src, repl string) string {
	return m.re.ReplaceAllStringFunc(src, func(match string) string {
		if m.validate(match) {
			return repl
		}
		return match
	})
}

func compileDetector(d detector) matcher {
	re := regexp.MustCompile(d.pattern)
	if d.validate == nil {
		return re
	}
	return validatedMatcher{re: re, validate: d.validate}
}

func looksLikeSSN(s string) bool {
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 9 {
		return false
	}
	if s[:3] == "000" || s[3:5] == "00" || s[5:] == "0000" {
		return false
	}
	return !strings.HasPrefix(s, "666") && !strings.HasPrefix(s, "9")
}

func luhnCheck(number string) bool {
	number = strings.ReplaceAll(number, " ", "")
	number = strings.ReplaceAll(number, "-", "")
	if len(number) < 13 || len(number) > 19 {
		return false
	}

	sum := 0
	second := false
	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if second {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		second = !second
	}
	return sum%10 == 0
}
