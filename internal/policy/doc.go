// Package policy provides the prompt policy engine for the compliance gateway.
//
// A policy is an ordered list of rules. Each rule pairs a regular expression
// with an action:
//   - allow: the prompt passes unchanged
//   - rewrite: every match is substituted with the rule's replacement
//   - block: the prompt never reaches the model
//
// Instead of a pattern, a rule may name a built-in detector (email, phone,
// ssn, credit_card, ip_address, secret, prompt_injection). Card and SSN
// detectors also check the matched digits before counting a match.
//
// Rules are evaluated in file order and the first matching rule wins. The
// engine is compiled once at startup and is read-only afterwards, so it can be
// shared across request goroutines without locking.
package policy
