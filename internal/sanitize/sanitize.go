// Package sanitize strips secrets from text before it is surfaced to users,
// logged, or attached to an artifact error.
//
// Three layers are applied in order: exact replacement of known secret
// values (tokens from configuration), the built-in regexp rules, and
// optionally the gitleaks default rule set.
package sanitize

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

// DefaultReplacement replaces every detected secret.
const DefaultReplacement = "**redacted**"

// minSecretLength avoids redacting trivially short values like "x".
const minSecretLength = 4

// Options configures a Sanitizer.
type Options struct {
	// Disabled turns the sanitizer into a pass-through.
	Disabled bool

	// Secrets are literal values that must never appear in output.
	Secrets []string

	// Rules replaces DefaultRules when non-nil.
	Rules []Rule

	// Gitleaks enables the gitleaks default detector.
	Gitleaks bool

	// AllowlistPath points to a gitleaks-style TOML allowlist. Matches of
	// its regexes are never redacted by the rule layers.
	AllowlistPath string

	// Replacement overrides DefaultReplacement.
	Replacement string
}

type compiledRule struct {
	Rule
	pattern  *regexp.Regexp
	keywords []string
}

// Sanitizer redacts secrets. It is safe for concurrent use.
type Sanitizer struct {
	disabled    bool
	replacement string
	rules       []compiledRule
	allow       []*regexp.Regexp
	leaks       *leakDetector

	mu      sync.RWMutex
	secrets []string
}

// New builds a Sanitizer. Invalid rule or allowlist patterns are errors.
func New(opts Options) (*Sanitizer, error) {
	s := &Sanitizer{
		disabled:    opts.Disabled,
		replacement: opts.Replacement,
	}
	if s.replacement == "" {
		s.replacement = DefaultReplacement
	}
	if s.disabled {
		return s, nil
	}

	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}

	var errs error
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rule %s: invalid pattern: %w", r.ID, err))
			continue
		}
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kws = append(kws, strings.ToLower(kw))
		}
		s.rules = append(s.rules, compiledRule{Rule: r, pattern: re, keywords: kws})
	}

	var allowlist *Allowlist
	if opts.AllowlistPath != "" {
		al, err := LoadAllowlist(opts.AllowlistPath)
		if err != nil {
			errs = multierr.Append(errs, err)
		} else {
			allowlist = al
			for _, p := range al.Regexes {
				s.allow = append(s.allow, regexp.MustCompile(p))
			}
		}
	}
	if errs != nil {
		return nil, errs
	}

	if opts.Gitleaks {
		ld, err := newLeakDetector(allowlist)
		if err != nil {
			return nil, fmt.Errorf("creating gitleaks detector: %w", err)
		}
		s.leaks = ld
	}

	for _, v := range opts.Secrets {
		s.AddSecret(v)
	}
	return s, nil
}

// Nop returns a pass-through sanitizer.
func Nop() *Sanitizer {
	return &Sanitizer{disabled: true, replacement: DefaultReplacement}
}

// AddSecret registers a literal value to redact from all future output.
func (s *Sanitizer) AddSecret(v string) {
	if len(v) < minSecretLength {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.secrets {
		if existing == v {
			return
		}
	}
	s.secrets = append(s.secrets, v)
	// Longest first so a secret containing another is replaced whole.
	sort.SliceStable(s.secrets, func(i, j int) bool {
		return len(s.secrets[i]) > len(s.secrets[j])
	})
}

// Sanitize returns text with every detected secret replaced.
func (s *Sanitizer) Sanitize(text string) string {
	if s == nil || s.disabled || text == "" {
		return text
	}

	s.mu.RLock()
	for _, v := range s.secrets {
		text = strings.ReplaceAll(text, v, s.replacement)
	}
	s.mu.RUnlock()

	lower := strings.ToLower(text)
	for _, r := range s.rules {
		if !hasKeyword(lower, r.keywords) {
			continue
		}
		text = r.pattern.ReplaceAllStringFunc(text, func(m string) string {
			if s.allowed(m) {
				return m
			}
			return s.replacement
		})
	}

	if s.leaks != nil {
		text = s.leaks.redact(text, s.replacement)
	}
	return text
}

func (s *Sanitizer) allowed(match string) bool {
	for _, re := range s.allow {
		if re.MatchString(match) {
			return true
		}
	}
	return false
}

func hasKeyword(lower string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
