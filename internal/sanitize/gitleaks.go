package sanitize

import (
	"regexp"
	"strings"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// leakDetector wraps a gitleaks detector built from the default config.
type leakDetector struct {
	mu       sync.Mutex
	detector *detect.Detector
}

func newLeakDetector(allowlist *Allowlist) (*leakDetector, error) {
	d, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}
	if allowlist != nil {
		applyAllowlist(&d.Config, allowlist)
	}
	return &leakDetector{detector: d}, nil
}

// redact replaces every secret gitleaks finds in text.
func (l *leakDetector) redact(text, replacement string) string {
	l.mu.Lock()
	findings := l.detector.DetectString(text)
	l.mu.Unlock()

	for _, f := range findings {
		if f.Secret == "" {
			continue
		}
		text = strings.ReplaceAll(text, f.Secret, replacement)
	}
	return text
}

// applyAllowlist appends the allowlist as a global gitleaks allowlist.
// Patterns were validated by LoadAllowlist.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	global := &gitleaksConfig.Allowlist{
		Description: "upcmd sanitizer allowlist",
	}
	for _, p := range allowlist.Paths {
		global.Paths = append(global.Paths, (*gitleaksRegexp.Regexp)(regexp.MustCompile(p)))
	}
	for _, p := range allowlist.Regexes {
		global.Regexes = append(global.Regexes, (*gitleaksRegexp.Regexp)(regexp.MustCompile(p)))
	}
	global.StopWords = append(global.StopWords, allowlist.Regexes...)
	cfg.Allowlists = append(cfg.Allowlists, global)
}
