package secrets

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// DefaultRedaction replaces each detected secret.
const DefaultRedaction = "[REDACTED]"

// Config configures a Scrubber.
type Config struct {
	Enabled   bool     `koanf:"enabled"`
	Redaction string   `koanf:"redaction"`
	AllowList []string `koanf:"allow_list"`
}

// DefaultConfig returns an enabled scrubber config with no allow list.
func DefaultConfig() *Config {
	return &Config{Enabled: true, Redaction: DefaultRedaction}
}

// Finding is one detected secret.
type Finding struct {
	RuleID string
	Line   int
	secret string
}

// Result is the outcome of a Scrub call.
type Result struct {
	Text     string
	Findings []Finding
}

// HasFindings reports whether anything was redacted.
func (r *Result) HasFindings() bool { return len(r.Findings) > 0 }

// RuleIDs returns the distinct rule IDs that matched, sorted.
func (r *Result) RuleIDs() []string {
	seen := make(map[string]struct{}, len(r.Findings))
	ids := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		if _, ok := seen[f.RuleID]; ok {
			continue
		}
		seen[f.RuleID] = struct{}{}
		ids = append(ids, f.RuleID)
	}
	sort.Strings(ids)
	return ids
}

// Scrubber detects and redacts secrets.
type Scrubber struct {
	enabled   bool
	redaction string
	allow     []*regexp.Regexp
}

// New validates cfg and returns a Scrubber. A nil cfg uses DefaultConfig.
func New(cfg *Config) (*Scrubber, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Scrubber{enabled: cfg.Enabled, redaction: cfg.Redaction}
	if s.redaction == "" {
		s.redaction = DefaultRedaction
	}
	for i, pattern := range cfg.AllowList {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("allow_list %d: invalid pattern: %w", i, err)
		}
		s.allow = append(s.allow, re)
	}
	return s, nil
}

// Enabled reports whether Scrub redacts anything.
func (s *Scrubber) Enabled() bool { return s.enabled }

// Scrub returns content with every detected secret replaced.
func (s *Scrubber) Scrub(content string) (*Result, error) {
	res := &Result{Text: content}
	if !s.enabled || content == "" {
		return res, nil
	}

	// The detector accumulates findings, so each scan gets its own.
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	if len(s.allow) > 0 {
		applyAllowList(&detector.Config, s.allow)
	}

	for _, f := range detector.DetectString(content) {
		if f.Secret == "" {
			continue
		}
		res.Findings = append(res.Findings, Finding{RuleID: f.RuleID, Line: f.StartLine, secret: f.Secret})
	}
	if len(res.Findings) == 0 {
		return res, nil
	}

	// Longest first so a secret containing another is replaced whole.
	secrets := make([]string, 0, len(res.Findings))
	for _, f := range res.Findings {
		secrets = append(secrets, f.secret)
	}
	sort.Slice(secrets, func(i, j int) bool { return len(secrets[i]) > len(secrets[j]) })
	text := content
	for _, secret := range secrets {
		text = strings.ReplaceAll(text, secret, s.redaction)
	}
	res.Text = text
	return res, nil
}

// Redact implements the oracle redactor contract.
func (s *Scrubber) Redact(content string) (string, []string, error) {
	res, err := s.Scrub(content)
	if err != nil {
		return "", nil, err
	}
	return res.Text, res.RuleIDs(), nil
}

func applyAllowList(cfg *gitleaksConfig.Config, patterns []*regexp.Regexp) {
	allow := &gitleaksConfig.Allowlist{Description: "sketchd allow list"}
	for _, re := range patterns {
		allow.Regexes = append(allow.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	cfg.Allowlists = append(cfg.Allowlists, allow)
}
