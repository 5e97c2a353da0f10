package validator

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// SpacingIntent is the gap an instruction asks for.
type SpacingIntent struct {
	Phrase string
	Gap    float64
}

// SpacingClassifier infers the expected gap between new and existing
// geometry from an instruction. ok is false when the instruction carries
// no spacing intent.
type SpacingClassifier interface {
	Classify(instruction string) (intent SpacingIntent, ok bool)
}

// PhraseRule maps one or more phrases to an expected gap. Rules are tried
// in order and the first match wins.
type PhraseRule struct {
	Phrases []string `toml:"phrases" json:"phrases"`
	Gap     float64  `toml:"gap" json:"gap"`
}

// DefaultPhraseRules is the built-in phrase table. Longer phrases come
// first so "much further" is not read as a bare "further".
func DefaultPhraseRules() []PhraseRule {
	return []PhraseRule{
		{Phrases: []string{"much further", "far away from", "far from", "far"}, Gap: 0.30},
		{Phrases: []string{"to the left of", "to the right of", "to the left", "to the right", "to the side of"}, Gap: 0.15},
		{Phrases: []string{"beside", "next to", "alongside"}, Gap: 0.10},
	}
}

type compiledRule struct {
	phrase string
	re     *regexp.Regexp
	gap    float64
}

// KeywordClassifier matches whole-word phrases against the instruction.
type KeywordClassifier struct {
	rules []compiledRule
}

// NewKeywordClassifier compiles rules into a classifier.
func NewKeywordClassifier(rules []PhraseRule) (*KeywordClassifier, error) {
	k := &KeywordClassifier{}
	for i, r := range rules {
		if r.Gap <= 0 || r.Gap > 1 {
			return nil, fmt.Errorf("%w: rule %d gap %g outside (0,1]", ErrPhraseTable, i, r.Gap)
		}
		if len(r.Phrases) == 0 {
			return nil, fmt.Errorf("%w: rule %d has no phrases", ErrPhraseTable, i)
		}
		for _, p := range r.Phrases {
			p = strings.ToLower(strings.TrimSpace(p))
			if p == "" {
				return nil, fmt.Errorf("%w: rule %d has an empty phrase", ErrPhraseTable, i)
			}
			words := strings.Fields(p)
			for j, w := range words {
				words[j] = regexp.QuoteMeta(w)
			}
			re := regexp.MustCompile(`\b` + strings.Join(words, `\s+`) + `\b`)
			k.rules = append(k.rules, compiledRule{phrase: p, re: re, gap: r.Gap})
		}
	}
	return k, nil
}

// DefaultClassifier returns a classifier over DefaultPhraseRules.
func DefaultClassifier() *KeywordClassifier {
	k, err := NewKeywordClassifier(DefaultPhraseRules())
	if err != nil {
		panic(err)
	}
	return k
}

// Classify implements SpacingClassifier.
func (k *KeywordClassifier) Classify(instruction string) (SpacingIntent, bool) {
	text := strings.ToLower(instruction)
	for _, r := range k.rules {
		if r.re.MatchString(text) {
			return SpacingIntent{Phrase: r.phrase, Gap: r.gap}, true
		}
	}
	return SpacingIntent{}, false
}

// SwappableClassifier delegates to a classifier that can be replaced at
// runtime, e.g. when the phrase table file changes.
type SwappableClassifier struct {
	mu    sync.RWMutex
	inner SpacingClassifier
}

// NewSwappableClassifier wraps inner.
func NewSwappableClassifier(inner SpacingClassifier) *SwappableClassifier {
	return &SwappableClassifier{inner: inner}
}

// Swap replaces the delegate.
func (s *SwappableClassifier) Swap(inner SpacingClassifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inner = inner
}

// Classify implements SpacingClassifier.
func (s *SwappableClassifier) Classify(instruction string) (SpacingIntent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.inner == nil {
		return SpacingIntent{}, false
	}
	return s.inner.Classify(instruction)
}
