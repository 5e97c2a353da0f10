package validator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
)

func TestKeywordClassifier_Default(t *testing.T) {
	k := DefaultClassifier()

	tests := []struct {
		instruction string
		gap         float64
		ok          bool
	}{
		{"Draw a tree much further from the house", 0.30, true},
		{"put a cloud far from the sun", 0.30, true},
		{"draw a dog next to the cat", 0.10, true},
		{"a lamp beside the bed", 0.10, true},
		{"a car to the left of the house", 0.15, true},
		{"draw a farm", 0, false},
		{"draw a circle", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.instruction, func(t *testing.T) {
			intent, ok := k.Classify(tt.instruction)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.gap, intent.Gap, 1e-12)
		})
	}
}

func TestNewKeywordClassifier_RejectsBadRules(t *testing.T) {
	_, err := NewKeywordClassifier([]PhraseRule{{Phrases: []string{"near"}, Gap: 0}})
	assert.True(t, errors.Is(err, ErrPhraseTable))

	_, err = NewKeywordClassifier([]PhraseRule{{Gap: 0.2}})
	assert.True(t, errors.Is(err, ErrPhraseTable))
}

type fixedClassifier struct{ gap float64 }

func (f fixedClassifier) Classify(string) (SpacingIntent, bool) {
	return SpacingIntent{Phrase: "fixed", Gap: f.gap}, true
}

func TestSwappableClassifier(t *testing.T) {
	s := NewSwappableClassifier(nil)
	_, ok := s.Classify("anything")
	assert.False(t, ok)

	s.Swap(fixedClassifier{gap: 0.2})
	intent, ok := s.Classify("anything")
	assert.True(t, ok)
	assert.Equal(t, 0.2, intent.Gap)
}

func TestWithClassifier(t *testing.T) {
	v, err := New(nil, WithClassifier(fixedClassifier{gap: 0.5}))
	require.NoError(t, err)
	snap := snapshotWith(t, [][]coords.Point{rect(0.1, 0.4, 0.3, 0.6)}, nil)

	r := v.Validate(context.Background(), Candidate{Strokes: [][]coords.Point{rect(0.4, 0.4, 0.6, 0.6)}}, snap, "no phrase here")

	require.Len(t, r.Issues, 1)
	assert.Equal(t, CategorySpacing, r.Issues[0].Category)
}

const phraseTOML = `
[[rule]]
phrases = ["near"]
gap = 0.05
`

func TestLoadPhraseTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.toml")
	require.NoError(t, os.WriteFile(path, []byte(phraseTOML), 0o600))

	k, err := LoadPhraseTable(path)
	require.NoError(t, err)
	intent, ok := k.Classify("a bird near the tree")
	assert.True(t, ok)
	assert.Equal(t, 0.05, intent.Gap)

	_, err = LoadPhraseTable(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, errors.Is(err, ErrPhraseTable))

	require.NoError(t, os.WriteFile(path, []byte("rule = 3"), 0o600))
	_, err = LoadPhraseTable(path)
	assert.Error(t, err)
}

func TestPhraseWatcher_Reloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phrases.toml")
	require.NoError(t, os.WriteFile(path, []byte(phraseTOML), 0o600))

	target := NewSwappableClassifier(DefaultClassifier())
	w, err := NewPhraseWatcher(path, target, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	_, ok := target.Classify("next to the house")
	assert.False(t, ok, "file table replaces the defaults")

	require.NoError(t, os.WriteFile(path, []byte("[[rule]]\nphrases = [\"next to\"]\ngap = 0.12\n"), 0o600))

	select {
	case <-w.Reloaded():
	case <-time.After(5 * time.Second):
		t.Fatal("phrase table was not reloaded")
	}
	intent, ok := target.Classify("next to the house")
	assert.True(t, ok)
	assert.Equal(t, 0.12, intent.Gap)
}
