package validator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
	"github.com/fyrsmithlabs/sketchd/internal/memory"
)

func rect(minX, minY, maxX, maxY float64) []coords.Point {
	return []coords.Point{
		coords.Pt(minX, minY), coords.Pt(maxX, minY), coords.Pt(maxX, maxY), coords.Pt(minX, maxY), coords.Pt(minX, minY),
	}
}

func snapshotWith(t *testing.T, strokes [][]coords.Point, labels map[int]string) memory.Snapshot {
	t.Helper()
	m := memory.New()
	if len(strokes) > 0 {
		_, err := m.AddStrokes(strokes, labels, memory.StateConfirmed)
		require.NoError(t, err)
	}
	return m.Summary()
}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(nil)
	require.NoError(t, err)
	return v
}

func categories(r Result) []Category {
	var out []Category
	for _, i := range r.Issues {
		out = append(out, i.Category)
	}
	return out
}

func TestValidate_CleanCandidate(t *testing.T) {
	v := newValidator(t)

	r := v.Validate(context.Background(), Candidate{
		Strokes: [][]coords.Point{rect(0.2, 0.2, 0.5, 0.5)},
		Labels:  map[int]string{0: "square"},
	}, snapshotWith(t, nil, nil), "draw a square")

	assert.True(t, r.Valid)
	assert.Equal(t, 1.0, r.Score)
	assert.Empty(t, r.Issues)
	assert.NoError(t, r.Err())
}

func TestValidate_OverlapWithConfirmed(t *testing.T) {
	v := newValidator(t)
	snap := snapshotWith(t, [][]coords.Point{rect(0.2, 0.2, 0.5, 0.5)}, map[int]string{0: "box"})

	r := v.Validate(context.Background(), Candidate{
		Strokes: [][]coords.Point{rect(0.3, 0.2, 0.6, 0.5)},
		Labels:  map[int]string{0: "square"},
	}, snap, "draw a square")

	require.Len(t, r.Issues, 1)
	assert.Equal(t, CategoryOverlap, r.Issues[0].Category)
	assert.Equal(t, SeverityError, r.Issues[0].Severity)
	assert.Equal(t, []string{"square", "box"}, r.Issues[0].Entities)
	assert.InDelta(t, 0.7, r.Score, 1e-9)
	assert.False(t, r.Valid)

	var verr *ValidationError
	require.True(t, errors.As(r.Err(), &verr))
	assert.True(t, errors.Is(r.Err(), ErrInvalidCandidate))
}

func TestValidate_IgnoresPreviewGeometry(t *testing.T) {
	v := newValidator(t)
	m := memory.New()
	_, err := m.AddStrokes([][]coords.Point{rect(0.2, 0.2, 0.5, 0.5)}, nil, memory.StatePreview)
	require.NoError(t, err)

	r := v.Validate(context.Background(), Candidate{Strokes: [][]coords.Point{rect(0.2, 0.2, 0.5, 0.5)}}, m.Summary(), "draw a box")

	assert.True(t, r.Valid)
}

func TestValidate_OverlapBetweenCandidates(t *testing.T) {
	v := newValidator(t)

	r := v.Validate(context.Background(), Candidate{
		Strokes: [][]coords.Point{rect(0.1, 0.1, 0.4, 0.4), rect(0.15, 0.1, 0.45, 0.4)},
		Labels:  map[int]string{0: "a", 1: "b"},
	}, snapshotWith(t, nil, nil), "two boxes")

	assert.Equal(t, []Category{CategoryOverlap}, categories(r))
	assert.Equal(t, []int{0, 1}, r.Issues[0].Strokes)
}

func TestValidate_GroupsStrokesByLabel(t *testing.T) {
	v := newValidator(t)

	// Two strokes of one house share a box; they must not be judged as overlapping each other.
	r := v.Validate(context.Background(), Candidate{
		Strokes: [][]coords.Point{rect(0.2, 0.2, 0.5, 0.5), {coords.Pt(0.2, 0.5), coords.Pt(0.35, 0.7), coords.Pt(0.5, 0.5)}},
		Labels:  map[int]string{0: "house", 1: "house"},
	}, snapshotWith(t, nil, nil), "draw a house")

	assert.True(t, r.Valid, "%v", r.Issues)
}

func TestValidate_Symmetry(t *testing.T) {
	v := newValidator(t)

	t.Run("stacked ears", func(t *testing.T) {
		r := v.Validate(context.Background(), Candidate{
			Strokes: [][]coords.Point{rect(0.3, 0.6, 0.4, 0.7), rect(0.3, 0.3, 0.4, 0.4)},
			Labels:  map[int]string{0: "ear_left", 1: "ear_right"},
		}, snapshotWith(t, nil, nil), "add ears")

		assert.False(t, r.Valid)
		assert.Contains(t, categories(r), CategorySymmetry)
		for _, i := range r.Issues {
			assert.Equal(t, SeverityError, i.Severity)
		}
	})

	t.Run("balanced ears", func(t *testing.T) {
		r := v.Validate(context.Background(), Candidate{
			Strokes: [][]coords.Point{rect(0.2, 0.6, 0.3, 0.7), rect(0.6, 0.6, 0.7, 0.7)},
			Labels:  map[int]string{0: "ear_left", 1: "ear_right"},
		}, snapshotWith(t, nil, nil), "add ears")

		assert.True(t, r.Valid, "%v", r.Issues)
	})

	t.Run("mismatched sizes", func(t *testing.T) {
		r := v.Validate(context.Background(), Candidate{
			Strokes: [][]coords.Point{rect(0.1, 0.5, 0.2, 0.6), rect(0.5, 0.4, 0.8, 0.7)},
			Labels:  map[int]string{0: "left_eye", 1: "right_eye"},
		}, snapshotWith(t, nil, nil), "add eyes")

		require.Equal(t, []Category{CategorySymmetry}, categories(r))
		assert.Contains(t, r.Issues[0].Message, "similar in size")
	})

	t.Run("partner already confirmed", func(t *testing.T) {
		snap := snapshotWith(t, [][]coords.Point{rect(0.2, 0.6, 0.3, 0.7)}, map[int]string{0: "wheel_1"})
		r := v.Validate(context.Background(), Candidate{
			Strokes: [][]coords.Point{rect(0.6, 0.2, 0.7, 0.3)},
			Labels:  map[int]string{0: "wheel_2"},
		}, snap, "add another wheel")

		require.Equal(t, []Category{CategorySymmetry}, categories(r))
		assert.Contains(t, r.Issues[0].Message, "level")
	})

	t.Run("second pair beside an existing pair", func(t *testing.T) {
		snap := snapshotWith(t,
			[][]coords.Point{rect(0.05, 0.8, 0.15, 0.9), rect(0.5, 0.8, 0.6, 0.9)},
			map[int]string{0: "ear_left", 1: "ear_right"})
		r := v.Validate(context.Background(), Candidate{
			Strokes: [][]coords.Point{rect(0.3, 0.6, 0.4, 0.7), rect(0.3, 0.3, 0.4, 0.4)},
			Labels:  map[int]string{0: "ear_left", 1: "ear_right"},
		}, snap, "add ears")

		assert.False(t, r.Valid)
		require.NotEmpty(t, r.Issues)
		for _, i := range r.Issues {
			assert.Equal(t, CategorySymmetry, i.Category)
			assert.ElementsMatch(t, []string{"ear_left", "ear_right"}, i.Entities)
			assert.ElementsMatch(t, []int{0, 1}, i.Strokes, "the candidate ears are paired with each other")
		}
	})
}

type fixedIntent SpacingIntent

func (f fixedIntent) Classify(string) (SpacingIntent, bool) { return SpacingIntent(f), true }

func TestValidate_SpacingIgnoresZeroGap(t *testing.T) {
	v, err := New(nil, WithClassifier(fixedIntent{Phrase: "touching", Gap: 0}))
	require.NoError(t, err)
	snap := snapshotWith(t, [][]coords.Point{rect(0.1, 0.4, 0.3, 0.6)}, map[int]string{0: "house"})

	r := v.Validate(context.Background(), Candidate{
		Strokes: [][]coords.Point{rect(0.5, 0.4, 0.7, 0.6)},
		Labels:  map[int]string{0: "tree"},
	}, snap, "draw a tree touching the house")

	assert.Empty(t, r.Issues)
	assert.Equal(t, 1.0, r.Score)
}

func TestValidate_Spacing(t *testing.T) {
	v := newValidator(t)
	snap := snapshotWith(t, [][]coords.Point{rect(0.1, 0.4, 0.3, 0.6)}, map[int]string{0: "house"})

	tests := []struct {
		name     string
		minX     float64
		severity Severity
		ok       bool
	}{
		{"as asked", 0.4, "", true},
		{"a little off", 0.46, SeverityWarning, false},
		{"touching", 0.32, SeverityError, false},
		{"far off", 0.55, SeverityError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := v.Validate(context.Background(), Candidate{
				Strokes: [][]coords.Point{rect(tt.minX, 0.4, tt.minX+0.2, 0.6)},
				Labels:  map[int]string{0: "tree"},
			}, snap, "draw a tree next to the house")

			if tt.ok {
				assert.Empty(t, r.Issues)
				return
			}
			require.Len(t, r.Issues, 1)
			assert.Equal(t, CategorySpacing, r.Issues[0].Category)
			assert.Equal(t, tt.severity, r.Issues[0].Severity)
			assert.Equal(t, []string{"house"}, r.Issues[0].Entities)
		})
	}

	t.Run("no phrase", func(t *testing.T) {
		r := v.Validate(context.Background(), Candidate{Strokes: [][]coords.Point{rect(0.9, 0.4, 0.98, 0.6)}}, snap, "draw a tree")
		assert.Empty(t, r.Issues)
	})
}

func TestValidate_RatioAndSize(t *testing.T) {
	v := newValidator(t)

	t.Run("ratio", func(t *testing.T) {
		r := v.Validate(context.Background(), Candidate{
			Strokes: [][]coords.Point{rect(0.1, 0.1, 0.6, 0.6), rect(0.7, 0.7, 0.74, 0.74)},
			Labels:  map[int]string{0: "planet", 1: "moon"},
		}, snapshotWith(t, nil, nil), "draw a planet and a moon")

		assert.ElementsMatch(t, []Category{CategoryRatio, CategorySize}, categories(r))
		assert.Zero(t, r.WarningCount())
	})

	t.Run("too large", func(t *testing.T) {
		r := v.Validate(context.Background(), Candidate{Strokes: [][]coords.Point{rect(0.01, 0.01, 0.99, 0.99)}}, snapshotWith(t, nil, nil), "draw a frame")
		require.Equal(t, []Category{CategorySize}, categories(r))
		assert.Contains(t, r.Issues[0].Message, "smaller")
	})

	t.Run("straight line is not tiny", func(t *testing.T) {
		r := v.Validate(context.Background(), Candidate{
			Strokes: [][]coords.Point{{coords.Pt(0.1, 0.5), coords.Pt(0.6, 0.5)}},
		}, snapshotWith(t, nil, nil), "draw a line")
		assert.True(t, r.Valid)
	})

	t.Run("speck", func(t *testing.T) {
		r := v.Validate(context.Background(), Candidate{
			Strokes: [][]coords.Point{{coords.Pt(0.5, 0.5), coords.Pt(0.52, 0.5)}},
		}, snapshotWith(t, nil, nil), "draw a dash")
		require.Equal(t, []Category{CategorySize}, categories(r))
	})
}

func TestScore_MonotoneAndBounded(t *testing.T) {
	v := newValidator(t)
	prev := 1.0
	for n := 0; n < 12; n++ {
		var issues []Issue
		for i := 0; i < n; i++ {
			sev := SeverityWarning
			if i%2 == 0 {
				sev = SeverityError
			}
			issues = append(issues, Issue{Category: CategorySize, Severity: sev})
		}
		r := v.score(issues)
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0)
		assert.LessOrEqual(t, r.Score, prev, "adding an issue never raises the score")
		prev = r.Score
	}
	assert.Zero(t, prev)

	r := v.score([]Issue{{Severity: SeverityWarning}, {Severity: SeverityWarning}, {Severity: SeverityWarning}})
	assert.InDelta(t, 0.7, r.Score, 1e-9)
	assert.True(t, r.Valid, "three warnings still meet the threshold")

	r = v.score([]Issue{{Severity: SeverityWarning}, {Severity: SeverityWarning}, {Severity: SeverityWarning}, {Severity: SeverityWarning}})
	assert.False(t, r.Valid)
}

func TestValidate_DoesNotMutateSnapshot(t *testing.T) {
	v := newValidator(t)
	snap := snapshotWith(t, [][]coords.Point{rect(0.2, 0.2, 0.5, 0.5)}, map[int]string{0: "box"})
	before := snap.Render(coords.Grid{Size: 10})

	v.Validate(context.Background(), Candidate{Strokes: [][]coords.Point{rect(0.25, 0.25, 0.45, 0.45)}}, snap, "beside the box")

	assert.Equal(t, before, snap.Render(coords.Grid{Size: 10}))
}

func TestRepairHints(t *testing.T) {
	r := Result{Issues: []Issue{
		{Category: CategorySpacing, Severity: SeverityWarning, Message: "a bit far"},
		{Category: CategoryOverlap, Severity: SeverityError, Message: "sun overlaps house"},
	}}

	assert.Equal(t,
		"ISSUES DETECTED (fix these):\n1. [ERROR] OVERLAP: sun overlaps house\n2. [WARNING] SPACING: a bit far\n",
		r.RepairHints())
	assert.Empty(t, Result{}.RepairHints())
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap", func(c *Config) { c.MaxOverlap = 0 }},
		{"deviation order", func(c *Config) { c.SpacingErrorDeviation = 0.1 }},
		{"ratio", func(c *Config) { c.MaxSizeRatio = 1 }},
		{"area", func(c *Config) { c.MinArea = 0.9 }},
		{"threshold", func(c *Config) { c.ValidThreshold = 2 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			_, err := New(c)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestMetrics_RecordValidation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)
	v, err := New(nil, WithMetrics(metrics))
	require.NoError(t, err)

	ctx := context.Background()
	snap := snapshotWith(t, [][]coords.Point{rect(0.2, 0.2, 0.5, 0.5)}, nil)
	v.Validate(ctx, Candidate{Strokes: [][]coords.Point{rect(0.3, 0.2, 0.6, 0.5)}}, snap, "x")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	found := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					found[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(1), found["sketchd.validator.validations.total"])
	assert.Equal(t, int64(1), found["sketchd.validator.issues.total"])
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordValidation(context.Background(), Result{})
}
