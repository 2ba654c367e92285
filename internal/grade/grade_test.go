package grade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"PP1", PP1},
		{"pp 2", PP2},
		{"Pre-Primary 1", PP1},
		{"Grade 4", G4},
		{"grade  12", G12},
		{"4", G4},
		{"G7", G7},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []string{"", "Grade 13", "Grade 0", "PP3", "nursery"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrUnknownGrade, bad)
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("PP1-PP2")
	require.NoError(t, err)
	assert.Equal(t, Range{Min: PP1, Max: PP2}, r)

	r, err = ParseRange("PP2-3")
	require.NoError(t, err)
	assert.Equal(t, Range{Min: PP2, Max: G3}, r)
	assert.Equal(t, "PP2-3", r.String())

	r, err = ParseRange("5")
	require.NoError(t, err)
	assert.Equal(t, Range{Min: G5, Max: G5}, r)

	_, err = ParseRange("3-1")
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = ParseRange("1-2-3")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestParseRangeWithFullNames(t *testing.T) {
	cases := []struct {
		label string
		want  Range
	}{
		{"Pre-Primary 1-Pre-Primary 2", Range{Min: PP1, Max: PP2}},
		{"Pre-Primary 2 - Grade 3", Range{Min: PP2, Max: G3}},
		{"Grade 1-Grade 3", Range{Min: G1, Max: G3}},
		{"Pre-Primary 2", Range{Min: PP2, Max: PP2}},
	}
	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			got, err := ParseRange(tc.label)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	assert.True(t, AppliesToGrade("PP1", "Pre-Primary 1-Pre-Primary 2"))
	_, err := ParseRange("Pre-Primary 2-Pre-Primary 1")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestRangeOverlaps(t *testing.T) {
	lower := Range{Min: G1, Max: G3}
	assert.True(t, lower.Overlaps(Range{Min: G3, Max: G5}))
	assert.True(t, lower.Overlaps(Range{Min: G2, Max: G2}))
	assert.False(t, lower.Overlaps(Range{Min: G4, Max: G6}))
	assert.False(t, lower.Overlaps(Range{Min: PP1, Max: PP2}))
}

func TestAppliesToGrade(t *testing.T) {
	cases := []struct {
		grade string
		rng   string
		want  bool
	}{
		{"PP1", "PP1-PP2", true},
		{"Grade 4", "1-3", false},
		{"Grade 2", "1-3", true},
		{"Grade 1", "1-3", true},
		{"Grade 3", "1-3", true},
		{"PP2", "1-3", false},
		{"PP2", "PP2-3", true},
		{"Grade 5", "5", true},
		{"Grade 5", "garbage", false},
		{"unknown", "1-3", false},
	}
	for _, tc := range cases {
		t.Run(tc.grade+" in "+tc.rng, func(t *testing.T) {
			assert.Equal(t, tc.want, AppliesToGrade(tc.grade, tc.rng))
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "PP1", PP1.String())
	assert.Equal(t, "Grade 10", G10.String())
	assert.Equal(t, "Unknown", Unknown.String())
}
