package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPercent(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		pct    string
		want   string
	}{
		{name: "five percent", amount: "55000", pct: "5", want: "2750"},
		{name: "rounds half up", amount: "100.10", pct: "5", want: "5.01"},
		{name: "zero percent", amount: "1234.56", pct: "0", want: "0"},
		{name: "fractional", amount: "333.33", pct: "5", want: "16.67"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Percent(decimal.RequireFromString(tc.amount), decimal.RequireFromString(tc.pct))
			assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "got %s want %s", got, tc.want)
		})
	}
}

func TestSumRoundsToCents(t *testing.T) {
	got := Sum(decimal.RequireFromString("0.105"), decimal.RequireFromString("0.1"))
	assert.Equal(t, "0.21", got.StringFixed(Places))
}

func TestParse(t *testing.T) {
	v, err := Parse("")
	assert.NoError(t, err)
	assert.True(t, v.IsZero())

	v, err = Parse("12000.005")
	assert.NoError(t, err)
	assert.Equal(t, "12000.01", Format(v))

	_, err = Parse("abc")
	assert.Error(t, err)
}
