package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/schoolfee/internal/feecatalog/domain"
	prefdomain "github.com/smallbiznis/schoolfee/internal/preference/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func catalog() (Inputs, snowflake.ID) {
	route := snowflake.ID(7)
	return Inputs{
		StudentID:      1,
		GradeID:        2,
		AcademicYearID: 3,
		Tuition:        &catalogdomain.TuitionFee{AmountFullDay: d("35000"), AmountHalfDay: d("20000")},
		Route:          &catalogdomain.TransportRoute{ID: route, AmountOneWay: d("7000"), AmountTwoWay: d("12000")},
		Food:           &catalogdomain.UniversalFee{FeeType: catalogdomain.FeeTypeFood, Amount: d("8000")},
		Sports:         &catalogdomain.UniversalFee{FeeType: catalogdomain.FeeTypeSports, Amount: d("3000")},
	}, route
}

func assertBreakdown(t *testing.T, want map[string]string, got Breakdown) {
	t.Helper()
	gotMap := got.Map()
	require.Len(t, gotMap, len(want))
	for k, v := range want {
		amount, ok := gotMap[k]
		require.True(t, ok, "missing %s", k)
		assert.True(t, amount.Equal(d(v)), "%s: got %s want %s", k, amount, v)
	}
}

func TestCalculateCompleteness(t *testing.T) {
	in, route := catalog()
	in.Preference = prefdomain.GuardianFeePreference{
		TuitionType:      prefdomain.TuitionFullDay,
		TransportRouteID: &route,
		TransportType:    prefdomain.TransportTwoWay,
		IncludeFood:      true,
		IncludeSports:    false,
	}

	res, err := Calculate(in)
	require.NoError(t, err)
	assert.True(t, res.Total.Equal(d("55000")), "total %s", res.Total)
	assertBreakdown(t, map[string]string{"Tuition": "35000", "Transport": "12000", "Food": "8000"}, res.Breakdown)
	assert.Empty(t, res.Warnings)
}

func TestCalculateFoldsRepeatedCategories(t *testing.T) {
	in, _ := catalog()
	in.Preference = prefdomain.GuardianFeePreference{TuitionType: prefdomain.TuitionFullDay, IncludeFood: true}
	in.Extras = []catalogdomain.FeeAmount{
		{Label: "food ", Amount: d("500")},
		{Label: "Swimming", Amount: d("1500")},
		{Label: "swimming", Amount: d("250")},
	}

	res, err := Calculate(in)
	require.NoError(t, err)
	require.Len(t, res.Breakdown, 3)
	assertBreakdown(t, map[string]string{"Tuition": "35000", "Food": "8500", "Swimming": "1750"}, res.Breakdown)
	assert.True(t, res.Total.Equal(d("45250")), "total %s", res.Total)

	raw, err := json.Marshal(res.Breakdown)
	require.NoError(t, err)
	assert.Equal(t, `{"Tuition":35000.00,"Food":8500.00,"Swimming":1750.00}`, string(raw))

	for _, category := range []string{CategoryTuition, CategoryTransport, CategoryFood, CategorySports} {
		assert.True(t, catalogdomain.ReservedLabel(category), "catalog must refuse extras named %s", category)
	}
}

func TestCalculateVariants(t *testing.T) {
	cases := []struct {
		name  string
		pref  func(route snowflake.ID) prefdomain.GuardianFeePreference
		edit  func(in *Inputs)
		want  map[string]string
		total string
		warn  []Warning
	}{
		{
			name: "half day only",
			pref: func(snowflake.ID) prefdomain.GuardianFeePreference {
				return prefdomain.GuardianFeePreference{TuitionType: prefdomain.TuitionHalfDay}
			},
			want:  map[string]string{"Tuition": "20000"},
			total: "20000",
		},
		{
			name: "one way plus sports",
			pref: func(route snowflake.ID) prefdomain.GuardianFeePreference {
				return prefdomain.GuardianFeePreference{TuitionType: prefdomain.TuitionFullDay, TransportRouteID: &route, TransportType: prefdomain.TransportOneWay, IncludeSports: true}
			},
			want:  map[string]string{"Tuition": "35000", "Transport": "7000", "Sports": "3000"},
			total: "45000",
		},
		{
			name: "route with direction none is ignored",
			pref: func(route snowflake.ID) prefdomain.GuardianFeePreference {
				return prefdomain.GuardianFeePreference{TuitionType: prefdomain.TuitionFullDay, TransportRouteID: &route, TransportType: prefdomain.TransportNone}
			},
			edit:  func(in *Inputs) { in.Route = nil },
			want:  map[string]string{"Tuition": "35000"},
			total: "35000",
		},
		{
			name: "missing food degrades to a warning",
			pref: func(snowflake.ID) prefdomain.GuardianFeePreference {
				return prefdomain.GuardianFeePreference{TuitionType: prefdomain.TuitionFullDay, IncludeFood: true, IncludeSports: true}
			},
			edit:  func(in *Inputs) { in.Food = nil },
			want:  map[string]string{"Tuition": "35000", "Sports": "3000"},
			total: "38000",
			warn:  []Warning{{Code: WarningMissingOptionalFee, Fee: "food"}},
		},
		{
			name: "extras are labelled lines",
			pref: func(snowflake.ID) prefdomain.GuardianFeePreference {
				return prefdomain.GuardianFeePreference{TuitionType: prefdomain.TuitionFullDay}
			},
			edit: func(in *Inputs) {
				in.Extras = []catalogdomain.FeeAmount{{Label: "Lab kit", Amount: d("2500.50")}}
			},
			want:  map[string]string{"Tuition": "35000", "Lab kit": "2500.50"},
			total: "37500.50",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in, route := catalog()
			in.Preference = tc.pref(route)
			if tc.edit != nil {
				tc.edit(&in)
			}
			res, err := Calculate(in)
			require.NoError(t, err)
			assertBreakdown(t, tc.want, res.Breakdown)
			assert.True(t, res.Total.Equal(d(tc.total)), "total %s", res.Total)
			assert.Equal(t, tc.warn, res.Warnings)
		})
	}
}

func TestCalculateMissingRequired(t *testing.T) {
	in, route := catalog()
	in.Tuition = nil
	in.Preference = prefdomain.GuardianFeePreference{TuitionType: prefdomain.TuitionFullDay}

	_, err := Calculate(in)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCatalogEntry))
	var missing *MissingCatalogEntryError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, catalogdomain.KindTuition, missing.Kind)
	assert.Equal(t, snowflake.ID(2), missing.GradeID)

	in, route = catalog()
	in.Route = nil
	in.Preference = prefdomain.GuardianFeePreference{TuitionType: prefdomain.TuitionFullDay, TransportRouteID: &route, TransportType: prefdomain.TransportTwoWay}
	_, err = Calculate(in)
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, catalogdomain.KindTransport, missing.Kind)
	assert.Equal(t, route, missing.RouteID)
}

func TestBreakdownJSONKeepsOrder(t *testing.T) {
	b := Breakdown{
		{Category: CategoryTuition, Amount: d("35000")},
		{Category: CategoryTransport, Amount: d("12000")},
		{Category: CategoryFood, Amount: d("8000")},
	}
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, `{"Tuition":35000.00,"Transport":12000.00,"Food":8000.00}`, string(raw))
}
