package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	route := snowflake.ID(9)
	zero := snowflake.ID(0)

	cases := []struct {
		name      string
		in        GuardianFeePreference
		wantType  TransportType
		wantRoute *snowflake.ID
	}{
		{name: "empty type defaults to none", in: GuardianFeePreference{}, wantType: TransportNone},
		{name: "type without route", in: GuardianFeePreference{TransportType: TransportTwoWay}, wantType: TransportNone},
		{name: "zero route is no route", in: GuardianFeePreference{TransportType: TransportOneWay, TransportRouteID: &zero}, wantType: TransportNone},
		{name: "route without type", in: GuardianFeePreference{TransportType: TransportNone, TransportRouteID: &route}, wantType: TransportNone},
		{name: "complete", in: GuardianFeePreference{TransportType: TransportOneWay, TransportRouteID: &route}, wantType: TransportOneWay, wantRoute: &route},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.in
			p.Normalize()
			assert.Equal(t, tc.wantType, p.TransportType)
			assert.Equal(t, tc.wantRoute, p.TransportRouteID)
		})
	}
}

func TestDiff(t *testing.T) {
	before := GuardianFeePreference{TuitionType: TuitionFullDay, TransportType: TransportNone}
	after := before
	after.TuitionType = TuitionHalfDay
	after.IncludeSports = true

	diff := Diff(before, after)
	assert.Equal(t, FieldDiff{
		"tuition_type":   {From: "full_day", To: "half_day"},
		"include_sports": {From: false, To: true},
	}, diff)
	assert.Empty(t, Diff(before, before))
}
