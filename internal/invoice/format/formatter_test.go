package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatInvoiceNumber(t *testing.T) {
	issued := time.Date(2026, 1, 9, 8, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		template string
		code     string
		seq      int64
		want     string
	}{
		{name: "default", template: "{SCHOOL}-{YYYY}{MM}-{SEQ5}", code: "HILL", seq: 7, want: "HILL-202601-00007"},
		{name: "code normalized", template: "{SCHOOL}/{SEQ}", code: "st. mary's", seq: 12, want: "STMARYS/12"},
		{name: "short date", template: "INV{YY}{MM}{DD}-{SEQ3}", code: "", seq: 1, want: "INV260109-001"},
		{name: "sequence wider than pad", template: "{SEQ2}", code: "X", seq: 1234, want: "1234"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FormatInvoiceNumber(tc.template, tc.code, issued, tc.seq)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatInvoiceNumberErrors(t *testing.T) {
	issued := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)

	_, err := FormatInvoiceNumber("", "HILL", issued, 1)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber("{SEQ}", "HILL", issued, 0)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber("{SCHOOL}-{SEQ}", "  ", issued, 1)
	assert.Error(t, err)

	_, err = FormatInvoiceNumber("{TERM}-{SEQ}", "HILL", issued, 1)
	assert.Error(t, err)
}
