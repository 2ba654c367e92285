// Package format renders invoice numbers from a configurable template.
package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

var seqPadRe = regexp.MustCompile(`\{SEQ(\d+)\}`)

// SchoolSegment turns a school code into the uppercase, separator-free
// segment used by the {SCHOOL} token.
func SchoolSegment(code string) string {
	s := slug.Make(code)
	s = strings.ReplaceAll(s, "-", "")
	return strings.ToUpper(s)
}

// FormatInvoiceNumber expands template with the school code, the issue date
// and a per-school sequence. Supported tokens: {SCHOOL} {YYYY} {YY} {MM}
// {DD} {SEQ} and {SEQn} for an n-digit zero-padded sequence.
func FormatInvoiceNumber(template, schoolCode string, issuedAt time.Time, seq int64) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("invoice number template is empty")
	}
	if seq <= 0 {
		return "", fmt.Errorf("invalid invoice sequence: %d", seq)
	}

	out := template
	if strings.Contains(out, "{SCHOOL}") {
		segment := SchoolSegment(schoolCode)
		if segment == "" {
			return "", fmt.Errorf("school code %q has no usable characters", schoolCode)
		}
		out = strings.ReplaceAll(out, "{SCHOOL}", segment)
	}

	out = strings.ReplaceAll(out, "{YYYY}", issuedAt.Format("2006"))
	out = strings.ReplaceAll(out, "{YY}", issuedAt.Format("06"))
	out = strings.ReplaceAll(out, "{MM}", issuedAt.Format("01"))
	out = strings.ReplaceAll(out, "{DD}", issuedAt.Format("02"))
	out = strings.ReplaceAll(out, "{SEQ}", strconv.FormatInt(seq, 10))

	out = seqPadRe.ReplaceAllStringFunc(out, func(m string) string {
		match := seqPadRe.FindStringSubmatch(m)
		width, err := strconv.Atoi(match[1])
		if err != nil || width <= 0 {
			return m
		}
		return fmt.Sprintf("%0*d", width, seq)
	})

	if strings.ContainsAny(out, "{}") {
		return "", fmt.Errorf("unresolved token in invoice number: %s", out)
	}
	return out, nil
}
