// Package grade models school grade levels as an ordered enum so that fee
// ranges such as "PP1-PP2" or "1-3" can be compared as intervals.
package grade

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Level is the ordinal position of a grade. Pre-primary levels sort before
// Grade 1.
type Level int

const (
	Unknown Level = iota
	PP1
	PP2
	G1
	G2
	G3
	G4
	G5
	G6
	G7
	G8
	G9
	G10
	G11
	G12
)

const (
	MinLevel = PP1
	MaxLevel = G12
)

var (
	ErrUnknownGrade = errors.New("unknown_grade")
	ErrInvalidRange = errors.New("invalid_grade_range")
)

var (
	prePrimaryRe = regexp.MustCompile(`^(?:pp|pre[\s-]*primary|preprimary)\s*([12])$`)
	numberedRe   = regexp.MustCompile(`^(?:grade|g|class|std|standard)?\s*(\d{1,2})$`)
)

// Parse normalizes a grade label such as "PP1", "Pre-Primary 2", "Grade 4"
// or "4" into a Level.
func Parse(label string) (Level, error) {
	normalized := strings.ToLower(strings.TrimSpace(label))
	normalized = strings.Join(strings.Fields(normalized), " ")
	if normalized == "" {
		return Unknown, ErrUnknownGrade
	}

	if m := prePrimaryRe.FindStringSubmatch(normalized); m != nil {
		if m[1] == "1" {
			return PP1, nil
		}
		return PP2, nil
	}

	if m := numberedRe.FindStringSubmatch(normalized); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > 12 {
			return Unknown, ErrUnknownGrade
		}
		return G1 + Level(n-1), nil
	}

	return Unknown, ErrUnknownGrade
}

func (l Level) Valid() bool {
	return l >= MinLevel && l <= MaxLevel
}

func (l Level) String() string {
	switch {
	case l == PP1:
		return "PP1"
	case l == PP2:
		return "PP2"
	case l >= G1 && l <= G12:
		return fmt.Sprintf("Grade %d", int(l-G1)+1)
	default:
		return "Unknown"
	}
}

// Code is the compact form used inside range labels ("PP1", "4").
func (l Level) Code() string {
	switch {
	case l == PP1, l == PP2:
		return l.String()
	case l >= G1 && l <= G12:
		return strconv.Itoa(int(l-G1) + 1)
	default:
		return ""
	}
}

// Range is an inclusive [Min, Max] interval of grade levels.
type Range struct {
	Min Level
	Max Level
}

// ParseRange accepts "PP1-PP2", "1-3", "PP2-3", full names such as
// "Pre-Primary 1-Pre-Primary 2", and single grades such as "5". Grade names
// may themselves contain hyphens, so every separator position is tried and
// exactly one must split the label into two grades.
func ParseRange(label string) (Range, error) {
	trimmed := strings.TrimSpace(label)
	if trimmed == "" {
		return Range{}, ErrInvalidRange
	}
	if lvl, err := Parse(trimmed); err == nil {
		return Range{Min: lvl, Max: lvl}, nil
	}

	var (
		found Range
		n     int
	)
	for i, c := range trimmed {
		if c != '-' {
			continue
		}
		lo, err := Parse(trimmed[:i])
		if err != nil {
			continue
		}
		hi, err := Parse(trimmed[i+1:])
		if err != nil {
			continue
		}
		found, n = Range{Min: lo, Max: hi}, n+1
	}
	if n != 1 || found.Min > found.Max {
		return Range{}, ErrInvalidRange
	}
	return found, nil
}

func (r Range) Contains(l Level) bool {
	return l.Valid() && l >= r.Min && l <= r.Max
}

// Overlaps reports whether the two ranges share at least one grade.
func (r Range) Overlaps(o Range) bool {
	return r.Min <= o.Max && o.Min <= r.Max
}

func (r Range) String() string {
	if r.Min == r.Max {
		return r.Min.Code()
	}
	return r.Min.Code() + "-" + r.Max.Code()
}

// AppliesToGrade reports whether gradeLabel falls inside rangeLabel.
// Labels that cannot be parsed never match.
func AppliesToGrade(gradeLabel, rangeLabel string) bool {
	lvl, err := Parse(gradeLabel)
	if err != nil {
		return false
	}
	r, err := ParseRange(rangeLabel)
	if err != nil {
		return false
	}
	return r.Contains(lvl)
}
