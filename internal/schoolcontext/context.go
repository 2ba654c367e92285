// Package schoolcontext carries the active school (tenant) through a request.
package schoolcontext

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type schoolContextKey struct{}

// WithSchoolID stores the school ID in the context.
func WithSchoolID(ctx context.Context, schoolID snowflake.ID) context.Context {
	return context.WithValue(ctx, schoolContextKey{}, schoolID)
}

// SchoolIDFromContext returns the school ID from context, if set.
func SchoolIDFromContext(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}

	switch typed := ctx.Value(schoolContextKey{}).(type) {
	case snowflake.ID:
		return typed, typed != 0
	case int64:
		return snowflake.ID(typed), typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil && parsed != 0 {
			return parsed, true
		}
	}
	return 0, false
}
