// Package auditcontext carries who is acting and from where, so audit
// records and preference change logs can be stamped without threading the
// values through every call.
package auditcontext

import (
	"context"
	"strings"
)

type (
	actorKey     struct{}
	requestIDKey struct{}
	ipKey        struct{}
	userAgentKey struct{}
)

type actor struct {
	typ string
	id  string
}

const (
	ActorTypeStaff  = "staff"
	ActorTypeSystem = "system"
)

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{typ: strings.TrimSpace(actorType), id: strings.TrimSpace(actorID)})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	a, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return a.typ, a.id
}

// ActorLabel renders the actor as "type:id" for change logs; empty when unknown.
func ActorLabel(ctx context.Context) string {
	typ, id := ActorFromContext(ctx)
	switch {
	case typ == "" && id == "":
		return ""
	case id == "":
		return typ
	case typ == "":
		return id
	default:
		return typ + ":" + id
	}
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, strings.TrimSpace(ip))
}

func IPAddressFromContext(ctx context.Context) string {
	return stringValue(ctx, ipKey{})
}

func WithUserAgent(ctx context.Context, ua string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, strings.TrimSpace(ua))
}

func UserAgentFromContext(ctx context.Context) string {
	return stringValue(ctx, userAgentKey{})
}

func stringValue(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
