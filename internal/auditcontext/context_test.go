package auditcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorLabel(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", ActorLabel(ctx))

	ctx = WithActor(ctx, ActorTypeStaff, "1001")
	typ, id := ActorFromContext(ctx)
	assert.Equal(t, ActorTypeStaff, typ)
	assert.Equal(t, "1001", id)
	assert.Equal(t, "staff:1001", ActorLabel(ctx))

	assert.Equal(t, "system", ActorLabel(WithActor(context.Background(), ActorTypeSystem, "")))
}

func TestRequestMetadata(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	ctx = WithIPAddress(ctx, "10.0.0.1")
	ctx = WithUserAgent(ctx, "curl")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "10.0.0.1", IPAddressFromContext(ctx))
	assert.Equal(t, "curl", UserAgentFromContext(ctx))
}
