package requestid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_Missing(t *testing.T) {
	id := FromContext(context.Background())
	assert.NotEmpty(t, id) // generates new UUID
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "test-123")
	assert.Equal(t, "test-123", FromContext(ctx))
}

func TestResolve(t *testing.T) {
	id := "0b6f3f8e-2c1a-4d5e-9f00-123456789abc"
	assert.Equal(t, id, Resolve(id))

	generated := Resolve("not-a-uuid")
	assert.NotEqual(t, "not-a-uuid", generated)
	assert.Len(t, generated, 36)

	assert.NotEmpty(t, Resolve(""))
}
