package middleware

import (
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
)

func TestContainer_GetAllAndClear(t *testing.T) {
	// Arrange
	noop := func(ctx huma.Context, next func(huma.Context)) { next(ctx) }
	c := NewContainer()

	// Act
	first := c.Add(noop).Add(nil).Add(noop).GetAllAndClear()
	second := c.GetAllAndClear()

	// Assert
	assert.Len(t, first, 2)
	assert.NotNil(t, second)
	assert.Empty(t, second)
}
