package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVec2(t *testing.T) {
	a := V(3, 4)
	assert.Equal(t, 5.0, a.Len())
	assert.Equal(t, 25.0, a.LenSq())
	assert.True(t, a.Normalize().ApproxEqual(V(0.6, 0.8), 1e-12))
	assert.Equal(t, Vec2{}, Vec2{}.Normalize())
	assert.Equal(t, V(4, 6), a.Add(V(1, 2)))
	assert.Equal(t, 11.0, a.Dot(V(1, 2)))
	assert.False(t, V(math.NaN(), 0).IsFinite())
	assert.False(t, V(0, math.Inf(-1)).IsFinite())
	assert.True(t, a.IsFinite())
}

func TestAABB(t *testing.T) {
	b := Box(0, 0, 10, 10)

	t.Run("Intersects", func(t *testing.T) {
		assert.True(t, b.Intersects(Box(5, 5, 15, 15)))
		assert.True(t, b.Intersects(Box(10, 0, 12, 2)), "touching edges intersect")
		assert.False(t, b.Intersects(Box(11, 0, 12, 2)))
	})

	t.Run("Contains", func(t *testing.T) {
		assert.True(t, b.Contains(Box(1, 1, 9, 9)))
		assert.False(t, b.Contains(Box(-1, 1, 9, 9)))
		assert.True(t, b.ContainsPoint(V(10, 10)))
	})

	t.Run("Sweep", func(t *testing.T) {
		s := b.Sweep(V(-2, 3))
		assert.Equal(t, Box(-2, 0, 10, 13), s)
	})

	t.Run("Quadrants", func(t *testing.T) {
		q := b.Quadrants()
		require.Len(t, q, 4)
		assert.Equal(t, Box(0, 0, 5, 5), q[0])
		assert.Equal(t, Box(5, 0, 10, 5), q[1])
		assert.Equal(t, Box(0, 5, 5, 10), q[2])
		assert.Equal(t, Box(5, 5, 10, 10), q[3])
	})

	t.Run("ClosestPoint", func(t *testing.T) {
		assert.Equal(t, V(10, 4), b.ClosestPoint(V(20, 4)))
		assert.Equal(t, V(3, 4), b.ClosestPoint(V(3, 4)))
	})

	assert.False(t, Box(1, 0, 0, 1).IsValid())
	assert.True(t, b.IsValid())
}
