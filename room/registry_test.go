/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	g := NewRegistry()
	c1, c2 := newConn(), newConn()

	g.Open(c1)
	assert.Equal(t, 1, g.Len())
	_, ok := g.Lookup(c1.ID())
	assert.False(t, ok, "open connections are not bound")

	assert.Nil(t, g.Attach(c1, "p1"))
	pid, ok := g.Lookup(c1.ID())
	require.True(t, ok)
	assert.Equal(t, "p1", pid)

	got, ok := g.ConnFor("p1")
	require.True(t, ok)
	assert.Equal(t, c1.ID(), got.ID())

	t.Run("attaching again replaces", func(t *testing.T) {
		replaced := g.Attach(c2, "p1")
		require.NotNil(t, replaced)
		assert.Equal(t, c1.ID(), replaced.ID())
		assert.False(t, g.IsOpen(c1.ID()))

		got, ok := g.ConnFor("p1")
		require.True(t, ok)
		assert.Equal(t, c2.ID(), got.ID())
	})

	t.Run("detaching a replaced conn is a no-op", func(t *testing.T) {
		_, ok := g.Detach(c1.ID())
		assert.False(t, ok)
		_, ok = g.ConnFor("p1")
		assert.True(t, ok)
	})

	t.Run("detach", func(t *testing.T) {
		pid, ok := g.Detach(c2.ID())
		require.True(t, ok)
		assert.Equal(t, "p1", pid)
		_, ok = g.ConnFor("p1")
		assert.False(t, ok)
		assert.Equal(t, 0, g.Len())
	})

	t.Run("unbind", func(t *testing.T) {
		c3 := newConn()
		g.Attach(c3, "p2")

		got, ok := g.Unbind("p2")
		require.True(t, ok)
		assert.Equal(t, c3.ID(), got.ID())
		assert.False(t, g.IsOpen(c3.ID()))

		_, ok = g.Unbind("p2")
		assert.False(t, ok)
	})
}
