package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatchDrainsInOrder(t *testing.T) {
	d := New()
	var order []int
	d.Enqueue(1, func() { order = append(order, 1) })
	d.Enqueue(1, func() { order = append(order, 2) })
	d.Enqueue(2, func() { order = append(order, 3) })

	assert.Equal(t, 3, d.Len())
	d.Dispatch()
	assert.Equal(t, []int{1, 2, 3}, order)
	assert.Equal(t, 0, d.Len())
}

func TestCleanupPurgesToken(t *testing.T) {
	d := New()
	fired := false
	d.Enqueue(1, func() { fired = true })
	d.Enqueue(2, func() {})

	d.Cleanup(1)
	assert.Equal(t, 1, d.Len())
	d.Dispatch()
	assert.False(t, fired)
}

func TestDispatchNeverInvokesOnEmptyQueue(t *testing.T) {
	d := New()
	d.Dispatch() // must not panic
	assert.Equal(t, 0, d.Len())
}
