package registry

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndGetValidStreams(t *testing.T) {
	r := New[string](nil)
	sentinel := &Sentinel{}
	r.Add(Token(1), "stream-one", sentinel)

	entries := r.GetValidStreams()
	require.Len(t, entries, 1)
	assert.Equal(t, Token(1), entries[0].Token)
	assert.Equal(t, "stream-one", entries[0].Value)
	runtime.KeepAlive(sentinel)
}

func TestRemoveDropsEntry(t *testing.T) {
	r := New[int](nil)
	sentinel := &Sentinel{}
	r.Add(Token(1), 42, sentinel)
	r.Remove(Token(1))
	assert.Empty(t, r.GetValidStreams())
	assert.Equal(t, 0, r.Len())
	runtime.KeepAlive(sentinel)
}

// Property 1: after a stream's sentinel is collected, no registry lookup
// ever returns it again.
func TestDeadSentinelNeverResolves(t *testing.T) {
	r := New[int](nil)
	func() {
		sentinel := &Sentinel{}
		r.Add(Token(7), 7, sentinel)
	}() // sentinel goes out of scope here with no other strong refs

	var got []Entry[int]
	for i := 0; i < 50; i++ {
		runtime.GC()
		got = r.GetValidStreams()
		if len(got) == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	assert.Empty(t, got, "entry must not resolve once its sentinel is collected")
}

func TestNoDuplicateTokens(t *testing.T) {
	r := New[int](nil)
	s1, s2 := &Sentinel{}, &Sentinel{}
	r.Add(Token(1), 1, s1)
	r.Add(Token(1), 2, s2)
	assert.Equal(t, 1, r.Len())
	entries := r.GetValidStreams()
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Value)
	runtime.KeepAlive(s1)
	runtime.KeepAlive(s2)
}

func TestInUseGuardReleases(t *testing.T) {
	var counter int32
	g := Acquire(&counter)
	assert.Equal(t, int32(1), atomic.LoadInt32(&counter))
	g.Release()
	assert.Equal(t, int32(0), atomic.LoadInt32(&counter))
}

func TestWaitForIdleBlocksUntilReleased(t *testing.T) {
	var counter int32
	g := Acquire(&counter)

	done := make(chan struct{})
	go func() {
		WaitForIdle(&counter)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("WaitForIdle returned before Release")
	case <-time.After(20 * time.Millisecond):
	}

	g.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitForIdle did not return after Release")
	}
}

func TestConcurrentAddRemove(t *testing.T) {
	r := New[int](nil)
	var wg sync.WaitGroup
	sentinels := make([]*Sentinel, 100)
	for i := range sentinels {
		sentinels[i] = &Sentinel{}
	}
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Add(Token(i), i, sentinels[i])
			r.Remove(Token(i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
	runtime.KeepAlive(sentinels)
}
