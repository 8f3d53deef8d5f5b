package rdm

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
)

func Test_Loop_runs_in_order(t *testing.T) {
	defer leaktest.Check(t)()
	l := NewLoop()
	defer l.Close()

	var order []int
	for i := 0; i < 10; i++ {
		i := i
		assert.True(t, l.Post(func() { order = append(order, i) }))
	}
	assert.True(t, l.Do(func() {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func Test_Loop_Post_from_loop(t *testing.T) {
	defer leaktest.Check(t)()
	l := NewLoop()
	defer l.Close()

	doneCh := make(chan struct{})
	l.Post(func() {
		l.Post(func() { close(doneCh) })
	})
	select {
	case <-doneCh:
	case <-time.After(time.Second):
		assert.Fail(t, "nested Post never ran")
	}
}

func Test_Loop_After(t *testing.T) {
	defer leaktest.Check(t)()
	l := NewLoop()
	defer l.Close()

	firedCh := make(chan struct{})
	l.After(time.Millisecond*5, func() { close(firedCh) })
	select {
	case <-firedCh:
	case <-time.After(time.Second):
		assert.Fail(t, "After never fired")
	}

	var fired int32
	stop := l.After(time.Hour, func() { atomic.StoreInt32(&fired, 1) })
	assert.True(t, stop())
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func Test_Loop_Stop_discards_queue(t *testing.T) {
	defer leaktest.Check(t)()
	l := NewLoop()

	var ran int32
	l.Do(func() {
		l.Post(func() { atomic.StoreInt32(&ran, 1) })
		l.Stop()
	})
	assert.NoError(t, l.Close())
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
	assert.False(t, l.Post(func() {}))
	assert.False(t, l.Do(func() {}))

	select {
	case <-l.Done():
	default:
		assert.Fail(t, "Done not closed")
	}
}

func Test_Loop_Close_twice(t *testing.T) {
	defer leaktest.Check(t)()
	l := NewLoop()
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Close())
}
