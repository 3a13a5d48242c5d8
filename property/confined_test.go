package property_test

import (
	"fmt"
	"testing"

	"github.com/delaneyj/propertyparty/property"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pair struct {
	old, new int
}

type recorder struct {
	pairs []pair
}

func (r *recorder) OnChange(old, new int) {
	r.pairs = append(r.pairs, pair{old, new})
}

// should hold the initial value and report its mode
func TestConfinedBasics(t *testing.T) {
	p := property.Confined(42)
	assert.Equal(t, 42, p.Value())
	assert.True(t, p.MayChange())
	assert.False(t, p.IsConcurrent())

	p.SetValue(43)
	assert.Equal(t, 43, p.Value())
}

// every listener sees every commit as a chained (old,new) sequence
func TestConfinedNotificationChain(t *testing.T) {
	p := property.Confined(0)
	r1 := &recorder{}
	r2 := &recorder{}
	p.AddChangeListener(r1)
	p.AddChangeListener(r2)

	const n = 100
	for i := 1; i <= n; i++ {
		p.SetValue(i)
	}

	for _, r := range []*recorder{r1, r2} {
		require.Len(t, r.pairs, n)
		for i, pr := range r.pairs {
			assert.Equal(t, i, pr.old)
			assert.Equal(t, i+1, pr.new)
		}
	}
}

// a set from inside a listener is delivered to everyone only after the
// current transition finished delivering to everyone
func TestConfinedReentrantSetOrdering(t *testing.T) {
	p := property.Confined(0)
	r1 := &recorder{}
	r2 := &recorder{}

	p.AddChangeListener(property.ListenFunc(func(old, new int) {
		r1.pairs = append(r1.pairs, pair{old, new})
		if new == 1 {
			p.SetValue(2)
		}
	}))
	p.AddChangeListener(r2)

	p.SetValue(1)

	want := []pair{{0, 1}, {1, 2}}
	assert.Equal(t, want, r1.pairs)
	assert.Equal(t, want, r2.pairs)
	assert.Equal(t, 2, p.Value())
}

// deeper reentrancy still drains iteratively in commit order
func TestConfinedReentrantCascade(t *testing.T) {
	p := property.Confined(0)
	r := &recorder{}
	p.AddChangeListener(property.ListenFunc(func(old, new int) {
		if new < 5 {
			p.SetValue(new + 1)
		}
	}))
	p.AddChangeListener(r)

	p.SetValue(1)

	assert.Equal(t, []pair{{0, 1}, {1, 2}, {2, 3}, {3, 4}, {4, 5}}, r.pairs)
}

// a listener removing itself mid-delivery must not be invoked again
func TestConfinedSelfRemovalDuringDelivery(t *testing.T) {
	p := property.Confined(0)
	calls := 0
	var self property.ChangeListener[int]
	self = property.ListenFunc(func(old, new int) {
		calls++
		p.RemoveChangeListener(self)
	})
	after := &recorder{}
	p.AddChangeListener(self)
	p.AddChangeListener(after)

	p.SetValue(1)
	p.SetValue(2)

	assert.Equal(t, 1, calls)
	assert.Equal(t, []pair{{0, 1}, {1, 2}}, after.pairs)
}

// a listener added from inside a delivery receives all subsequent transitions
func TestConfinedAddDuringDelivery(t *testing.T) {
	p := property.Confined(0)
	late := &recorder{}
	added := false
	p.AddChangeListener(property.ListenFunc(func(old, new int) {
		if !added {
			added = true
			p.AddChangeListener(late)
		}
	}))

	p.SetValue(1)
	p.SetValue(2)

	require.NotEmpty(t, late.pairs)
	assert.Equal(t, pair{1, 2}, late.pairs[len(late.pairs)-1])
}

// a removed listener stops being invoked and the rest keep the order
func TestConfinedRemoveListener(t *testing.T) {
	p := property.Confined(0)
	r1 := &recorder{}
	r2 := &recorder{}
	p.AddChangeListener(r1)
	p.AddChangeListener(r2)

	p.SetValue(1)
	p.RemoveChangeListener(r1)
	p.SetValue(2)

	assert.Equal(t, []pair{{0, 1}}, r1.pairs)
	assert.Equal(t, []pair{{0, 1}, {1, 2}}, r2.pairs)
}

// duplicate registrations are permitted and invoked once per registration
func TestConfinedDuplicateListener(t *testing.T) {
	p := property.Confined(0)
	r := &recorder{}
	p.AddChangeListener(r)
	p.AddChangeListener(r)

	p.SetValue(1)
	assert.Equal(t, []pair{{0, 1}, {0, 1}}, r.pairs)

	p.RemoveChangeListener(r)
	p.SetValue(2)
	assert.Equal(t, []pair{{0, 1}, {0, 1}, {1, 2}}, r.pairs)
}

// access from a goroutine other than the owner panics, naming both
func TestConfinedGoroutineAffinity(t *testing.T) {
	p := property.Confined(1)

	errc := make(chan any, 1)
	go func() {
		defer func() { errc <- recover() }()
		p.Value()
	}()
	msg := <-errc
	require.NotNil(t, msg)
	assert.Contains(t, fmt.Sprint(msg), "confined to goroutine")

	go func() {
		defer func() { errc <- recover() }()
		p.SetValue(2)
	}()
	require.NotNil(t, <-errc)

	// the owner is unaffected
	assert.Equal(t, 1, p.Value())
	p.SetValue(3)
	assert.Equal(t, 3, p.Value())
}

// a panicking listener aborts the pass and propagates to the caller
func TestConfinedListenerPanicAborts(t *testing.T) {
	p := property.Confined(0)
	after := &recorder{}
	p.AddChangeListener(property.ListenFunc(func(old, new int) {
		panic("listener boom")
	}))
	p.AddChangeListener(after)

	assert.PanicsWithValue(t, "listener boom", func() { p.SetValue(1) })
	assert.Empty(t, after.pairs)
	// the value itself was committed before delivery started
	assert.Equal(t, 1, p.Value())
}

// a recovered listener panic aborts only its own pass: the next commit
// delivers normally again
func TestConfinedDeliveryResumesAfterListenerPanic(t *testing.T) {
	p := property.Confined(0)
	boom := property.ListenFunc(func(old, new int) {
		panic("listener boom")
	})
	after := &recorder{}
	p.AddChangeListener(boom)
	p.AddChangeListener(after)

	assert.PanicsWithValue(t, "listener boom", func() { p.SetValue(1) })
	p.RemoveChangeListener(boom)

	p.SetValue(2)
	assert.Equal(t, []pair{{1, 2}}, after.pairs)
	assert.Equal(t, 2, p.Value())
}

// commits queued behind the pass a panic aborted are dropped, not delivered
// by a later pass
func TestConfinedPanicDropsQueuedTransitions(t *testing.T) {
	p := property.Confined(0)
	var boom property.ChangeListener[int]
	boom = property.ListenFunc(func(old, new int) {
		// queue a reentrant commit, then abort the pass before it drains
		p.RemoveChangeListener(boom)
		p.SetValue(2)
		panic("listener boom")
	})
	after := &recorder{}
	p.AddChangeListener(boom)
	p.AddChangeListener(after)

	assert.PanicsWithValue(t, "listener boom", func() { p.SetValue(1) })
	assert.Equal(t, 2, p.Value())

	p.SetValue(3)
	assert.Equal(t, []pair{{2, 3}}, after.pairs)
}
