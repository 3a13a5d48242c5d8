package property

import (
	"sync"
	"sync/atomic"
)

// concurrentState is the whole shared state of a ConcurrentProperty. It is
// immutable; every transition replaces the record via CAS, so a reader never
// observes a partial update.
type concurrentState[T comparable] struct {
	value   T
	ls      listenerSet[T]
	pending []T // commit-ordered undelivered values; non-empty while a delivery pass owns notification
}

// ConcurrentProperty is a mutable property safe for any number of
// goroutines. Reads and writes are lock-free; edgeMu serializes only the
// rare 0↔non-zero live-listener transition around the observed hook.
type ConcurrentProperty[T comparable] struct {
	state    atomic.Pointer[concurrentState[T]]
	edgeMu   sync.RWMutex
	bindMu   sync.Mutex
	bound    *binding[T]
	observed func(observed bool)
}

// Concurrent creates a property shareable between goroutines.
func Concurrent[T comparable](initial T, opts ...Option) *ConcurrentProperty[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	p := &ConcurrentProperty[T]{observed: o.observed}
	p.state.Store(&concurrentState[T]{value: initial})
	return p
}

func (p *ConcurrentProperty[T]) Value() T {
	return p.state.Load().value
}

func (p *ConcurrentProperty[T]) MayChange() bool { return true }

func (p *ConcurrentProperty[T]) IsConcurrent() bool { return true }

func (p *ConcurrentProperty[T]) SetValue(v T) {
	p.Unbind()
	p.commit(v)
}

func (p *ConcurrentProperty[T]) CompareAndSet(expect, update T) bool {
	p.Unbind()
	for {
		cur := p.state.Load()
		if cur.value != expect {
			return false
		}
		if p.casState(cur, update) {
			return true
		}
	}
}

func (p *ConcurrentProperty[T]) BindTo(src Property[T]) {
	p.Unbind()
	if !src.MayChange() {
		p.commit(src.Value())
		return
	}
	b := &binding[T]{source: src, forward: &forwardListener[T]{dst: p}}
	// the subscribe stays inside the lock so a racing Unbind observes either
	// no binding or a fully registered one, never a published binding whose
	// forwarder is not yet subscribed
	p.bindMu.Lock()
	p.bound = b
	src.AddChangeListener(b.forward)
	p.bindMu.Unlock()
	p.commit(src.Value())
}

func (p *ConcurrentProperty[T]) Unbind() {
	p.bindMu.Lock()
	b := p.bound
	p.bound = nil
	p.bindMu.Unlock()
	if b != nil {
		b.source.RemoveChangeListener(b.forward)
	}
}

func (p *ConcurrentProperty[T]) forwardCommit(v T) {
	p.commit(v)
}

func (p *ConcurrentProperty[T]) commit(v T) {
	for {
		if p.casState(p.state.Load(), v) {
			return
		}
	}
}

// casState swaps in v as the committed value on top of cur, enqueueing it
// for delivery when live listeners exist, and reports whether the CAS won.
// The committer whose append turned pending non-empty becomes the sole
// deliverer; any other committer just enqueues and returns, and the owner
// picks its value up.
func (p *ConcurrentProperty[T]) casState(cur *concurrentState[T], v T) bool {
	if cur.ls.isEmpty() {
		next := &concurrentState[T]{value: v, ls: cur.ls, pending: cur.pending}
		return p.state.CompareAndSwap(cur, next)
	}
	pending := make([]T, len(cur.pending)+1)
	copy(pending, cur.pending)
	pending[len(cur.pending)] = v
	next := &concurrentState[T]{value: v, ls: cur.ls, pending: pending}
	if !p.state.CompareAndSwap(cur, next) {
		return false
	}
	if len(cur.pending) == 0 {
		p.drain(cur.value)
	}
	return true
}

// drain is the delivery pass. Only the goroutine whose commit claimed the
// deliverer role runs it, so pending[0] is stable here: committers append,
// only the deliverer pops. The listener container is reloaded before every
// single notification so additions mid-pass are honored immediately and
// removals are honored for not-yet-visited slots.
func (p *ConcurrentProperty[T]) drain(prev T) {
	// a panicking listener unwinds through here while this goroutine still
	// owns delivery; the role is released by dropping whatever the aborted
	// pass had not yet delivered, so a future commit can claim it again
	done := false
	defer func() {
		if !done {
			p.clearPending()
		}
	}()
	for {
		head := p.state.Load().pending[0]
		for i := 0; ; i++ {
			ls := p.state.Load().ls
			if i >= ls.size() {
				break
			}
			l := ls.at(i)
			if l == nil {
				continue
			}
			l.OnChange(prev, head)
		}
		prev = head
		if p.pop() {
			done = true
			return
		}
	}
}

func (p *ConcurrentProperty[T]) clearPending() {
	for {
		cur := p.state.Load()
		if len(cur.pending) == 0 {
			return
		}
		next := &concurrentState[T]{value: cur.value, ls: cur.ls, pending: nil}
		if p.state.CompareAndSwap(cur, next) {
			return
		}
	}
}

// pop removes the delivered head and reports whether the queue emptied,
// which releases the deliverer role to a future commit.
func (p *ConcurrentProperty[T]) pop() bool {
	for {
		cur := p.state.Load()
		if len(cur.pending) == 0 {
			panic("property: delivery pass found an empty pending queue")
		}
		var rest []T
		if len(cur.pending) > 1 {
			rest = make([]T, len(cur.pending)-1)
			copy(rest, cur.pending[1:])
		}
		next := &concurrentState[T]{value: cur.value, ls: cur.ls, pending: rest}
		if p.state.CompareAndSwap(cur, next) {
			return rest == nil
		}
	}
}

func (p *ConcurrentProperty[T]) AddChangeListener(l ChangeListener[T]) {
	for {
		cur := p.state.Load()
		if cur.ls.isEmpty() {
			if p.addFirst(l) {
				return
			}
			continue
		}
		p.edgeMu.RLock()
		cur = p.state.Load()
		if cur.ls.isEmpty() {
			p.edgeMu.RUnlock()
			continue
		}
		next := &concurrentState[T]{value: cur.value, ls: cur.ls.add(l, len(cur.pending) > 0), pending: cur.pending}
		ok := p.state.CompareAndSwap(cur, next)
		p.edgeMu.RUnlock()
		if ok {
			return
		}
	}
}

func (p *ConcurrentProperty[T]) RemoveChangeListener(l ChangeListener[T]) {
	for {
		cur := p.state.Load()
		next, found := cur.ls.remove(l, len(cur.pending) > 0)
		if !found {
			return
		}
		if next.isEmpty() {
			if p.removeLast(l) {
				return
			}
			continue
		}
		p.edgeMu.RLock()
		cur = p.state.Load()
		next, found = cur.ls.remove(l, len(cur.pending) > 0)
		if !found {
			p.edgeMu.RUnlock()
			return
		}
		if next.isEmpty() {
			p.edgeMu.RUnlock()
			continue
		}
		st := &concurrentState[T]{value: cur.value, ls: next, pending: cur.pending}
		ok := p.state.CompareAndSwap(cur, st)
		p.edgeMu.RUnlock()
		if ok {
			return
		}
	}
}

// addFirst installs the first live listener under the transition write lock
// and fires the observed hook inside it, so "decide to transition" and
// "commit the transition" cannot race. A lost race reports false and the
// caller retakes the ordinary path.
func (p *ConcurrentProperty[T]) addFirst(l ChangeListener[T]) bool {
	p.edgeMu.Lock()
	defer p.edgeMu.Unlock()
	cur := p.state.Load()
	if !cur.ls.isEmpty() {
		return false
	}
	next := &concurrentState[T]{value: cur.value, ls: cur.ls.add(l, len(cur.pending) > 0), pending: cur.pending}
	if !p.state.CompareAndSwap(cur, next) {
		return false
	}
	if p.observed != nil {
		p.observed(true)
	}
	return true
}

// removeLast is the 1→0 counterpart of addFirst. It reports true when the
// removal is fully handled, either by winning the edge transition or by
// finding nothing left to remove.
func (p *ConcurrentProperty[T]) removeLast(l ChangeListener[T]) bool {
	p.edgeMu.Lock()
	defer p.edgeMu.Unlock()
	cur := p.state.Load()
	next, found := cur.ls.remove(l, len(cur.pending) > 0)
	if !found {
		return true
	}
	if !next.isEmpty() {
		return false
	}
	st := &concurrentState[T]{value: cur.value, ls: next, pending: cur.pending}
	if !p.state.CompareAndSwap(cur, st) {
		return false
	}
	if p.observed != nil {
		p.observed(false)
	}
	return true
}
