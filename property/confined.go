package property

import "fmt"

// ConfinedProperty is a mutable property owned by the goroutine that created
// it. Every entry point validates the caller against the owner and panics on
// a mismatch; with that guarantee it needs no synchronization at all.
type ConfinedProperty[T comparable] struct {
	owner    uint64
	value    T
	ls       listenerSet[T]
	pending  *[]T // non-nil exactly while a delivery pass is active
	bound    *binding[T]
	observed func(observed bool)
}

// Confined creates a property confined to the calling goroutine.
func Confined[T comparable](initial T, opts ...Option) *ConfinedProperty[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &ConfinedProperty[T]{
		owner:    goroutineID(),
		value:    initial,
		observed: o.observed,
	}
}

func (p *ConfinedProperty[T]) checkAccess() {
	if id := goroutineID(); id != p.owner {
		panic(fmt.Sprintf("property: confined to goroutine %d, accessed from goroutine %d", p.owner, id))
	}
}

func (p *ConfinedProperty[T]) Value() T {
	p.checkAccess()
	return p.value
}

func (p *ConfinedProperty[T]) MayChange() bool { return true }

func (p *ConfinedProperty[T]) IsConcurrent() bool { return false }

func (p *ConfinedProperty[T]) AddChangeListener(l ChangeListener[T]) {
	p.checkAccess()
	wasEmpty := p.ls.isEmpty()
	p.ls = p.ls.add(l, p.pending != nil)
	if wasEmpty && p.observed != nil {
		p.observed(true)
	}
}

func (p *ConfinedProperty[T]) RemoveChangeListener(l ChangeListener[T]) {
	p.checkAccess()
	next, found := p.ls.remove(l, p.pending != nil)
	if !found {
		return
	}
	p.ls = next
	if next.isEmpty() && p.observed != nil {
		p.observed(false)
	}
}

func (p *ConfinedProperty[T]) SetValue(v T) {
	p.checkAccess()
	p.unbind()
	p.commit(v)
}

func (p *ConfinedProperty[T]) CompareAndSet(expect, update T) bool {
	p.checkAccess()
	p.unbind()
	if p.value != expect {
		return false
	}
	p.commit(update)
	return true
}

func (p *ConfinedProperty[T]) BindTo(src Property[T]) {
	p.checkAccess()
	p.unbind()
	if !src.MayChange() {
		p.commit(src.Value())
		return
	}
	b := &binding[T]{source: src, forward: &forwardListener[T]{dst: p}}
	p.bound = b
	src.AddChangeListener(b.forward)
	p.commit(src.Value())
}

func (p *ConfinedProperty[T]) Unbind() {
	p.checkAccess()
	p.unbind()
}

func (p *ConfinedProperty[T]) unbind() {
	if b := p.bound; b != nil {
		p.bound = nil
		b.source.RemoveChangeListener(b.forward)
	}
}

// forwardCommit is the upstream-binding entry point. It runs on whatever
// goroutine committed upstream, so it revalidates confinement.
func (p *ConfinedProperty[T]) forwardCommit(v T) {
	p.checkAccess()
	p.commit(v)
}

func (p *ConfinedProperty[T]) commit(v T) {
	old := p.value
	p.value = v
	p.notify(old, v)
}

// notify flattens reentrant commits through the pending queue: a commit made
// by a listener further down the stack appends and returns, and the delivery
// pass that is already running picks it up in FIFO order. Exactly one pass
// drains at a time, so every listener observes commits in one global order.
func (p *ConfinedProperty[T]) notify(old, new T) {
	if p.ls.isEmpty() {
		return
	}
	if p.pending != nil {
		*p.pending = append(*p.pending, new)
		return
	}
	var queue []T
	p.pending = &queue
	// cleared on unwind as well: a panicking listener aborts the pass, and
	// whatever it had not yet delivered is dropped rather than left in a
	// queue no pass will ever drain
	defer func() {
		p.pending = nil
		p.ls = p.ls.compact()
	}()
	p.deliver(old, new)
	prev := new
	for len(*p.pending) > 0 {
		head := (*p.pending)[0]
		*p.pending = (*p.pending)[1:]
		p.deliver(prev, head)
		prev = head
	}
}

// deliver notifies every live listener of one transition, re-reading the
// listener container at every step so churn from inside a callback is
// honored immediately.
func (p *ConfinedProperty[T]) deliver(old, new T) {
	for i := 0; ; i++ {
		ls := p.ls
		if i >= ls.size() {
			return
		}
		l := ls.at(i)
		if l == nil {
			continue
		}
		l.OnChange(old, new)
	}
}
