// Package property provides observable mutable value containers. A property
// holds a current value and notifies registered change listeners of every
// transition, either confined to the goroutine that created it (fast,
// unsynchronized) or shared between goroutines (lock-free).
package property

// ChangeListener receives value transitions. It is invoked synchronously on
// the goroutine that performed the commit. Listener identity is interface
// identity, which is what removal compares against.
type ChangeListener[T comparable] interface {
	OnChange(old, new T)
}

// Property is the read side of an observable value.
type Property[T comparable] interface {
	Value() T
	// MayChange reports whether the value can ever change. Constants return
	// false, which lets dependents snapshot instead of subscribing.
	MayChange() bool
	// IsConcurrent reports whether the property may be accessed from any
	// goroutine.
	IsConcurrent() bool
	AddChangeListener(l ChangeListener[T])
	RemoveChangeListener(l ChangeListener[T])
}

// MutableProperty is the write side: direct sets, compare-and-set, and
// binding to an upstream property.
type MutableProperty[T comparable] interface {
	Property[T]
	SetValue(v T)
	// CompareAndSet stores update and notifies iff the current value is
	// identical to expect, comparing with ==. For pointer-typed T that is
	// pointer identity: two distinct but equal-by-value objects do not match.
	CompareAndSet(expect, update T) bool
	// BindTo makes this property mirror src until the next SetValue,
	// CompareAndSet, BindTo or Unbind. Binding pulls src's current value and
	// always delivers one transition for it, even if the value is unchanged.
	BindTo(src Property[T])
	// Unbind severs the current binding, if any, by unsubscribing from the
	// upstream property. The value keeps whatever was mirrored last.
	Unbind()
}

type funcListener[T comparable] struct {
	fn func(old, new T)
}

func (f *funcListener[T]) OnChange(old, new T) {
	f.fn(old, new)
}

// ListenFunc wraps fn in a ChangeListener with a fresh identity, so the
// returned value can later be passed to RemoveChangeListener.
func ListenFunc[T comparable](fn func(old, new T)) ChangeListener[T] {
	return &funcListener[T]{fn: fn}
}

type options struct {
	observed func(observed bool)
}

// Option configures a property at construction.
type Option func(*options)

// WithObservedHook registers a callback fired with true when the live
// listener count goes 0→1 and false when it goes back to 0. Other listener
// churn fires nothing. For concurrent properties the hook runs while the
// transition lock is held and must not add or remove listeners on the same
// property.
func WithObservedHook(fn func(observed bool)) Option {
	return func(o *options) {
		o.observed = fn
	}
}

type constant[T comparable] struct {
	v T
}

func (c *constant[T]) Value() T { return c.v }

func (c *constant[T]) MayChange() bool { return false }

func (c *constant[T]) IsConcurrent() bool { return true }

func (c *constant[T]) AddChangeListener(ChangeListener[T]) {}

func (c *constant[T]) RemoveChangeListener(ChangeListener[T]) {}

// Constant returns a property that never changes. Listener registration is a
// no-op, so nothing bound to a constant retains a subscription to it.
func Constant[T comparable](v T) Property[T] {
	return &constant[T]{v: v}
}
