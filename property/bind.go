package property

// binding is the non-owning relation between a bound property and its
// upstream source. Severing it is just removing the forwarding listener;
// nothing else retains the source.
type binding[T comparable] struct {
	source  Property[T]
	forward ChangeListener[T]
}

type committer[T comparable] interface {
	forwardCommit(v T)
}

// forwardListener re-enters the bound property's own commit-and-notify path
// on every upstream change.
type forwardListener[T comparable] struct {
	dst committer[T]
}

func (f *forwardListener[T]) OnChange(old, new T) {
	f.dst.forwardCommit(new)
}
