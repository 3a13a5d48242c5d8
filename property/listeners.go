package property

// listenerSet stores zero, one, or many listeners in registration order.
// The one-listener case is stored directly so the common property with a
// single subscriber allocates no slice. Duplicates are permitted.
//
// The zero value is the empty set. All operations are copy-on-write and
// return the resulting set, so the same code serves the confined core (which
// reassigns a field) and the concurrent core (which CASes the set inside an
// immutable state record).
//
// While a delivery pass is active, removal tombstones the slot (nil entry)
// instead of shrinking, keeping in-flight iteration indices valid. Tombstones
// are compacted by the next mutation that happens while no delivery is
// active, and by the confined core at the end of a drain.
type listenerSet[T comparable] struct {
	one  ChangeListener[T]
	many []ChangeListener[T]
}

func (s listenerSet[T]) size() int {
	if s.many != nil {
		return len(s.many)
	}
	if s.one != nil {
		return 1
	}
	return 0
}

// at returns the listener at slot i, nil for a tombstone.
func (s listenerSet[T]) at(i int) ChangeListener[T] {
	if s.many != nil {
		return s.many[i]
	}
	return s.one
}

func (s listenerSet[T]) liveCount() int {
	if s.many != nil {
		n := 0
		for _, l := range s.many {
			if l != nil {
				n++
			}
		}
		return n
	}
	if s.one != nil {
		return 1
	}
	return 0
}

func (s listenerSet[T]) isEmpty() bool {
	return s.liveCount() == 0
}

func (s listenerSet[T]) add(l ChangeListener[T], delivering bool) listenerSet[T] {
	if s.many == nil {
		if s.one == nil {
			return listenerSet[T]{one: l}
		}
		return listenerSet[T]{many: []ChangeListener[T]{s.one, l}}
	}
	if delivering {
		next := make([]ChangeListener[T], len(s.many)+1)
		copy(next, s.many)
		next[len(s.many)] = l
		return listenerSet[T]{many: next}
	}
	next := make([]ChangeListener[T], 0, len(s.many)+1)
	for _, cur := range s.many {
		if cur != nil {
			next = append(next, cur)
		}
	}
	next = append(next, l)
	return listenerSet[T]{many: next}
}

// remove drops the first slot identical to l and reports whether it was
// found. During a delivery pass the slot is tombstoned rather than removed.
func (s listenerSet[T]) remove(l ChangeListener[T], delivering bool) (listenerSet[T], bool) {
	if s.many == nil {
		if s.one != nil && s.one == l {
			return listenerSet[T]{}, true
		}
		return s, false
	}
	idx := -1
	for i, cur := range s.many {
		if cur != nil && cur == l {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s, false
	}
	if delivering {
		next := make([]ChangeListener[T], len(s.many))
		copy(next, s.many)
		next[idx] = nil
		return listenerSet[T]{many: next}, true
	}
	next := make([]ChangeListener[T], 0, len(s.many)-1)
	for i, cur := range s.many {
		if i != idx && cur != nil {
			next = append(next, cur)
		}
	}
	return setFromSlice(next), true
}

// compact drops tombstones and demotes back to the direct forms.
func (s listenerSet[T]) compact() listenerSet[T] {
	if s.many == nil {
		return s
	}
	live := s.liveCount()
	if live == len(s.many) {
		return s
	}
	next := make([]ChangeListener[T], 0, live)
	for _, cur := range s.many {
		if cur != nil {
			next = append(next, cur)
		}
	}
	return setFromSlice(next)
}

func setFromSlice[T comparable](ls []ChangeListener[T]) listenerSet[T] {
	switch len(ls) {
	case 0:
		return listenerSet[T]{}
	case 1:
		return listenerSet[T]{one: ls[0]}
	default:
		return listenerSet[T]{many: ls}
	}
}
