package property

import (
	mapset "github.com/deckarep/golang-set/v2"
)

// Unbindable is the part of MutableProperty a Group needs.
type Unbindable interface {
	Unbind()
}

// Group tracks properties whose upstream bindings share a lifetime. Release
// severs every member's binding, which is all the teardown a property needs:
// once nothing subscribes to it and it subscribes to nothing, dropping the
// last reference finishes the job.
type Group struct {
	members mapset.Set[Unbindable]
}

func NewGroup() *Group {
	return &Group{members: mapset.NewSet[Unbindable]()}
}

func (g *Group) Add(p Unbindable) {
	g.members.Add(p)
}

func (g *Group) Remove(p Unbindable) {
	g.members.Remove(p)
}

func (g *Group) Len() int {
	return g.members.Cardinality()
}

// Release unbinds every member and empties the group. Members added after
// Release are unaffected; the group is reusable.
func (g *Group) Release() {
	for m := range g.members.Iter() {
		m.Unbind()
	}
	g.members.Clear()
}
