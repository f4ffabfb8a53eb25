package partition

import (
	"fmt"

	"github.com/notargets/gotpfa/mesh"
	"github.com/notargets/gotpfa/tpfa"
	"gonum.org/v1/gonum/spatial/r3"
)

// AttributeView reads the assembly attributes of a partition through the
// four schema tags. It is safe for concurrent reads.
type AttributeView struct {
	pt *Partition

	globalID, centroid, perm, dirichlet Tag
}

var _ tpfa.AttributeProvider = (*AttributeView)(nil)

func NewAttributeView(pt *Partition) (av *AttributeView, err error) {
	av = &AttributeView{pt: pt}
	for _, tt := range []struct {
		name string
		tag  *Tag
	}{
		{mesh.GlobalIDTag, &av.globalID},
		{mesh.CentroidTag, &av.centroid},
		{mesh.PermeabilityTag, &av.perm},
		{mesh.DirichletBCTag, &av.dirichlet},
	} {
		if *tt.tag, err = pt.store.TagGetHandle(tt.name); err != nil {
			return nil, fmt.Errorf("tag_get_handle for %s failed: %w", tt.name, err)
		}
	}
	return
}

func (av *AttributeView) OwnedElements() (es []int) {
	es = make([]int, av.pt.NumOwned())
	for k := range es {
		es[k] = k
	}
	return
}

func (av *AttributeView) BridgeAdjacencies(e int) (adj []int, err error) {
	var hs []Handle
	if hs, err = av.pt.BridgeAdjacencies(Handle(e), 2, 3); err != nil {
		return
	}
	adj = make([]int, len(hs))
	for i, h := range hs {
		adj[i] = int(h)
	}
	return
}

func (av *AttributeView) GlobalID(e int) (gid int, err error) {
	var v [1]int
	err = av.pt.store.GetInts(av.globalID, Handle(e), v[:])
	return v[0], err
}

func (av *AttributeView) Centroid(e int) (c r3.Vec, err error) {
	var v [3]float64
	err = av.pt.store.GetDoubles(av.centroid, Handle(e), v[:])
	return r3.Vec{X: v[0], Y: v[1], Z: v[2]}, err
}

func (av *AttributeView) Permeability(e int) (k tpfa.PermeabilityTensor, err error) {
	err = av.pt.store.GetDoubles(av.perm, Handle(e), k[:])
	return
}

func (av *AttributeView) BoundaryValue(e int) (bv float64, err error) {
	var v [1]float64
	err = av.pt.store.GetDoubles(av.dirichlet, Handle(e), v[:])
	return v[0], err
}
