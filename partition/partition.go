// Package partition holds the elements one rank works on: the elements it
// owns plus a layer of ghost copies of elements owned by neighboring ranks.
package partition

import (
	"fmt"
	"sort"

	"github.com/notargets/gotpfa/mesh"
)

// Handle identifies an element in the local partition. Owned elements come
// first, ghosts are appended by ExchangeGhostCells.
type Handle int

type Partition struct {
	Rank          int
	NumPartitions int

	types    []mesh.ElementType
	vertices [][]int // Global vertex IDs
	owner    []int   // Owning rank of each element
	globalID []int
	nOwned   int

	coords      map[int][3]float64
	gidToHandle map[int]Handle
	store       *TagStore
	gidTag      Tag

	faceMap   map[string][]Handle // Face key -> local elements using the face
	adjacency [][]Handle          // Face neighbors, in local face order

	// Per neighbor rank, both sorted by global ID so the two sides line up
	sendLists map[int][]Handle // Owned elements ghosted by the neighbor
	recvLists map[int][]Handle // Ghosts owned by the neighbor

	ghosted bool
}

// New builds the local partition of one rank from its part of the mesh
func New(p *mesh.Part) (pt *Partition, err error) {
	pt = &Partition{
		Rank:          p.Rank,
		NumPartitions: p.NumPartitions,
		coords:        make(map[int][3]float64, len(p.Vertices)),
		gidToHandle:   make(map[int]Handle, len(p.Elements)),
		sendLists:     make(map[int][]Handle),
		recvLists:     make(map[int][]Handle),
	}
	if pt.store, err = NewTagStore(p.Tags); err != nil {
		return nil, err
	}
	if pt.gidTag, err = pt.store.TagGetHandle(mesh.GlobalIDTag); err != nil {
		return nil, err
	}
	for v, xyz := range p.Vertices {
		pt.coords[v] = xyz
	}
	pt.store.Grow(len(p.Elements))
	for k, el := range p.Elements {
		h := Handle(k)
		gids := el.IntTags[mesh.GlobalIDTag]
		if len(gids) != 1 {
			return nil, fmt.Errorf("element %d has no %s", k, mesh.GlobalIDTag)
		}
		if _, dup := pt.gidToHandle[gids[0]]; dup {
			return nil, fmt.Errorf("global id %d appears twice on rank %d", gids[0], p.Rank)
		}
		pt.addElement(el.Type, el.Vertices, p.Rank, gids[0])
		for name, vals := range el.IntTags {
			tag, err := pt.store.TagGetHandle(name)
			if err != nil {
				return nil, err
			}
			if err = pt.store.SetInts(tag, h, vals); err != nil {
				return nil, err
			}
		}
		for name, vals := range el.RealTags {
			tag, err := pt.store.TagGetHandle(name)
			if err != nil {
				return nil, err
			}
			if err = pt.store.SetDoubles(tag, h, vals); err != nil {
				return nil, err
			}
		}
	}
	pt.nOwned = len(p.Elements)
	err = pt.buildAdjacency()
	return
}

func (pt *Partition) addElement(et mesh.ElementType, verts []int, owner, gid int) Handle {
	h := Handle(len(pt.types))
	pt.types = append(pt.types, et)
	pt.vertices = append(pt.vertices, verts)
	pt.owner = append(pt.owner, owner)
	pt.globalID = append(pt.globalID, gid)
	pt.gidToHandle[gid] = h
	return h
}

// buildAdjacency matches faces between local elements, owned and ghost
func (pt *Partition) buildAdjacency() error {
	pt.faceMap = make(map[string][]Handle)
	for k := range pt.types {
		for _, fv := range mesh.GetElementFaces(pt.types[k], pt.vertices[k]) {
			key := mesh.FaceKey(fv)
			pt.faceMap[key] = append(pt.faceMap[key], Handle(k))
			if len(pt.faceMap[key]) > 2 {
				return fmt.Errorf("face %s is shared by more than two elements on rank %d", key, pt.Rank)
			}
		}
	}
	pt.adjacency = make([][]Handle, len(pt.types))
	for k := range pt.types {
		for _, fv := range mesh.GetElementFaces(pt.types[k], pt.vertices[k]) {
			for _, other := range pt.faceMap[mesh.FaceKey(fv)] {
				if other != Handle(k) {
					pt.adjacency[k] = append(pt.adjacency[k], other)
				}
			}
		}
	}
	return nil
}

// skinFaces returns the faces of owned elements that have no local neighbor,
// with the owned element that uses each of them.
func (pt *Partition) skinFaces() (keys []string, faceVerts [][]int, elems []Handle) {
	for k := 0; k < pt.nOwned; k++ {
		for _, fv := range mesh.GetElementFaces(pt.types[k], pt.vertices[k]) {
			key := mesh.FaceKey(fv)
			if len(pt.faceMap[key]) == 1 {
				keys = append(keys, key)
				faceVerts = append(faceVerts, fv)
				elems = append(elems, Handle(k))
			}
		}
	}
	return
}

func (pt *Partition) NumOwned() int  { return pt.nOwned }
func (pt *Partition) NumGhosts() int { return len(pt.types) - pt.nOwned }

func (pt *Partition) OwnedElements() (hs []Handle) {
	hs = make([]Handle, pt.nOwned)
	for k := range hs {
		hs[k] = Handle(k)
	}
	return
}

func (pt *Partition) GhostElements() (hs []Handle) {
	for k := pt.nOwned; k < len(pt.types); k++ {
		hs = append(hs, Handle(k))
	}
	return
}

func (pt *Partition) valid(h Handle) error {
	if int(h) < 0 || int(h) >= len(pt.types) {
		return fmt.Errorf("element handle %d out of range [0,%d)", h, len(pt.types))
	}
	return nil
}

func (pt *Partition) IsGhost(h Handle) bool { return int(h) >= pt.nOwned }

func (pt *Partition) Owner(h Handle) int { return pt.owner[h] }

func (pt *Partition) GlobalID(h Handle) int { return pt.globalID[h] }

func (pt *Partition) Type(h Handle) mesh.ElementType { return pt.types[h] }

// Lookup returns the local handle of a global ID
func (pt *Partition) Lookup(gid int) (h Handle, ok bool) {
	h, ok = pt.gidToHandle[gid]
	return
}

// MyGlobalIDs returns the global IDs of the owned elements, in handle order
func (pt *Partition) MyGlobalIDs() (gids []int) {
	gids = make([]int, pt.nOwned)
	copy(gids, pt.globalID[:pt.nOwned])
	return
}

// VertexCoords returns the coordinates of a global vertex known locally
func (pt *Partition) VertexCoords(v int) (xyz [3]float64, ok bool) {
	xyz, ok = pt.coords[v]
	return
}

// Tags exposes the attribute store
func (pt *Partition) Tags() *TagStore { return pt.store }

// BridgeAdjacencies returns the elements of dimension toDim that share an
// entity of dimension bridgeDim with h. Only face bridges between 3D
// elements are supported.
func (pt *Partition) BridgeAdjacencies(h Handle, bridgeDim, toDim int) (adj []Handle, err error) {
	if bridgeDim != 2 || toDim != 3 {
		return nil, fmt.Errorf("bridge adjacency %d->%d unsupported, only 2->3", bridgeDim, toDim)
	}
	if err = pt.valid(h); err != nil {
		return
	}
	adj = make([]Handle, len(pt.adjacency[h]))
	copy(adj, pt.adjacency[h])
	return
}

// NeighborRanks returns the ranks this partition exchanges ghosts with
func (pt *Partition) NeighborRanks() (ranks []int) {
	seen := make(map[int]bool)
	for r := range pt.sendLists {
		seen[r] = true
	}
	for r := range pt.recvLists {
		seen[r] = true
	}
	for r := range seen {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	return
}

// MaxNeighbors is the largest face neighbor count over owned elements
func (pt *Partition) MaxNeighbors() (n int) {
	for k := 0; k < pt.nOwned; k++ {
		n = max(n, len(pt.adjacency[k]))
	}
	return
}
