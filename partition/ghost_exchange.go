package partition

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/gotpfa/mesh"
	"github.com/notargets/gotpfa/parallel"
)

// faceClaim is sent to the directory rank of a skin face
type faceClaim struct {
	Key string
	GID int
}

// ghostLink tells a rank that its element LocalGID shares a face with
// RemoteGID, owned by RemoteRank.
type ghostLink struct {
	LocalGID, RemoteGID, RemoteRank int
}

// ghostRecord is the topology of one ghost element
type ghostRecord struct {
	GID      int
	Type     mesh.ElementType
	Vertices []int
	Coords   [][3]float64
}

// tagMessage carries the values of one tag for a list of elements
type tagMessage struct {
	Name  string
	GIDs  []int
	Ints  []int
	Reals []float64
}

// directoryRank is the rank that matches claims on a face. All ranks must
// agree on it, so it depends only on the face vertices.
func directoryRank(faceVerts []int, size int) int {
	minV := faceVerts[0]
	for _, v := range faceVerts[1:] {
		minV = min(minV, v)
	}
	return minV % size
}

// checkCollectiveArgs verifies that every rank passed the same arguments
func checkCollectiveArgs(comm parallel.Comm, op string, args ...int) error {
	lo, err := comm.AllReduceInts(parallel.OpMin, args)
	if err != nil {
		return err
	}
	hi, err := comm.AllReduceInts(parallel.OpMax, args)
	if err != nil {
		return err
	}
	for i := range args {
		if lo[i] != hi[i] {
			return fmt.Errorf("%s called with different arguments across ranks: %v on rank %d",
				op, args, comm.Rank())
		}
	}
	return nil
}

// ExchangeGhostCells adds one layer of ghost elements: every element of
// dimension ghostDim owned elsewhere that shares a bridgeDim entity with an
// owned element. GLOBAL_ID is replicated with the topology, other tags need
// ExchangeTags. Collective.
func (pt *Partition) ExchangeGhostCells(comm parallel.Comm, ghostDim, bridgeDim, numLayers int) (err error) {
	if err = checkCollectiveArgs(comm, "exchange_ghost_cells", ghostDim, bridgeDim, numLayers); err != nil {
		return
	}
	if ghostDim != 3 || bridgeDim != 2 || numLayers != 1 {
		return fmt.Errorf("unsupported ghost exchange: dim %d, bridge %d, layers %d", ghostDim, bridgeDim, numLayers)
	}
	if comm.Size() != pt.NumPartitions {
		return fmt.Errorf("mesh has %d partitions but the run has %d ranks", pt.NumPartitions, comm.Size())
	}
	if comm.Rank() != pt.Rank {
		return fmt.Errorf("partition %d loaded on rank %d", pt.Rank, comm.Rank())
	}
	if pt.ghosted {
		return fmt.Errorf("ghost cells already exchanged on rank %d", pt.Rank)
	}

	// Post every skin face to its directory rank
	keys, faceVerts, elems := pt.skinFaces()
	claims := make(map[int][]faceClaim)
	for i, key := range keys {
		d := directoryRank(faceVerts[i], comm.Size())
		claims[d] = append(claims[d], faceClaim{Key: key, GID: pt.globalID[elems[i]]})
	}
	var links []ghostLink
	if links, err = pt.resolveSharedFaces(comm, claims); err != nil {
		return
	}

	// Build the communication lists
	var (
		sendSet = make(map[int]map[int]bool) // rank -> owned GIDs
		recvSet = make(map[int]map[int]bool) // rank -> remote GIDs
	)
	for _, l := range links {
		if _, ok := pt.gidToHandle[l.RemoteGID]; ok {
			return fmt.Errorf("global id %d is owned by rank %d and rank %d", l.RemoteGID, pt.Rank, l.RemoteRank)
		}
		if sendSet[l.RemoteRank] == nil {
			sendSet[l.RemoteRank] = make(map[int]bool)
			recvSet[l.RemoteRank] = make(map[int]bool)
		}
		sendSet[l.RemoteRank][l.LocalGID] = true
		recvSet[l.RemoteRank][l.RemoteGID] = true
	}

	// Ship the topology of every element a neighbor needs as a ghost
	out := make(map[int]any, len(sendSet))
	for r, set := range sendSet {
		gids := sortedKeys(set)
		recs := make([]ghostRecord, len(gids))
		pt.sendLists[r] = make([]Handle, len(gids))
		for i, gid := range gids {
			h := pt.gidToHandle[gid]
			pt.sendLists[r][i] = h
			recs[i] = ghostRecord{
				GID:      gid,
				Type:     pt.types[h],
				Vertices: pt.vertices[h],
				Coords:   make([][3]float64, len(pt.vertices[h])),
			}
			for j, v := range pt.vertices[h] {
				recs[i].Coords[j] = pt.coords[v]
			}
		}
		out[r] = recs
	}
	var in map[int]any
	if in, err = comm.Exchange(out); err != nil {
		return
	}

	// Append ghosts in rank order, sorted by GID within a rank
	ranks := make([]int, 0, len(in))
	for r := range in {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	for _, r := range ranks {
		recs := in[r].([]ghostRecord)
		want := sortedKeys(recvSet[r])
		if len(recs) != len(want) {
			return fmt.Errorf("rank %d sent %d ghosts, expected %d", r, len(recs), len(want))
		}
		pt.store.Grow(len(pt.types) + len(recs))
		for i, rec := range recs {
			if rec.GID != want[i] {
				return fmt.Errorf("rank %d sent ghost %d, expected %d", r, rec.GID, want[i])
			}
			h := pt.addElement(rec.Type, rec.Vertices, r, rec.GID)
			for j, v := range rec.Vertices {
				pt.coords[v] = rec.Coords[j]
			}
			if err = pt.store.SetInts(pt.gidTag, h, []int{rec.GID}); err != nil {
				return
			}
			pt.recvLists[r] = append(pt.recvLists[r], h)
		}
	}
	if len(ranks) != len(recvSet) {
		return fmt.Errorf("rank %d expected ghosts from %d ranks, received from %d", pt.Rank, len(recvSet), len(ranks))
	}
	if err = pt.buildAdjacency(); err != nil {
		return
	}
	pt.ghosted = true
	return
}

// resolveSharedFaces runs the face directory: claims on the same face from
// two ranks become a pair of ghost links.
func (pt *Partition) resolveSharedFaces(comm parallel.Comm, claims map[int][]faceClaim) (links []ghostLink, err error) {
	out := make(map[int]any, len(claims))
	for d, c := range claims {
		out[d] = c
	}
	var in map[int]any
	if in, err = comm.Exchange(out); err != nil {
		return
	}
	type claimant struct {
		rank, gid int
	}
	var (
		byKey   = make(map[string][]claimant)
		replies = make(map[int][]ghostLink)
		ranks   = make([]int, 0, len(in))
	)
	for r := range in {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	for _, r := range ranks {
		for _, c := range in[r].([]faceClaim) {
			byKey[c.Key] = append(byKey[c.Key], claimant{rank: r, gid: c.GID})
		}
	}
	for key, cs := range byKey {
		switch {
		case len(cs) == 1: // Physical boundary
		case len(cs) > 2:
			return nil, fmt.Errorf("face %s is shared by %d elements", key, len(cs))
		case cs[0].rank == cs[1].rank:
			return nil, fmt.Errorf("face %s claimed twice by rank %d", key, cs[0].rank)
		default:
			a, b := cs[0], cs[1]
			replies[a.rank] = append(replies[a.rank], ghostLink{LocalGID: a.gid, RemoteGID: b.gid, RemoteRank: b.rank})
			replies[b.rank] = append(replies[b.rank], ghostLink{LocalGID: b.gid, RemoteGID: a.gid, RemoteRank: a.rank})
		}
	}
	out = make(map[int]any, len(replies))
	for r, ls := range replies {
		out[r] = ls
	}
	if in, err = comm.Exchange(out); err != nil {
		return
	}
	for _, msg := range in {
		links = append(links, msg.([]ghostLink)...)
	}
	return
}

func sortedKeys(set map[int]bool) (keys []int) {
	keys = make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return
}

// packTag builds, per neighbor rank, the owner values of tag for the
// elements that rank ghosts.
func (pt *Partition) packTag(tag Tag) (out map[int]any, err error) {
	out = make(map[int]any, len(pt.sendLists))
	for r, hs := range pt.sendLists {
		msg := tagMessage{Name: tag.Name, GIDs: make([]int, len(hs))}
		for i, h := range hs {
			msg.GIDs[i] = pt.globalID[h]
			switch tag.Type {
			case mesh.TypeInteger:
				vals := make([]int, tag.Size)
				if err = pt.store.GetInts(tag, h, vals); err != nil {
					return
				}
				msg.Ints = append(msg.Ints, vals...)
			default:
				vals := make([]float64, tag.Size)
				if err = pt.store.GetDoubles(tag, h, vals); err != nil {
					return
				}
				msg.Reals = append(msg.Reals, vals...)
			}
		}
		out[r] = msg
	}
	return
}

// receiveTag walks the tag values sent by each owner and calls visit with the
// local ghost handle and its owner's values.
func (pt *Partition) receiveTag(tag Tag, in map[int]any, visit func(h Handle, ints []int, reals []float64) error) (err error) {
	if len(in) != len(pt.recvLists) {
		return fmt.Errorf("tag %s: expected values from %d ranks, received from %d", tag.Name, len(pt.recvLists), len(in))
	}
	for r, m := range in {
		var (
			msg = m.(tagMessage)
			hs  = pt.recvLists[r]
		)
		if msg.Name != tag.Name {
			return fmt.Errorf("rank %d sent tag %s while exchanging %s", r, msg.Name, tag.Name)
		}
		if len(msg.GIDs) != len(hs) {
			return fmt.Errorf("tag %s: rank %d sent %d values, expected %d", tag.Name, r, len(msg.GIDs), len(hs))
		}
		for i, h := range hs {
			if msg.GIDs[i] != pt.globalID[h] {
				return fmt.Errorf("tag %s: rank %d sent element %d, expected %d", tag.Name, r, msg.GIDs[i], pt.globalID[h])
			}
			lo, hi := i*tag.Size, (i+1)*tag.Size
			switch tag.Type {
			case mesh.TypeInteger:
				err = visit(h, msg.Ints[lo:hi], nil)
			default:
				err = visit(h, nil, msg.Reals[lo:hi])
			}
			if err != nil {
				return
			}
		}
	}
	return
}

// ExchangeTags copies the owner values of tag onto every ghost. Collective.
func (pt *Partition) ExchangeTags(comm parallel.Comm, tag Tag) (err error) {
	if !pt.ghosted {
		return fmt.Errorf("exchange of tag %s before ghost exchange", tag.Name)
	}
	var out, in map[int]any
	if out, err = pt.packTag(tag); err != nil {
		return
	}
	if in, err = comm.Exchange(out); err != nil {
		return
	}
	return pt.receiveTag(tag, in, func(h Handle, ints []int, reals []float64) error {
		if tag.Type == mesh.TypeInteger {
			return pt.store.SetInts(tag, h, ints)
		}
		return pt.store.SetDoubles(tag, h, reals)
	})
}

// CheckGhostConsistency verifies that the ghost values of every tag are
// bitwise equal to the owner values. Collective.
func (pt *Partition) CheckGhostConsistency(comm parallel.Comm, tags ...Tag) (err error) {
	var mismatches []int
	for _, tag := range tags {
		var out, in map[int]any
		if out, err = pt.packTag(tag); err != nil {
			return
		}
		if in, err = comm.Exchange(out); err != nil {
			return
		}
		err = pt.receiveTag(tag, in, func(h Handle, ints []int, reals []float64) (err error) {
			if tag.Type == mesh.TypeInteger {
				local := make([]int, tag.Size)
				if err = pt.store.GetInts(tag, h, local); err != nil {
					return
				}
				for i := range local {
					if local[i] != ints[i] {
						mismatches = append(mismatches, pt.globalID[h])
						return
					}
				}
				return
			}
			local := make([]float64, tag.Size)
			if err = pt.store.GetDoubles(tag, h, local); err != nil {
				return
			}
			for i := range local {
				if math.Float64bits(local[i]) != math.Float64bits(reals[i]) {
					mismatches = append(mismatches, pt.globalID[h])
					return
				}
			}
			return
		})
		if err != nil {
			return
		}
		if len(mismatches) != 0 {
			return fmt.Errorf("tag %s differs from its owner on ghosts %v", tag.Name, mismatches)
		}
	}
	return
}
