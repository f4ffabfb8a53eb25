// Package linalg holds the row-distributed sparse matrix the pressure system
// is assembled into, and the map that assigns its rows to ranks.
package linalg

import (
	"fmt"
	"sort"

	"github.com/notargets/gotpfa/parallel"
)

// RowMap assigns global rows to ranks. A row is identified by the global ID
// of the element that owns it; there is no renumbering, so the global IDs of
// all ranks together must be exactly 0..N-1 (see CheckBijection).
type RowMap struct {
	comm      parallel.Comm
	numGlobal int
	myGIDs    []int
	lid       map[int]int
	minMyGID  int
	maxMyGID  int
}

// NewRowMap builds the map from the global IDs this rank owns. Collective.
func NewRowMap(comm parallel.Comm, myGlobalIDs []int) (rm *RowMap, err error) {
	var (
		counts []int
	)
	if counts, err = comm.AllReduceInts(parallel.OpSum, []int{len(myGlobalIDs)}); err != nil {
		return
	}
	rm = &RowMap{
		comm:      comm,
		numGlobal: counts[0],
		myGIDs:    make([]int, len(myGlobalIDs)),
		lid:       make(map[int]int, len(myGlobalIDs)),
		minMyGID:  -1,
		maxMyGID:  -1,
	}
	copy(rm.myGIDs, myGlobalIDs)
	for i, gid := range rm.myGIDs {
		if gid < 0 {
			return nil, fmt.Errorf("negative global id %d on rank %d", gid, comm.Rank())
		}
		if _, dup := rm.lid[gid]; dup {
			return nil, fmt.Errorf("global id %d appears twice on rank %d", gid, comm.Rank())
		}
		rm.lid[gid] = i
		if i == 0 {
			rm.minMyGID, rm.maxMyGID = gid, gid
		}
		rm.minMyGID = min(rm.minMyGID, gid)
		rm.maxMyGID = max(rm.maxMyGID, gid)
	}
	return
}

func (rm *RowMap) Comm() parallel.Comm    { return rm.comm }
func (rm *RowMap) NumGlobalElements() int { return rm.numGlobal }
func (rm *RowMap) NumMyElements() int     { return len(rm.myGIDs) }

// MinMyGID and MaxMyGID are -1 on a rank that owns no rows
func (rm *RowMap) MinMyGID() int { return rm.minMyGID }
func (rm *RowMap) MaxMyGID() int { return rm.maxMyGID }

func (rm *RowMap) MyGlobalElements() (gids []int) {
	gids = make([]int, len(rm.myGIDs))
	copy(gids, rm.myGIDs)
	return
}

// LID returns the local index of a global ID, -1 when it is not owned here
func (rm *RowMap) LID(gid int) int {
	if lid, ok := rm.lid[gid]; ok {
		return lid
	}
	return -1
}

// GID returns the global ID at a local index, -1 when out of range
func (rm *RowMap) GID(lid int) int {
	if lid < 0 || lid >= len(rm.myGIDs) {
		return -1
	}
	return rm.myGIDs[lid]
}

func (rm *RowMap) MyGID(gid int) bool {
	_, ok := rm.lid[gid]
	return ok
}

// CheckBijection verifies that the global IDs of all ranks are exactly
// {0..N-1}: no duplicates across ranks, no gaps. Each rank checks one
// contiguous block of the row space. Collective; every rank returns an
// error if any rank finds a problem.
func (rm *RowMap) CheckBijection() (err error) {
	var (
		comm     = rm.comm
		pm       = parallel.NewPartitionMap(comm.Size(), rm.numGlobal)
		out      = make(map[int]any)
		outRange []int
		problems []string
	)
	for _, gid := range rm.myGIDs {
		bn, _, _ := pm.GetBucket(gid)
		if bn < 0 {
			outRange = append(outRange, gid)
			continue
		}
		ids, _ := out[bn].([]int)
		out[bn] = append(ids, gid)
	}
	if len(outRange) != 0 {
		problems = append(problems, fmt.Sprintf("global ids %v outside [0,%d)", outRange, rm.numGlobal))
	}
	var in map[int]any
	if in, err = comm.Exchange(out); err != nil {
		return
	}
	kMin, kMax := pm.GetBucketRange(comm.Rank())
	seen := make(map[int][]int, kMax-kMin) // gid -> claiming ranks
	for r, msg := range in {
		for _, gid := range msg.([]int) {
			seen[gid] = append(seen[gid], r)
		}
	}
	var gaps []int
	for gid := kMin; gid < kMax; gid++ {
		switch ranks := seen[gid]; {
		case len(ranks) == 0:
			gaps = append(gaps, gid)
		case len(ranks) > 1:
			sort.Ints(ranks)
			problems = append(problems, fmt.Sprintf("global id %d owned by ranks %v", gid, ranks))
		}
	}
	if len(gaps) != 0 {
		problems = append(problems, fmt.Sprintf("no rank owns global ids %v", gaps))
	}
	var total []int
	if total, err = comm.AllReduceInts(parallel.OpSum, []int{len(problems)}); err != nil {
		return
	}
	switch {
	case len(problems) != 0:
		err = fmt.Errorf("row map is not a bijection onto [0,%d): %v", rm.numGlobal, problems)
	case total[0] != 0:
		err = fmt.Errorf("row map is not a bijection onto [0,%d): %d problems found on other ranks",
			rm.numGlobal, total[0])
	}
	return
}
