package linalg

import (
	"fmt"

	"github.com/notargets/gotpfa/parallel"
	"gonum.org/v1/gonum/floats"
)

// Vector is distributed like a RowMap; values are stored by local index
type Vector struct {
	rowMap *RowMap
	values []float64
}

func NewVector(rowMap *RowMap) *Vector {
	return &Vector{rowMap: rowMap, values: make([]float64, rowMap.NumMyElements())}
}

// Values returns the local values, indexed by RowMap.LID
func (v *Vector) Values() []float64 { return v.values }

func (v *Vector) ReplaceGlobalValue(gid int, value float64) error {
	lid := v.rowMap.LID(gid)
	if lid < 0 {
		return fmt.Errorf("global id %d is not owned by rank %d", gid, v.rowMap.Comm().Rank())
	}
	v.values[lid] = value
	return nil
}

// Dot is the global inner product. Collective.
func (v *Vector) Dot(o *Vector) (d float64, err error) {
	if v.rowMap != o.rowMap {
		return 0, fmt.Errorf("dot product of vectors with different row maps")
	}
	var sums []float64
	if sums, err = v.rowMap.Comm().AllReduceFloat64s(parallel.OpSum, []float64{floats.Dot(v.values, o.values)}); err != nil {
		return
	}
	return sums[0], nil
}

type vectorPiece struct {
	GIDs   []int
	Values []float64
}

// gather returns the whole vector indexed by global ID on every rank
func (v *Vector) gather() (xg []float64, err error) {
	var (
		all   []any
		piece = vectorPiece{GIDs: v.rowMap.myGIDs, Values: append([]float64{}, v.values...)}
	)
	if all, err = v.rowMap.Comm().AllGather(piece); err != nil {
		return
	}
	xg = make([]float64, v.rowMap.NumGlobalElements())
	for r, a := range all {
		p := a.(vectorPiece)
		for i, gid := range p.GIDs {
			if gid >= len(xg) {
				return nil, fmt.Errorf("rank %d holds global id %d outside [0,%d)", r, gid, len(xg))
			}
			xg[gid] = p.Values[i]
		}
	}
	return
}
