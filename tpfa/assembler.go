package tpfa

import (
	"fmt"
	"math"

	"github.com/notargets/gotpfa/parallel"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// AttributeProvider is the read-only view of the local mesh needed to
// assemble the rows of the owned cells. Elements are local handles; the
// neighbors of an owned cell may be ghosts.
type AttributeProvider interface {
	OwnedElements() []int
	BridgeAdjacencies(e int) ([]int, error)
	GlobalID(e int) (int, error)
	Centroid(e int) (r3.Vec, error)
	Permeability(e int) (PermeabilityTensor, error)
	BoundaryValue(e int) (float64, error)
}

// RowSink receives one assembled row per owned cell
type RowSink interface {
	InsertGlobalValues(row int, values []float64, indices []int) error
}

// IsolatedRowPolicy decides the row of a flux cell that has no neighbors
type IsolatedRowPolicy uint8

const (
	LeaveZero IsolatedRowPolicy = iota // Diagonal is the empty sum, 0
	FixedRow                           // Diagonal is 1
)

func (p IsolatedRowPolicy) String() string {
	return [...]string{"zero", "fixed"}[p]
}

func ParseIsolatedRowPolicy(name string) (IsolatedRowPolicy, error) {
	switch name {
	case "", "zero":
		return LeaveZero, nil
	case "fixed":
		return FixedRow, nil
	}
	return LeaveZero, fmt.Errorf("unknown isolated row policy %q, want zero or fixed", name)
}

type Assembler struct {
	Distance     DistanceFunc           // Defaults to CentroidDistance
	Projection   PermeabilityProjection // Defaults to FirstDiagonal
	IsolatedRows IsolatedRowPolicy
	Workers      int // Rows computed concurrently when > 1, emitted in order
}

// Stats counts the rows emitted by one Assemble call
type Stats struct {
	Rows         int
	FixedRows    int
	FluxRows     int
	IsolatedRows int
	MaxNeighbors int
}

// Row is one assembled matrix row, diagonal last
type Row struct {
	GlobalID int
	Indices  []int
	Values   []float64
	fixed    bool
	isolated bool

	// neighbors enumerated, fixed rows included
	numAdjacent int
}

func NewAssembler() *Assembler {
	return &Assembler{Distance: CentroidDistance, Projection: FirstDiagonal}
}

// cell is what the row of one element needs from one element
type cell struct {
	gid  int
	c    r3.Vec
	perm PermeabilityTensor
}

func readCell(src AttributeProvider, e int) (c cell, err error) {
	if c.gid, err = src.GlobalID(e); err != nil {
		return
	}
	if c.c, err = src.Centroid(e); err != nil {
		return
	}
	c.perm, err = src.Permeability(e)
	return
}

// Transmissibility is the off-diagonal coefficient coupling cell a to cell b
func (as *Assembler) Transmissibility(ka, kb PermeabilityTensor, ca, cb r3.Vec) (coef float64, err error) {
	var (
		dist = as.Distance
		proj = as.Projection
	)
	if dist == nil {
		dist = CentroidDistance
	}
	if proj == nil {
		proj = FirstDiagonal
	}
	keq := EquivalentPermeability(proj(ka, ca, cb), proj(kb, cb, ca))
	coef = -keq / dist(ca, cb)
	if math.IsNaN(coef) || math.IsInf(coef, 0) {
		err = fmt.Errorf("non-finite transmissibility %g between centroids %v and %v", coef, ca, cb)
	}
	return
}

// AssembleRow builds the row of owned element e. Every call allocates its
// own buffers.
func (as *Assembler) AssembleRow(src AttributeProvider, e int) (row Row, err error) {
	var (
		self     cell
		bv       float64
		adjacent []int
	)
	if self, err = readCell(src, e); err != nil {
		return
	}
	if bv, err = src.BoundaryValue(e); err != nil {
		return
	}
	row.GlobalID = self.gid
	if adjacent, err = src.BridgeAdjacencies(e); err != nil {
		return
	}
	row.numAdjacent = len(adjacent)
	if bv == 0 {
		row.fixed = true
		row.Indices, row.Values = []int{self.gid}, []float64{1}
		return
	}
	row.Indices = make([]int, 0, len(adjacent)+1)
	row.Values = make([]float64, 0, len(adjacent)+1)
	for _, n := range adjacent {
		var (
			nbr  cell
			coef float64
		)
		if nbr, err = readCell(src, n); err != nil {
			return
		}
		if coef, err = as.Transmissibility(self.perm, nbr.perm, self.c, nbr.c); err != nil {
			return row, fmt.Errorf("row %d, column %d: %w", self.gid, nbr.gid, err)
		}
		row.Indices = append(row.Indices, nbr.gid)
		row.Values = append(row.Values, coef)
	}
	diag := -floats.Sum(row.Values)
	if len(adjacent) == 0 {
		row.isolated = true
		if as.IsolatedRows == FixedRow {
			diag = 1
		}
	}
	row.Indices = append(row.Indices, self.gid)
	row.Values = append(row.Values, diag)
	return
}

func (st *Stats) add(row Row) {
	st.Rows++
	switch {
	case row.fixed:
		st.FixedRows++
	case row.isolated:
		st.IsolatedRows++
	default:
		st.FluxRows++
	}
	st.MaxNeighbors = max(st.MaxNeighbors, row.numAdjacent)
}

// Assemble emits the row of every owned element of src into sink, in
// owned-element order.
func (as *Assembler) Assemble(src AttributeProvider, sink RowSink) (st Stats, err error) {
	var (
		owned = src.OwnedElements()
		rows  = make([]Row, len(owned))
	)
	if as.Workers > 1 && len(owned) > 1 {
		var (
			pm = parallel.NewPartitionMap(min(as.Workers, len(owned)), len(owned))
			g  errgroup.Group
		)
		for w := 0; w < pm.ParallelDegree; w++ {
			g.Go(func() (err error) {
				kMin, kMax := pm.GetBucketRange(w)
				for i := kMin; i < kMax; i++ {
					if rows[i], err = as.AssembleRow(src, owned[i]); err != nil {
						return
					}
				}
				return
			})
		}
		if err = g.Wait(); err != nil {
			return
		}
	} else {
		for i, e := range owned {
			if rows[i], err = as.AssembleRow(src, e); err != nil {
				return
			}
		}
	}
	for _, row := range rows {
		if err = sink.InsertGlobalValues(row.GlobalID, row.Values, row.Indices); err != nil {
			return st, fmt.Errorf("insert of row %d failed: %w", row.GlobalID, err)
		}
		st.add(row)
	}
	return
}
