package linalg

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/james-bowman/sparse"
	"github.com/notargets/gotpfa/parallel"
	"gonum.org/v1/gonum/mat"
)

// ErrFilled is returned when the structure of a matrix is changed after
// FillComplete.
var ErrFilled = errors.New("matrix structure is locked")

// CrsMatrix is a square matrix distributed by rows according to a RowMap.
// Entries are staged in a COO matrix by InsertGlobalValues and compressed
// into CSR form by FillComplete. Each rank holds its rows as a
// NumMyElements x N block with global column indices.
type CrsMatrix struct {
	rowMap   *RowMap
	coo      *sparse.COO
	M        *sparse.CSR
	readOnly bool
	name     string

	numGlobalNonzeros   int
	globalMaxNumEntries int
}

// NewCrsMatrix sizes the matrix by rowMap. nnzPerRowHint is the number of
// entries a row is expected to hold; rows may grow past it.
func NewCrsMatrix(rowMap *RowMap, nnzPerRowHint int) *CrsMatrix {
	var (
		nr, nc = rowMap.NumMyElements(), rowMap.NumGlobalElements()
		nnz    = nr * max(nnzPerRowHint, 1)
	)
	return &CrsMatrix{
		rowMap: rowMap,
		coo:    sparse.NewCOO(nr, nc, make([]int, 0, nnz), make([]int, 0, nnz), make([]float64, 0, nnz)),
		name:   "unnamed - hint: pass a variable name to SetName()",
	}
}

func (m *CrsMatrix) SetName(name string) { m.name = name }

func (m *CrsMatrix) RowMap() *RowMap { return m.rowMap }

func (m *CrsMatrix) Dims() (r, c int) {
	n := m.rowMap.NumGlobalElements()
	return n, n
}

func (m *CrsMatrix) checkWritable() error {
	if m.readOnly {
		return fmt.Errorf("%w: attempt to write to matrix named: \"%v\"", ErrFilled, m.name)
	}
	return nil
}

// InsertGlobalValues adds values at (row, indices[i]). The row must be owned
// by this rank. Values inserted twice at the same position are summed.
func (m *CrsMatrix) InsertGlobalValues(row int, values []float64, indices []int) (err error) {
	if err = m.checkWritable(); err != nil {
		return
	}
	if len(values) != len(indices) {
		return fmt.Errorf("row %d: %d values for %d indices", row, len(values), len(indices))
	}
	lid := m.rowMap.LID(row)
	if lid < 0 {
		return fmt.Errorf("row %d is not owned by rank %d", row, m.rowMap.Comm().Rank())
	}
	_, nc := m.Dims()
	for _, col := range indices {
		if col < 0 || col >= nc {
			return fmt.Errorf("row %d: column %d out of range [0,%d)", row, col, nc)
		}
	}
	for i, col := range indices {
		m.coo.Set(lid, col, values[i])
	}
	return
}

// csr is the compressed form of the matrix. Before FillComplete it is
// rebuilt from the staged entries on every call, columns in insertion order.
func (m *CrsMatrix) csr() *sparse.CSR {
	if m.readOnly {
		return m.M
	}
	return compress(m.coo, false)
}

// compress converts the staged entries to CSR with duplicates summed.
// ToCSR leaves a repeat of the first entry of a row unmerged, so rows are
// merged here, keeping the first position of each column.
func compress(coo *sparse.COO, sorted bool) (A *sparse.CSR) {
	A = coo.ToCSR()
	var (
		raw = A.RawMatrix()
		pos = make(map[int]int)
		nz  int
	)
	for i := 0; i < raw.I; i++ {
		lo, hi := raw.Indptr[i], raw.Indptr[i+1]
		raw.Indptr[i] = nz
		clear(pos)
		start := nz
		for p := lo; p < hi; p++ {
			if q, dup := pos[raw.Ind[p]]; dup {
				raw.Data[q] += raw.Data[p]
				continue
			}
			pos[raw.Ind[p]] = nz
			raw.Ind[nz], raw.Data[nz] = raw.Ind[p], raw.Data[p]
			nz++
		}
		if sorted {
			sort.Sort(rowEntries{ind: raw.Ind[start:nz], data: raw.Data[start:nz]})
		}
	}
	raw.Indptr[raw.I] = nz
	raw.Ind, raw.Data = raw.Ind[:nz], raw.Data[:nz]
	return
}

// rowEntries orders the entries of one row by column
type rowEntries struct {
	ind  []int
	data []float64
}

func (re rowEntries) Len() int           { return len(re.ind) }
func (re rowEntries) Less(i, j int) bool { return re.ind[i] < re.ind[j] }
func (re rowEntries) Swap(i, j int) {
	re.ind[i], re.ind[j] = re.ind[j], re.ind[i]
	re.data[i], re.data[j] = re.data[j], re.data[i]
}

// FillComplete compresses the staged rows, columns ascending, and locks the
// structure. Collective.
func (m *CrsMatrix) FillComplete() (err error) {
	if err = m.checkWritable(); err != nil {
		return
	}
	var (
		A          = compress(m.coo, true)
		maxs, sums []int
		maxNum     int
	)
	for i := 0; i < m.rowMap.NumMyElements(); i++ {
		maxNum = max(maxNum, A.RowNNZ(i))
	}
	if sums, err = m.rowMap.Comm().AllReduceInts(parallel.OpSum, []int{A.NNZ()}); err != nil {
		return
	}
	if maxs, err = m.rowMap.Comm().AllReduceInts(parallel.OpMax, []int{maxNum}); err != nil {
		return
	}
	m.M = A
	m.numGlobalNonzeros, m.globalMaxNumEntries = sums[0], maxs[0]
	m.coo = nil
	m.readOnly = true
	return
}

func (m *CrsMatrix) Filled() bool { return m.readOnly }

func (m *CrsMatrix) NumMyNonzeros() int { return m.csr().NNZ() }

// NumGlobalNonzeros is valid after FillComplete
func (m *CrsMatrix) NumGlobalNonzeros() int { return m.numGlobalNonzeros }

// MaxNumEntries is the largest entry count of a row on this rank
func (m *CrsMatrix) MaxNumEntries() (n int) {
	A := m.csr()
	for i := 0; i < m.rowMap.NumMyElements(); i++ {
		n = max(n, A.RowNNZ(i))
	}
	return
}

// ExtractGlobalRowCopy returns a copy of an owned row, sorted by column once
// the matrix is filled.
func (m *CrsMatrix) ExtractGlobalRowCopy(row int) (values []float64, indices []int, err error) {
	lid := m.rowMap.LID(row)
	if lid < 0 {
		return nil, nil, fmt.Errorf("row %d is not owned by rank %d", row, m.rowMap.Comm().Rank())
	}
	values, indices = make([]float64, 0), make([]int, 0)
	m.csr().DoRowNonZero(lid, func(_, j int, v float64) {
		indices = append(indices, j)
		values = append(values, v)
	})
	return
}

// Multiply computes y = A x. x and y must be distributed like the rows of A.
// Collective.
func (m *CrsMatrix) Multiply(x, y *Vector) (err error) {
	if !m.readOnly {
		return fmt.Errorf("multiply by matrix %q before FillComplete", m.name)
	}
	if x.rowMap != m.rowMap || y.rowMap != m.rowMap {
		return fmt.Errorf("vectors are not distributed like matrix %q", m.name)
	}
	if x == y {
		return fmt.Errorf("multiply by matrix %q in place", m.name)
	}
	var (
		xg []float64
	)
	if xg, err = x.gather(); err != nil {
		return
	}
	// MulVecTo accumulates into its destination
	for i := range y.values {
		y.values[i] = 0
	}
	m.M.MulVecTo(y.values, false, xg)
	return
}

type triplets struct {
	Rows, Cols []int
	Vals       []float64
}

func (m *CrsMatrix) myTriplets() (t triplets) {
	for lid := 0; lid < m.rowMap.NumMyElements(); lid++ {
		gid := m.rowMap.GID(lid)
		m.M.DoRowNonZero(lid, func(_, j int, v float64) {
			t.Rows = append(t.Rows, gid)
			t.Cols = append(t.Cols, j)
			t.Vals = append(t.Vals, v)
		})
	}
	return
}

// GatherDense assembles the whole matrix on rank root. Other ranks get nil.
// Collective.
func (m *CrsMatrix) GatherDense(root int) (A *mat.Dense, err error) {
	if !m.readOnly {
		return nil, fmt.Errorf("gather of matrix %q before FillComplete", m.name)
	}
	var all []any
	if all, err = m.rowMap.Comm().AllGather(m.myTriplets()); err != nil {
		return
	}
	nr, nc := m.Dims()
	if m.rowMap.Comm().Rank() != root || nr == 0 {
		return
	}
	A = mat.NewDense(nr, nc, nil)
	for _, a := range all {
		t := a.(triplets)
		for i := range t.Vals {
			A.Set(t.Rows[i], t.Cols[i], A.At(t.Rows[i], t.Cols[i])+t.Vals[i])
		}
	}
	return
}

// Print writes the matrix one rank at a time, global summary first.
// Collective.
func (m *CrsMatrix) Print(w io.Writer) (err error) {
	if !m.readOnly {
		return fmt.Errorf("print of matrix %q before FillComplete", m.name)
	}
	var (
		comm   = m.rowMap.Comm()
		nr, nc = m.Dims()
	)
	if comm.Rank() == 0 {
		fmt.Fprintf(w, "\nNumber of Global Rows        = %d\n", nr)
		fmt.Fprintf(w, "Number of Global Cols        = %d\n", nc)
		fmt.Fprintf(w, "Number of Global Nonzeros    = %d\n", m.numGlobalNonzeros)
		fmt.Fprintf(w, "Global Maximum Num Entries   = %d\n", m.globalMaxNumEntries)
	}
	for r := 0; r < comm.Size(); r++ {
		if r == comm.Rank() {
			t := m.myTriplets()
			fmt.Fprintf(w, "\nNumber of My Rows        = %d\n", m.rowMap.NumMyElements())
			fmt.Fprintf(w, "Number of My Nonzeros    = %d\n", m.NumMyNonzeros())
			fmt.Fprintf(w, "My Maximum Num Entries   = %d\n\n", m.MaxNumEntries())
			fmt.Fprintf(w, "%10s%14s%14s%20s\n", "Processor", "Row Index", "Col Index", "Value")
			for i := range t.Vals {
				fmt.Fprintf(w, "%10d%14d%14d%20.10g\n", r, t.Rows[i], t.Cols[i], t.Vals[i])
			}
		}
		if err = comm.Barrier(); err != nil {
			return
		}
	}
	return
}
