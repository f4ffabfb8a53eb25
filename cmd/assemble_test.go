package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/notargets/gotpfa/InputParameters"
	"github.com/notargets/gotpfa/mesh"
	"github.com/notargets/gotpfa/parallel"
	"github.com/notargets/gotpfa/tpfa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer lets every rank log into one buffer
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (sb *syncBuffer) Write(p []byte) (int, error) {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buf.Write(p)
}

func (sb *syncBuffer) String() string {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.buf.String()
}

func writeBox(t *testing.T, nx, ny, nz, parts int, fileName string) string {
	t.Helper()
	bm := &BoxModel{
		Box: mesh.BoxGenerator{Nx: nx, Ny: ny, Nz: nz, Lx: float64(nx), Ly: float64(ny), Lz: float64(nz),
			LayerPermeability: []float64{1, 0.25}, LeftValue: 1, RightValue: 0, InteriorValue: 2},
		Partitions: parts,
		Strategy:   "block",
		Title:      "test box",
		OutputFile: filepath.Join(t.TempDir(), fileName),
	}
	require.NoError(t, GenerateBox(bm, io.Discard))
	return bm.OutputFile
}

func runFile(t *testing.T, np int, fileName string, ip *InputParameters.InputParametersTPFA) ([]RankResult, string, error) {
	t.Helper()
	w, err := parallel.NewWorld(np)
	require.NoError(t, err)
	logs := &syncBuffer{}
	results, err := RunTPFA(w, fileName, ip, io.Discard, logs)
	return results, logs.String(), err
}

func verifyingParameters(np int) *InputParameters.InputParametersTPFA {
	ip := InputParameters.Defaults()
	ip.NumProcs = np
	ip.VerifyRowMap = true
	ip.VerifyGhosts = true
	return ip
}

func TestAssembleThreeRanks(t *testing.T) {
	fileName := writeBox(t, 6, 2, 2, 3, "part_mesh.yaml")
	results, logs, err := runFile(t, 3, fileName, verifyingParameters(3))
	require.NoError(t, err)

	var rows, nnz int
	for r, res := range results {
		assert.Equal(t, r, res.Rank)
		assert.Equal(t, 24, res.NumGlobalRows)
		assert.Equal(t, res.NumOwned, res.Stats.Rows)
		assert.Greater(t, res.NumGhosts, 0)
		rows += res.Stats.Rows
		nnz += res.NumMyNonzeros
		assert.Contains(t, logs, fmt.Sprintf("<%d> Done.", r))
	}
	assert.Equal(t, results[0].NumGlobalRows, rows)
	assert.Equal(t, results[0].NumGlobalNonzeros, nnz)
	// The x-max column is fixed
	var fixed int
	for _, res := range results {
		fixed += res.Stats.FixedRows
	}
	assert.Equal(t, 2*2, fixed)
}

func TestAssemblyIndependentOfRankCount(t *testing.T) {
	serial, _, err := runFile(t, 1, writeBox(t, 6, 3, 2, 1, "serial.yaml"), verifyingParameters(1))
	require.NoError(t, err)
	for _, np := range []int{2, 3} {
		ip := verifyingParameters(np)
		ip.Workers = 2
		distributed, _, err := runFile(t, np, writeBox(t, 6, 3, 2, np, "distributed.json"), ip)
		require.NoError(t, err)
		A := serial[0].Matrix
		for _, res := range distributed {
			B := res.Matrix
			for _, gid := range B.RowMap().MyGlobalElements() {
				va, ia, err := A.ExtractGlobalRowCopy(gid)
				require.NoError(t, err)
				vb, ib, err := B.ExtractGlobalRowCopy(gid)
				require.NoError(t, err)
				assert.Equal(t, ia, ib, "row %d", gid)
				assert.Equal(t, va, vb, "row %d", gid)
			}
		}
	}
}

// twoCellMesh is two unit hexes sharing the face x=1. Centroid tags are
// chosen to match the two-cell reference case, not the geometry.
func twoCellMesh(t *testing.T, parts int) string {
	t.Helper()
	tm := &mesh.TaggedMesh{
		Title:         "two cells",
		NumPartitions: parts,
		Tags:          mesh.TagSchema,
	}
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 3; i++ {
				tm.Vertices = append(tm.Vertices, [3]float64{float64(i), float64(j), float64(k)})
			}
		}
	}
	cell := func(i, gid, part int, perm, bv, cx float64) mesh.TaggedElement {
		v := func(di, dj, dk int) int { return i + di + 3*(dj+2*dk) }
		return mesh.TaggedElement{
			Type: mesh.Hex,
			Vertices: []int{v(0, 0, 0), v(1, 0, 0), v(1, 1, 0), v(0, 1, 0),
				v(0, 0, 1), v(1, 0, 1), v(1, 1, 1), v(0, 1, 1)},
			Partition: part,
			IntTags:   map[string][]int{mesh.GlobalIDTag: {gid}},
			RealTags: map[string][]float64{
				mesh.CentroidTag:     {cx, 0, 0},
				mesh.PermeabilityTag: {perm, 0, 0, 0, perm, 0, 0, 0, perm},
				mesh.DirichletBCTag:  {bv},
			},
		}
	}
	tm.Elements = []mesh.TaggedElement{
		cell(0, 0, 0, 2, 5, 0),
		cell(1, 1, parts-1, 4, 0, 1),
	}
	fileName := filepath.Join(t.TempDir(), "two_cells.yaml")
	require.NoError(t, mesh.WriteTaggedMesh(fileName, tm))
	return fileName
}

func TestTwoCellScenario(t *testing.T) {
	off := -tpfa.EquivalentPermeability(2, 4) / 1.
	for _, np := range []int{1, 2} {
		results, _, err := runFile(t, np, twoCellMesh(t, np), verifyingParameters(np))
		require.NoError(t, err)
		A0, A1 := results[0].Matrix, results[np-1].Matrix

		vals, idx, err := A0.ExtractGlobalRowCopy(0)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 1}, idx)
		assert.Equal(t, []float64{-off, off}, vals)

		vals, idx, err = A1.ExtractGlobalRowCopy(1)
		require.NoError(t, err)
		assert.Equal(t, []int{1}, idx)
		assert.Equal(t, []float64{1}, vals)
		assert.Equal(t, 3, results[0].NumGlobalNonzeros)
	}
}

func TestPrintMatrix(t *testing.T) {
	fileName := twoCellMesh(t, 2)
	ip := verifyingParameters(2)
	ip.PrintMatrix = true
	w, err := parallel.NewWorld(2)
	require.NoError(t, err)
	var out bytes.Buffer
	_, err = RunTPFA(w, fileName, ip, &out, io.Discard)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Number of Global Rows        = 2")
	assert.Contains(t, out.String(), "Number of Global Nonzeros    = 3")
}

func TestAssembleFailures(t *testing.T) {
	_, _, err := runFile(t, 2, filepath.Join(t.TempDir(), "missing.yaml"), verifyingParameters(2))
	assert.ErrorContains(t, err, "load_file failed")

	// More ranks than partitions
	_, _, err = runFile(t, 3, writeBox(t, 4, 2, 1, 2, "part_mesh.yaml"), verifyingParameters(3))
	assert.ErrorContains(t, err, "load_file failed")

	// Fewer ranks than partitions
	_, _, err = runFile(t, 1, writeBox(t, 4, 2, 1, 2, "part_mesh.yaml"), verifyingParameters(1))
	assert.ErrorContains(t, err, "exchange_ghost_cells failed")
}

func TestProcessInput(t *testing.T) {
	dir := t.TempDir()
	icFile := filepath.Join(dir, "input.yaml")
	require.NoError(t, os.WriteFile(icFile, []byte("NumProcs: 4\nIsolatedRows: fixed\nVerifyRowMap: true\n"), 0644))
	ip, err := processInput(&ModelTPFA{ICFile: icFile})
	require.NoError(t, err)
	assert.Equal(t, 4, ip.NumProcs)
	assert.Equal(t, "fixed", ip.IsolatedRows)
	assert.True(t, ip.VerifyRowMap)

	require.NoError(t, os.WriteFile(icFile, []byte("Projection: trace\n"), 0644))
	_, err = processInput(&ModelTPFA{ICFile: icFile})
	assert.Error(t, err)
	_, err = processInput(&ModelTPFA{ICFile: filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}

func TestGenerateBox(t *testing.T) {
	fileName := writeBox(t, 4, 2, 1, 2, "part_mesh.json")
	tm, err := mesh.ReadTaggedMesh(fileName)
	require.NoError(t, err)
	assert.Equal(t, 2, tm.NumPartitions)
	assert.Len(t, tm.Elements, 8)
	assert.NoError(t, mesh.CheckSchema(tm.Tags))

	bm := &BoxModel{Box: mesh.BoxGenerator{Nx: 2, Ny: 1, Nz: 1, Lx: 1, Ly: 1, Lz: 1}, Partitions: 2,
		Strategy: "scotch", OutputFile: filepath.Join(t.TempDir(), "x.yaml")}
	assert.Error(t, GenerateBox(bm, io.Discard))
	bm.Strategy, bm.Partitions = "block", 3
	assert.ErrorContains(t, GenerateBox(bm, io.Discard), "partitioning failed")
}

const twoHexGmsh = `$MeshFormat
2.2 0 8
$EndMeshFormat
$PhysicalNames
3
2 11 "Outlet"
3 1 "Rock"
3 2 "Shale"
$EndPhysicalNames
$Nodes
12
1 0 0 0
2 1 0 0
3 2 0 0
4 0 1 0
5 1 1 0
6 2 1 0
7 0 0 1
8 1 0 1
9 2 0 1
10 0 1 1
11 1 1 1
12 2 1 1
$EndNodes
$Elements
3
1 3 2 11 2 3 6 12 9
2 5 2 1 1 1 2 5 4 7 8 11 10
3 5 2 2 1 2 3 6 5 8 9 12 11
$EndElements
`

func TestImportMesh(t *testing.T) {
	dir := t.TempDir()
	mshFile := filepath.Join(dir, "two_hex.msh")
	require.NoError(t, os.WriteFile(mshFile, []byte(twoHexGmsh), 0644))
	im := &ImportModel{
		MeshFile:            mshFile,
		Partitions:          2,
		Strategy:            "block",
		OutputFile:          filepath.Join(dir, "part_mesh.yaml"),
		DefaultPermeability: 2,
		InteriorValue:       5,
		Permeabilities:      []string{"Shale=4"},
		BoundaryValues:      []string{"Outlet=0"},
	}
	var out bytes.Buffer
	require.NoError(t, ImportMesh(im, &out))
	assert.Contains(t, out.String(), `Region 2 "Shale": 1 elements, permeability 4`)

	// Centroids (0.5,0.5,0.5) and (1.5,0.5,0.5) give an additive distance of 2^2+1+1
	off := -tpfa.EquivalentPermeability(2, 4) / 6
	results, _, err := runFile(t, 2, im.OutputFile, verifyingParameters(2))
	require.NoError(t, err)
	vals, idx, err := results[0].Matrix.ExtractGlobalRowCopy(0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, idx)
	assert.Equal(t, []float64{-off, off}, vals)
	vals, _, err = results[1].Matrix.ExtractGlobalRowCopy(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, vals)

	im.BoundaryValues = []string{"Inlet=1"}
	assert.Error(t, ImportMesh(im, io.Discard))
	im.MeshFile = filepath.Join(dir, "missing.msh")
	assert.Error(t, ImportMesh(im, io.Discard))
}

func TestStartProfile(t *testing.T) {
	dir := t.TempDir()
	stop, err := startProfile("", dir)
	require.NoError(t, err)
	stop()

	stop, err = startProfile("CPU", dir)
	require.NoError(t, err)
	stop()
	assert.FileExists(t, filepath.Join(dir, "cpu.pprof"))
	// a second stop is a no-op
	stop()

	_, err = startProfile("disk", dir)
	assert.Error(t, err)
}

func TestMustFlag(t *testing.T) {
	assert.Equal(t, "box", mustFlag(GenerateCmd.Flags().GetString("title")))
	assert.Equal(t, 8, mustFlag(GenerateCmd.Flags().GetInt("nx")))
	assert.Panics(t, func() { mustFlag(GenerateCmd.Flags().GetInt("title")) })
	assert.Panics(t, func() { mustFlag(ImportCmd.Flags().GetString("nx")) })
}
