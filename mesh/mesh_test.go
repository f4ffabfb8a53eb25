package mesh

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestElementTypeText(t *testing.T) {
	for et := Line; et <= Pyramid; et++ {
		text, err := et.MarshalText()
		require.NoError(t, err)
		var back ElementType
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, et, back)
	}
	var et ElementType
	assert.NoError(t, et.UnmarshalText([]byte("hex")))
	assert.Equal(t, Hex, et)
	assert.Error(t, et.UnmarshalText([]byte("Polyhedron")))
	assert.Equal(t, 3, Tet.Dimension())
	assert.Equal(t, 2, Quad.Dimension())
}

func TestFaceKey(t *testing.T) {
	assert.Equal(t, FaceKey([]int{3, 1, 2}), FaceKey([]int{2, 3, 1}))
	assert.NotEqual(t, FaceKey([]int{1, 2, 3}), FaceKey([]int{1, 2, 4}))
}

func TestBoxConnectivity(t *testing.T) {
	bg := &BoxGenerator{Nx: 3, Ny: 2, Nz: 2, Lx: 3, Ly: 2, Lz: 2}
	m, err := bg.Build()
	require.NoError(t, err)
	assert.Equal(t, 12, m.NumElements)
	assert.Equal(t, 4*3*3, m.NumVertices)
	// Faces: x-normal 4*2*2 + y-normal 3*3*2 + z-normal 3*2*3
	assert.Equal(t, 16+18+18, m.NumFaces)

	// Interior cell count of neighbors, corner cells have 3 neighbors
	countNeighbors := func(e int) (n int) {
		for _, nbr := range m.EToE[e] {
			if nbr >= 0 {
				n++
			}
		}
		return
	}
	assert.Equal(t, 3, countNeighbors(bg.cellIndex(0, 0, 0)))
	assert.Equal(t, 4, countNeighbors(bg.cellIndex(1, 0, 0)))
	// Symmetric connectivity
	for e := 0; e < m.NumElements; e++ {
		for _, nbr := range m.EToE[e] {
			if nbr >= 0 {
				assert.Contains(t, m.EToE[nbr], e)
			}
		}
	}
	c := m.Centroid(bg.cellIndex(2, 1, 0))
	assert.InDelta(t, 0, r3.Norm(r3.Sub(c, r3.Vec{X: 2.5, Y: 1.5, Z: 0.5})), 1e-14)
}

func TestBuildConnectivityRejectsNonManifoldFace(t *testing.T) {
	m := NewMesh()
	m.Vertices = [][]float64{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}, {0, 0, -1}, {1, 1, 1}}
	m.NumVertices = len(m.Vertices)
	m.Elements = [][]int{{0, 1, 2, 3}, {0, 1, 2, 4}, {0, 2, 1, 5}}
	m.ElementTypes = []ElementType{Tet, Tet, Tet}
	m.NumElements = 3
	assert.Error(t, m.BuildConnectivity())
}

func TestBoxGeneratorChecks(t *testing.T) {
	_, err := (&BoxGenerator{Nx: 0, Ny: 1, Nz: 1, Lx: 1, Ly: 1, Lz: 1}).Build()
	assert.Error(t, err)
	_, err = (&BoxGenerator{Nx: 1, Ny: 1, Nz: 1, Lx: 1, Ly: -1, Lz: 1}).Build()
	assert.Error(t, err)
	_, err = (&BoxGenerator{Nx: 1, Ny: 1, Nz: 1, Lx: 1, Ly: 1, Lz: 1, LayerPermeability: []float64{0}}).Build()
	assert.Error(t, err)
}

func TestBlockPartitionAndRenumber(t *testing.T) {
	bg := &BoxGenerator{Nx: 5, Ny: 1, Nz: 1, Lx: 5, Ly: 1, Lz: 1}
	m, err := bg.Build()
	require.NoError(t, err)
	cfg := DefaultPartitionConfig(2)
	cfg.Strategy = BlockPartition
	mp := NewMeshPartitioner(m, cfg)
	require.NoError(t, mp.Partition())
	assert.Equal(t, []int{0, 0, 0, 1, 1}, m.EToP)
	assert.Equal(t, []int{0, 1, 2}, mp.GetPartitionElements(0))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, mp.RenumberByPartition())

	stats, cut := mp.Statistics()
	assert.Equal(t, 1, cut)
	assert.Equal(t, 3, stats[0].NumElements)
	assert.Equal(t, map[int]int{0: 1}, stats[1].NumNeighbors)

	// Renumbering is partition contiguous when partitions interleave
	m.EToP = []int{1, 0, 1, 0, 1}
	assert.Equal(t, []int{2, 0, 3, 1, 4}, mp.RenumberByPartition())

	assert.Error(t, NewMeshPartitioner(m, DefaultPartitionConfig(6)).Partition())
}

func TestGraphPartition(t *testing.T) {
	const nparts = 3
	bg := &BoxGenerator{Nx: 4, Ny: 4, Nz: 2, Lx: 4, Ly: 4, Lz: 2}
	m, err := bg.Build()
	require.NoError(t, err)
	mp := NewMeshPartitioner(m, DefaultPartitionConfig(nparts))
	require.NoError(t, mp.Partition())
	require.Len(t, m.EToP, m.NumElements)
	counts := make([]int, nparts)
	for k, p := range m.EToP {
		require.Truef(t, p >= 0 && p < nparts, "element %d in partition %d", k, p)
		counts[p]++
	}

	// Every partition owns a contiguous range of IDs, partition 0 first
	ids := mp.RenumberByPartition()
	elementOf := make([]int, m.NumElements)
	seen := make([]bool, m.NumElements)
	for k, gid := range ids {
		require.False(t, seen[gid], "duplicate global ID %d", gid)
		seen[gid] = true
		elementOf[gid] = k
	}
	gid := 0
	for p := 0; p < nparts; p++ {
		for n := 0; n < counts[p]; n++ {
			assert.Equal(t, p, m.EToP[elementOf[gid]])
			if n > 0 {
				assert.Less(t, elementOf[gid-1], elementOf[gid])
			}
			gid++
		}
	}
}

func TestBuildMetisGraph(t *testing.T) {
	bg := &BoxGenerator{Nx: 2, Ny: 2, Nz: 1, Lx: 1, Ly: 1, Lz: 1}
	m, err := bg.Build()
	require.NoError(t, err)
	mp := NewMeshPartitioner(m, DefaultPartitionConfig(2))
	xadj, adjncy, vwgt, adjwgt := mp.buildMetisGraph()
	require.Len(t, xadj, m.NumElements+1)
	assert.Equal(t, int32(0), xadj[0])
	assert.Equal(t, int(xadj[len(xadj)-1]), len(adjncy))
	assert.Len(t, adjncy, 8) // 4 interior faces, each counted twice
	assert.Len(t, adjwgt, len(adjncy))
	assert.Equal(t, []int32{7, 7, 7, 7}, vwgt)
}

func TestParsePartitionStrategy(t *testing.T) {
	ps, err := ParsePartitionStrategy("metis")
	require.NoError(t, err)
	assert.Equal(t, GraphPartition, ps)
	ps, err = ParsePartitionStrategy("block")
	require.NoError(t, err)
	assert.Equal(t, BlockPartition, ps)
	_, err = ParsePartitionStrategy("scotch")
	assert.Error(t, err)
}

func newTaggedBox(t *testing.T, nparts int32) (*BoxGenerator, *TaggedMesh) {
	t.Helper()
	bg := &BoxGenerator{Nx: 4, Ny: 2, Nz: 1, Lx: 4, Ly: 2, Lz: 1,
		LayerPermeability: []float64{2}, LeftValue: 5, RightValue: 1}
	m, err := bg.Build()
	require.NoError(t, err)
	cfg := DefaultPartitionConfig(nparts)
	cfg.Strategy = BlockPartition
	mp := NewMeshPartitioner(m, cfg)
	require.NoError(t, mp.Partition())
	tm, err := bg.Tag(m, mp.RenumberByPartition(), "box")
	require.NoError(t, err)
	return bg, tm
}

func TestTaggedMeshRoundTrip(t *testing.T) {
	_, tm := newTaggedBox(t, 2)
	assert.NoError(t, CheckSchema(tm.Tags))
	dir := t.TempDir()
	for _, name := range []string{"part_mesh.yaml", "part_mesh.json"} {
		fileName := filepath.Join(dir, name)
		require.NoError(t, WriteTaggedMesh(fileName, tm))
		back, err := ReadTaggedMesh(fileName)
		require.NoError(t, err)
		assert.Equal(t, tm.NumPartitions, back.NumPartitions)
		assert.Equal(t, tm.Vertices, back.Vertices)
		assert.Equal(t, tm.Elements, back.Elements)
	}

	p, err := ReadPart(filepath.Join(dir, "part_mesh.yaml"), 1)
	require.NoError(t, err)
	assert.Len(t, p.Elements, 4)
	for _, el := range p.Elements {
		assert.Equal(t, 1, el.Partition)
		for _, v := range el.Vertices {
			assert.Contains(t, p.Vertices, v)
		}
	}
	_, err = tm.Part(2)
	assert.Error(t, err)
}

func TestTaggedMeshTagValues(t *testing.T) {
	bg, tm := newTaggedBox(t, 1)
	left := tm.Elements[bg.cellIndex(0, 1, 0)]
	assert.Equal(t, []float64{5}, left.RealTags[DirichletBCTag])
	assert.Equal(t, []float64{0.5, 1.5, 0.5}, left.RealTags[CentroidTag])
	assert.Equal(t, []float64{2, 0, 0, 0, 2, 0, 0, 0, 2}, left.RealTags[PermeabilityTag])
	assert.Equal(t, []float64{0}, tm.Elements[bg.cellIndex(1, 0, 0)].RealTags[DirichletBCTag])
	assert.Equal(t, []float64{1}, tm.Elements[bg.cellIndex(3, 0, 0)].RealTags[DirichletBCTag])

	m, err := tm.ToMesh()
	require.NoError(t, err)
	assert.Equal(t, 8, m.NumElements)
}

func TestReadTaggedMeshErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadTaggedMesh(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("numPartitions: 1\nvertices: [[0,0,0]]\nelements:\n- type: Hex\n  vertices: [0]\n"), 0644))
	_, err = ReadTaggedMesh(bad)
	assert.Error(t, err)

	_, tm := newTaggedBox(t, 1)
	delete(tm.Elements[3].RealTags, PermeabilityTag)
	assert.ErrorContains(t, tm.Validate(), "PERMEABILITY")

	_, err = LookupTag(tm.Tags, "POROSITY")
	assert.ErrorIs(t, err, ErrTagNotFound)
	assert.Error(t, CheckSchema([]TagInfo{{Name: GlobalIDTag, Type: TypeDouble, Size: 1}}))
}
