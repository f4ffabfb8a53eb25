package mesh

import (
	"fmt"
	"log"
	"math"
	"sort"

	metis "github.com/notargets/go-metis"

	"github.com/notargets/gotpfa/parallel"
)

// PartitionStrategy defines how elements are assigned to partitions
type PartitionStrategy int

const (
	BlockPartition PartitionStrategy = iota // Consecutive elements
	GraphPartition                          // METIS k-way on the dual graph
)

func (ps PartitionStrategy) String() string {
	return [...]string{"block", "metis"}[ps]
}

// ParsePartitionStrategy accepts "block" or "metis"
func ParsePartitionStrategy(name string) (ps PartitionStrategy, err error) {
	switch name {
	case "block":
		ps = BlockPartition
	case "metis", "graph":
		ps = GraphPartition
	default:
		err = fmt.Errorf("unknown partition strategy %q, use block or metis", name)
	}
	return
}

// PartitionConfig holds configuration for mesh partitioning
type PartitionConfig struct {
	NumPartitions    int32
	Strategy         PartitionStrategy
	ImbalanceFactor  float32 // e.g., 1.05 for 5% imbalance
	UseEdgeWeights   bool
	UseVertexWeights bool
	Objective        string // "cut" or "vol"
}

// DefaultPartitionConfig returns default partitioning configuration
func DefaultPartitionConfig(nparts int32) *PartitionConfig {
	return &PartitionConfig{
		NumPartitions:    nparts,
		Strategy:         GraphPartition,
		ImbalanceFactor:  1.05,
		UseEdgeWeights:   true,
		UseVertexWeights: true,
		Objective:        "vol", // minimize communication volume
	}
}

// MeshPartitioner assigns the elements of a mesh to partitions
type MeshPartitioner struct {
	mesh   *Mesh
	config *PartitionConfig

	// Cost models
	computeCostModel func(elemType ElementType) int32
	commCostModel    func(faceVertices int) int32
}

// NewMeshPartitioner creates a new partitioner for the given mesh
func NewMeshPartitioner(mesh *Mesh, config *PartitionConfig) *MeshPartitioner {
	mp := &MeshPartitioner{
		mesh:   mesh,
		config: config,
	}
	// One row of the TPFA matrix per element, costs grow with the face count
	mp.computeCostModel = func(elemType ElementType) int32 {
		return int32(len(GetElementFaces(elemType, make([]int, NumVerticesFor(elemType)))) + 1)
	}
	// A face exchanges one ghost element whatever its shape
	mp.commCostModel = func(faceVertices int) int32 {
		return 1
	}
	return mp
}

// Partition fills mesh.EToP
func (mp *MeshPartitioner) Partition() (err error) {
	var (
		ne     = mp.mesh.NumElements
		nparts = int(mp.config.NumPartitions)
	)
	if nparts < 1 {
		return fmt.Errorf("invalid number of partitions: %d", nparts)
	}
	if nparts > ne {
		return fmt.Errorf("cannot split %d elements into %d partitions", ne, nparts)
	}
	if mp.mesh.EToE == nil {
		if err = mp.mesh.BuildConnectivity(); err != nil {
			return
		}
	}
	log.Printf("Partitioning mesh with %d elements into %d parts (%s)",
		ne, nparts, mp.config.Strategy)

	switch {
	case nparts == 1:
		mp.mesh.EToP = make([]int, ne)
	case mp.config.Strategy == BlockPartition:
		pm := parallel.NewPartitionMap(nparts, ne)
		mp.mesh.EToP = make([]int, ne)
		for k := 0; k < ne; k++ {
			mp.mesh.EToP[k], _, _ = pm.GetBucket(k)
		}
	default:
		if err = mp.partitionMetis(); err != nil {
			return
		}
	}
	mp.analyzePartition()
	return
}

func (mp *MeshPartitioner) partitionMetis() (err error) {
	xadj, adjncy, vwgt, adjwgt := mp.buildMetisGraph()

	opts := make([]int32, metis.NoOptions)
	if err = metis.SetDefaultOptions(opts); err != nil {
		return fmt.Errorf("failed to set METIS options: %w", err)
	}
	if mp.config.Objective == "vol" {
		opts[metis.OptionObjType] = metis.ObjTypeVol
	} else {
		opts[metis.OptionObjType] = metis.ObjTypeCut
	}
	ubvec := []float32{mp.config.ImbalanceFactor}

	var vwgtPtr, adjwgtPtr []int32
	if mp.config.UseVertexWeights {
		vwgtPtr = vwgt
	}
	if mp.config.UseEdgeWeights {
		adjwgtPtr = adjwgt
	}
	part, objval, err := metis.PartGraphKwayWeighted(
		xadj, adjncy, vwgtPtr, adjwgtPtr,
		mp.config.NumPartitions, nil, ubvec, opts,
	)
	if err != nil {
		return fmt.Errorf("METIS partitioning failed: %w", err)
	}
	log.Printf("  METIS objective value: %d", objval)

	mp.mesh.EToP = make([]int, mp.mesh.NumElements)
	for i := 0; i < mp.mesh.NumElements; i++ {
		mp.mesh.EToP[i] = int(part[i])
	}
	return
}

// buildMetisGraph converts mesh connectivity to METIS CSR format
func (mp *MeshPartitioner) buildMetisGraph() (xadj, adjncy, vwgt, adjwgt []int32) {
	ne := mp.mesh.NumElements

	if mp.config.UseVertexWeights {
		vwgt = make([]int32, ne)
		for i := 0; i < ne; i++ {
			vwgt[i] = mp.computeCostModel(mp.mesh.ElementTypes[i])
		}
	}

	xadj = make([]int32, ne+1)
	adjncy = []int32{}
	adjwgt = []int32{}
	for elem := 0; elem < ne; elem++ {
		for faceIdx, neighbor := range mp.mesh.EToE[elem] {
			if neighbor >= 0 && neighbor != elem {
				adjncy = append(adjncy, int32(neighbor))
				if mp.config.UseEdgeWeights {
					face := mp.mesh.Faces[mp.mesh.EToF[elem][faceIdx]]
					adjwgt = append(adjwgt, mp.commCostModel(len(face.Vertices)))
				}
			}
		}
		xadj[elem+1] = int32(len(adjncy))
	}
	return
}

// PartitionStats holds statistics for a single partition
type PartitionStats struct {
	ID           int
	NumElements  int
	ComputeLoad  int64
	NumNeighbors map[int]int // neighbor partition -> shared faces
}

// Statistics computes per-partition load and the number of cut faces
func (mp *MeshPartitioner) Statistics() (partStats []PartitionStats, cutFaces int) {
	nparts := int(mp.config.NumPartitions)
	partStats = make([]PartitionStats, nparts)
	for i := range partStats {
		partStats[i].ID = i
		partStats[i].NumNeighbors = make(map[int]int)
	}
	for elem := 0; elem < mp.mesh.NumElements; elem++ {
		part := mp.mesh.EToP[elem]
		partStats[part].NumElements++
		partStats[part].ComputeLoad += int64(mp.computeCostModel(mp.mesh.ElementTypes[elem]))
		for _, neighbor := range mp.mesh.EToE[elem] {
			if neighbor > elem && mp.mesh.EToP[neighbor] != part { // Count each face once
				cutFaces++
				partStats[part].NumNeighbors[mp.mesh.EToP[neighbor]]++
				partStats[mp.mesh.EToP[neighbor]].NumNeighbors[part]++
			}
		}
	}
	return
}

func (mp *MeshPartitioner) analyzePartition() {
	partStats, cutFaces := mp.Statistics()
	var (
		avgLoad = float64(0)
		maxLoad = int64(0)
		minLoad = int64(math.MaxInt64)
	)
	for _, stats := range partStats {
		avgLoad += float64(stats.ComputeLoad)
		maxLoad = max(maxLoad, stats.ComputeLoad)
		minLoad = min(minLoad, stats.ComputeLoad)
	}
	avgLoad /= float64(len(partStats))
	log.Printf("Partition Analysis:")
	log.Printf("  Cut faces: %d", cutFaces)
	log.Printf("  Load imbalance: %.2f%%", (float64(maxLoad)/avgLoad-1.0)*100)
	log.Printf("  Load range: [%d, %d], avg: %.1f", minLoad, maxLoad, avgLoad)
	for _, stats := range partStats {
		log.Printf("  Partition %d: %d elements, %d neighbor partitions",
			stats.ID, stats.NumElements, len(stats.NumNeighbors))
	}
}

// RenumberByPartition returns a global ID for every element such that the
// IDs of partition 0 come first, then partition 1, and so on. Within a
// partition the original element order is kept. The result is a dense,
// partition-contiguous numbering of [0, NumElements).
func (mp *MeshPartitioner) RenumberByPartition() (globalIDs []int) {
	order := make([]int, mp.mesh.NumElements)
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(i, j int) bool {
		return mp.mesh.EToP[order[i]] < mp.mesh.EToP[order[j]]
	})
	globalIDs = make([]int, mp.mesh.NumElements)
	for gid, k := range order {
		globalIDs[k] = gid
	}
	return
}

// GetPartitionElements returns all elements in a given partition
func (mp *MeshPartitioner) GetPartitionElements(partID int) []int {
	elements := []int{}
	for elem := 0; elem < mp.mesh.NumElements; elem++ {
		if mp.mesh.EToP[elem] == partID {
			elements = append(elements, elem)
		}
	}
	return elements
}
