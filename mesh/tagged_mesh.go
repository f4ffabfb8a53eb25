package mesh

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghodss/yaml"
)

// TaggedElement is one element of a partitioned mesh document. Integer and
// real valued tags are kept in separate maps keyed by tag name.
type TaggedElement struct {
	Type      ElementType          `json:"type"`
	Vertices  []int                `json:"vertices"`
	Partition int                  `json:"partition"`
	IntTags   map[string][]int     `json:"intTags,omitempty"`
	RealTags  map[string][]float64 `json:"realTags,omitempty"`
}

// TaggedMesh is a partitioned mesh with per-element attributes, as produced
// by the mesh preparation stage.
type TaggedMesh struct {
	Title         string          `json:"title,omitempty"`
	NumPartitions int             `json:"numPartitions"`
	Tags          []TagInfo       `json:"tags"`
	Vertices      [][3]float64    `json:"vertices"`
	Elements      []TaggedElement `json:"elements"`
}

// Part is the slice of a TaggedMesh owned by one rank
type Part struct {
	Rank          int
	NumPartitions int
	Tags          []TagInfo
	Elements      []TaggedElement
	Vertices      map[int][3]float64 // Global vertex ID -> coordinates, for owned elements only
}

// ReadTaggedMesh reads a YAML or JSON mesh document
func ReadTaggedMesh(filename string) (tm *TaggedMesh, err error) {
	var (
		data []byte
	)
	if data, err = os.ReadFile(filename); err != nil {
		return
	}
	tm = &TaggedMesh{}
	if err = yaml.Unmarshal(data, tm); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", filename, err)
	}
	if err = tm.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return
}

// WriteTaggedMesh writes the document as JSON when the file extension is
// .json, YAML otherwise.
func WriteTaggedMesh(filename string, tm *TaggedMesh) (err error) {
	var (
		data []byte
	)
	if data, err = yaml.Marshal(tm); err != nil {
		return
	}
	if strings.ToLower(filepath.Ext(filename)) == ".json" {
		if data, err = yaml.YAMLToJSON(data); err != nil {
			return
		}
	}
	return os.WriteFile(filename, data, 0644)
}

// Validate checks the document for structural errors and verifies that every
// element carries each declared tag with the declared size.
func (tm *TaggedMesh) Validate() error {
	if tm.NumPartitions < 1 {
		return fmt.Errorf("mesh declares %d partitions", tm.NumPartitions)
	}
	for k, el := range tm.Elements {
		if el.Type.Dimension() != 3 {
			return fmt.Errorf("element %d: %s is not a 3D element", k, el.Type)
		}
		if len(el.Vertices) != NumVerticesFor(el.Type) {
			return fmt.Errorf("element %d: %s needs %d vertices, has %d",
				k, el.Type, NumVerticesFor(el.Type), len(el.Vertices))
		}
		for _, v := range el.Vertices {
			if v < 0 || v >= len(tm.Vertices) {
				return fmt.Errorf("element %d: vertex %d out of range", k, v)
			}
		}
		if el.Partition < 0 || el.Partition >= tm.NumPartitions {
			return fmt.Errorf("element %d: partition %d out of range [0,%d)", k, el.Partition, tm.NumPartitions)
		}
		for _, ti := range tm.Tags {
			var n int
			switch ti.Type {
			case TypeInteger:
				n = len(el.IntTags[ti.Name])
			case TypeDouble:
				n = len(el.RealTags[ti.Name])
			default:
				return fmt.Errorf("tag %s has unknown type %q", ti.Name, ti.Type)
			}
			if n != ti.Size {
				return fmt.Errorf("element %d: tag %s has %d values, expected %d", k, ti.Name, n, ti.Size)
			}
		}
	}
	return nil
}

// Part returns the elements owned by rank, with the vertices they use
func (tm *TaggedMesh) Part(rank int) (p *Part, err error) {
	if rank < 0 || rank >= tm.NumPartitions {
		return nil, fmt.Errorf("rank %d has no partition, mesh has %d", rank, tm.NumPartitions)
	}
	p = &Part{
		Rank:          rank,
		NumPartitions: tm.NumPartitions,
		Tags:          tm.Tags,
		Vertices:      make(map[int][3]float64),
	}
	for _, el := range tm.Elements {
		if el.Partition != rank {
			continue
		}
		p.Elements = append(p.Elements, el)
		for _, v := range el.Vertices {
			p.Vertices[v] = tm.Vertices[v]
		}
	}
	return
}

// ReadPart loads filename and keeps only the part owned by rank
func ReadPart(filename string, rank int) (p *Part, err error) {
	var (
		tm *TaggedMesh
	)
	if tm, err = ReadTaggedMesh(filename); err != nil {
		return
	}
	return tm.Part(rank)
}

// ToMesh converts the document to a Mesh with connectivity built and EToP
// set from the element partitions.
func (tm *TaggedMesh) ToMesh() (m *Mesh, err error) {
	m = NewMesh()
	m.NumVertices = len(tm.Vertices)
	m.Vertices = make([][]float64, m.NumVertices)
	for i, v := range tm.Vertices {
		m.Vertices[i] = []float64{v[0], v[1], v[2]}
	}
	m.NumElements = len(tm.Elements)
	m.Elements = make([][]int, m.NumElements)
	m.ElementTypes = make([]ElementType, m.NumElements)
	m.EToP = make([]int, m.NumElements)
	for k, el := range tm.Elements {
		m.Elements[k] = el.Vertices
		m.ElementTypes[k] = el.Type
		m.EToP[k] = el.Partition
	}
	err = m.BuildConnectivity()
	return
}
