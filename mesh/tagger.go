package mesh

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ElementAttributes supplies the physical attributes written for element k
type ElementAttributes interface {
	Permeability(k int) [9]float64
	BoundaryValue(k int) float64
}

// TagMesh produces the partitioned mesh document. m must have EToP set;
// globalIDs gives the GLOBAL_ID of every element. CENTROID is the vertex
// average of each element.
func TagMesh(m *Mesh, globalIDs []int, title string, attr ElementAttributes) (tm *TaggedMesh, err error) {
	if len(m.EToP) != m.NumElements || len(globalIDs) != m.NumElements {
		return nil, fmt.Errorf("mesh is not partitioned or global IDs are missing")
	}
	nparts := 0
	for _, p := range m.EToP {
		nparts = max(nparts, p+1)
	}
	tm = &TaggedMesh{
		Title:         title,
		NumPartitions: nparts,
		Tags:          TagSchema,
		Vertices:      make([][3]float64, m.NumVertices),
		Elements:      make([]TaggedElement, m.NumElements),
	}
	for v, xyz := range m.Vertices {
		tm.Vertices[v] = [3]float64{xyz[0], xyz[1], xyz[2]}
	}
	for e := 0; e < m.NumElements; e++ {
		perm := attr.Permeability(e)
		tm.Elements[e] = TaggedElement{
			Type:      m.ElementTypes[e],
			Vertices:  m.Elements[e],
			Partition: m.EToP[e],
			IntTags:   map[string][]int{GlobalIDTag: {globalIDs[e]}},
			RealTags: map[string][]float64{
				CentroidTag:     centroidValues(m.Centroid(e)),
				PermeabilityTag: perm[:],
				DirichletBCTag:  {attr.BoundaryValue(e)},
			},
		}
	}
	err = tm.Validate()
	return
}

// RegionAttributes assigns isotropic permeabilities by element region and
// DIRICHLET_BC values by the physical group of an element's boundary faces.
// An element touching several valued groups takes the value of the first
// one in face order.
type RegionAttributes struct {
	m                   *Mesh
	DefaultPermeability float64
	RegionPermeability  map[int]float64
	InteriorValue       float64
	GroupValue          map[int]float64
}

// NewRegionAttributes resolves assignments of the form NAME=VALUE, where
// NAME is a physical group name or tag number.
func NewRegionAttributes(m *Mesh, defaultPerm, interior float64, perms, values []string) (ra *RegionAttributes, err error) {
	if defaultPerm <= 0 {
		return nil, fmt.Errorf("permeability must be positive, have %g", defaultPerm)
	}
	ra = &RegionAttributes{
		m:                   m,
		DefaultPermeability: defaultPerm,
		InteriorValue:       interior,
	}
	if ra.RegionPermeability, err = m.parseAssignments(perms); err != nil {
		return nil, err
	}
	for tag, k := range ra.RegionPermeability {
		if k <= 0 {
			return nil, fmt.Errorf("permeability of region %d must be positive, have %g", tag, k)
		}
	}
	if ra.GroupValue, err = m.parseAssignments(values); err != nil {
		return nil, err
	}
	return
}

func (m *Mesh) parseAssignments(assignments []string) (values map[int]float64, err error) {
	values = make(map[int]float64, len(assignments))
	for _, a := range assignments {
		var (
			tag int
			val float64
		)
		name, text, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("assignment %q is not NAME=VALUE", a)
		}
		if tag, err = m.PhysicalTag(strings.TrimSpace(name)); err != nil {
			return nil, err
		}
		if val, err = strconv.ParseFloat(strings.TrimSpace(text), 64); err != nil {
			return nil, fmt.Errorf("assignment %q: %w", a, err)
		}
		values[tag] = val
	}
	return
}

// PermeabilityOf is the isotropic permeability of the region
func (ra *RegionAttributes) PermeabilityOf(region int) float64 {
	if v, ok := ra.RegionPermeability[region]; ok {
		return v
	}
	return ra.DefaultPermeability
}

func (ra *RegionAttributes) Permeability(k int) (perm [9]float64) {
	kk := ra.DefaultPermeability
	if k < len(ra.m.Regions) {
		kk = ra.PermeabilityOf(ra.m.Regions[k])
	}
	perm[0], perm[4], perm[8] = kk, kk, kk
	return
}

func (ra *RegionAttributes) BoundaryValue(k int) float64 {
	for _, tag := range ra.m.ElementBoundaryGroups(k) {
		if v, ok := ra.GroupValue[tag]; ok {
			return v
		}
	}
	return ra.InteriorValue
}

// RegionCounts returns the number of elements in each region, by tag
func (m *Mesh) RegionCounts() (tags []int, counts map[int]int) {
	counts = make(map[int]int)
	for _, r := range m.Regions {
		if counts[r] == 0 {
			tags = append(tags, r)
		}
		counts[r]++
	}
	sort.Ints(tags)
	return
}
