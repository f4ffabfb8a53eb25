package mesh

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// gmshElementTypes maps the linear Gmsh 2.2 element types to ours. Node
// orderings of the linear types agree with GetElementFaces.
var gmshElementTypes = map[int]ElementType{
	1: Line,
	2: Triangle,
	3: Quad,
	4: Tet,
	5: Hex,
	6: Prism,
	7: Pyramid,
}

// ReadGmsh reads an ASCII Gmsh 2.2 file. Volume elements become the mesh
// elements, with their physical tag recorded in Regions. Surface elements
// carrying a physical tag are kept in BoundaryGroups keyed by FaceKey.
func ReadGmsh(filename string) (m *Mesh, err error) {
	var (
		file *os.File
	)
	if file, err = os.Open(filename); err != nil {
		return
	}
	defer file.Close()
	if m, err = ParseGmsh(file); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return
}

// gmshReader carries the state of one parse
type gmshReader struct {
	scanner *bufio.Scanner
	m       *Mesh
	nodeMap map[int]int // Gmsh node ID -> vertex index
	line    int
}

func (gr *gmshReader) next(section string) (fields []string, err error) {
	if !gr.scanner.Scan() {
		if err = gr.scanner.Err(); err != nil {
			return
		}
		return nil, fmt.Errorf("unexpected EOF in %s", section)
	}
	gr.line++
	return strings.Fields(gr.scanner.Text()), nil
}

func (gr *gmshReader) count(section string) (n int, err error) {
	var fields []string
	if fields, err = gr.next(section); err != nil {
		return
	}
	if len(fields) != 1 {
		return 0, fmt.Errorf("line %d: invalid %s count", gr.line, section)
	}
	if n, err = strconv.Atoi(fields[0]); err != nil || n < 0 {
		return 0, fmt.Errorf("line %d: invalid %s count %q", gr.line, section, fields[0])
	}
	return
}

func (gr *gmshReader) skipTo(endTag string) error {
	for gr.scanner.Scan() {
		gr.line++
		if strings.TrimSpace(gr.scanner.Text()) == endTag {
			return nil
		}
	}
	if err := gr.scanner.Err(); err != nil {
		return err
	}
	return fmt.Errorf("missing %s", endTag)
}

// ParseGmsh reads an ASCII Gmsh 2.2 document and builds connectivity
func ParseGmsh(r io.Reader) (m *Mesh, err error) {
	gr := &gmshReader{
		scanner: bufio.NewScanner(r),
		m:       NewMesh(),
		nodeMap: make(map[int]int),
	}
	const maxScanTokenSize = 1024 * 1024 * 10 // 10MB
	gr.scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)
	m = gr.m
	m.PhysicalNames = make(map[int]string)
	m.BoundaryGroups = make(map[string]int)

	var sawFormat bool
	for gr.scanner.Scan() {
		gr.line++
		switch line := strings.TrimSpace(gr.scanner.Text()); line {
		case "$MeshFormat":
			if err = gr.readMeshFormat(); err != nil {
				return nil, err
			}
			sawFormat = true
		case "$PhysicalNames":
			err = gr.readPhysicalNames()
		case "$Nodes":
			err = gr.readNodes()
		case "$Elements":
			err = gr.readElements()
		default:
			if strings.HasPrefix(line, "$") && !strings.HasPrefix(line, "$End") {
				// $Periodic, $NodeData and the other sections carry nothing we use
				err = gr.skipTo("$End" + line[1:])
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if err = gr.scanner.Err(); err != nil {
		return nil, err
	}
	if !sawFormat {
		return nil, fmt.Errorf("no $MeshFormat section found")
	}
	if m.NumElements == 0 {
		return nil, fmt.Errorf("no volume elements found")
	}
	err = m.BuildConnectivity()
	return
}

func (gr *gmshReader) readMeshFormat() (err error) {
	var fields []string
	if fields, err = gr.next("MeshFormat"); err != nil {
		return
	}
	if len(fields) < 3 {
		return fmt.Errorf("line %d: invalid MeshFormat line", gr.line)
	}
	if !strings.HasPrefix(fields[0], "2.") {
		return fmt.Errorf("unsupported Gmsh version %s, only 2.x", fields[0])
	}
	if fields[1] != "0" {
		return fmt.Errorf("binary Gmsh files are not supported")
	}
	return gr.skipTo("$EndMeshFormat")
}

func (gr *gmshReader) readPhysicalNames() (err error) {
	var (
		n      int
		fields []string
		tag    int
	)
	if n, err = gr.count("PhysicalNames"); err != nil {
		return
	}
	for i := 0; i < n; i++ {
		if fields, err = gr.next("PhysicalNames"); err != nil {
			return
		}
		if len(fields) < 3 {
			return fmt.Errorf("line %d: invalid physical name entry", gr.line)
		}
		if tag, err = strconv.Atoi(fields[1]); err != nil {
			return fmt.Errorf("line %d: invalid physical tag: %w", gr.line, err)
		}
		gr.m.PhysicalNames[tag] = strings.Trim(strings.Join(fields[2:], " "), "\"")
	}
	return gr.skipTo("$EndPhysicalNames")
}

func (gr *gmshReader) readNodes() (err error) {
	var (
		n      int
		fields []string
		id     int
	)
	if n, err = gr.count("Nodes"); err != nil {
		return
	}
	for i := 0; i < n; i++ {
		if fields, err = gr.next("Nodes"); err != nil {
			return
		}
		if len(fields) < 4 {
			return fmt.Errorf("line %d: invalid node entry", gr.line)
		}
		if id, err = strconv.Atoi(fields[0]); err != nil {
			return fmt.Errorf("line %d: invalid node ID: %w", gr.line, err)
		}
		if _, dup := gr.nodeMap[id]; dup {
			return fmt.Errorf("line %d: node %d defined twice", gr.line, id)
		}
		coords := make([]float64, 3)
		for j := range coords {
			if coords[j], err = strconv.ParseFloat(fields[j+1], 64); err != nil {
				return fmt.Errorf("line %d: invalid coordinate: %w", gr.line, err)
			}
		}
		gr.nodeMap[id] = len(gr.m.Vertices)
		gr.m.Vertices = append(gr.m.Vertices, coords)
	}
	gr.m.NumVertices = len(gr.m.Vertices)
	return gr.skipTo("$EndNodes")
}

func (gr *gmshReader) readElements() (err error) {
	var (
		n      int
		fields []string
	)
	if n, err = gr.count("Elements"); err != nil {
		return
	}
	for i := 0; i < n; i++ {
		if fields, err = gr.next("Elements"); err != nil {
			return
		}
		ints := make([]int, len(fields))
		for j, f := range fields {
			if ints[j], err = strconv.Atoi(f); err != nil {
				return fmt.Errorf("line %d: invalid element entry: %w", gr.line, err)
			}
		}
		if len(ints) < 3 || ints[2] < 0 || len(ints) < 3+ints[2] {
			return fmt.Errorf("line %d: invalid element entry", gr.line)
		}
		var (
			numTags   = ints[2]
			nodes     = ints[3+numTags:]
			physical  int
			elemType  ElementType
			supported bool
		)
		if elemType, supported = gmshElementTypes[ints[1]]; !supported {
			// Points and higher order elements
			continue
		}
		if numTags > 0 {
			physical = ints[3]
		}
		if len(nodes) != NumVerticesFor(elemType) {
			return fmt.Errorf("line %d: %s needs %d nodes, has %d",
				gr.line, elemType, NumVerticesFor(elemType), len(nodes))
		}
		verts := make([]int, len(nodes))
		for j, id := range nodes {
			var ok bool
			if verts[j], ok = gr.nodeMap[id]; !ok {
				return fmt.Errorf("line %d: unknown node %d", gr.line, id)
			}
		}
		switch elemType.Dimension() {
		case 3:
			gr.m.Elements = append(gr.m.Elements, verts)
			gr.m.ElementTypes = append(gr.m.ElementTypes, elemType)
			gr.m.Regions = append(gr.m.Regions, physical)
		case 2:
			if physical != 0 {
				gr.m.BoundaryGroups[FaceKey(verts)] = physical
			}
		}
	}
	gr.m.NumElements = len(gr.m.Elements)
	return gr.skipTo("$EndElements")
}

// PhysicalTag returns the tag of a physical group by name, or parses name as
// a tag number.
func (m *Mesh) PhysicalTag(name string) (tag int, err error) {
	for t, n := range m.PhysicalNames {
		if n == name {
			return t, nil
		}
	}
	if tag, err = strconv.Atoi(name); err != nil {
		return 0, fmt.Errorf("no physical group named %q", name)
	}
	return
}

// ElementBoundaryGroups returns the physical tags of the tagged boundary
// faces of element k, in face order.
func (m *Mesh) ElementBoundaryGroups(k int) (tags []int) {
	for f, nbr := range m.EToE[k] {
		if nbr >= 0 {
			continue
		}
		if tag, ok := m.BoundaryGroups[FaceKey(m.Faces[m.EToF[k][f]].Vertices)]; ok {
			tags = append(tags, tag)
		}
	}
	return
}
