package mesh

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// BoxGenerator builds a structured hexahedral mesh of the box
// [0,Lx]x[0,Ly]x[0,Lz] with Nx*Ny*Nz cells, then tags it for assembly.
type BoxGenerator struct {
	Nx, Ny, Nz int
	Lx, Ly, Lz float64

	// LayerPermeability gives the isotropic permeability of each k-layer,
	// cycled when shorter than Nz. Empty means a permeability of 1.
	LayerPermeability []float64

	// DIRICHLET_BC values of the cells on the x-min and x-max columns and of
	// every other cell.
	LeftValue, RightValue, InteriorValue float64
}

func (bg *BoxGenerator) check() error {
	if bg.Nx < 1 || bg.Ny < 1 || bg.Nz < 1 {
		return fmt.Errorf("box dimensions must be positive, have %dx%dx%d", bg.Nx, bg.Ny, bg.Nz)
	}
	if bg.Lx <= 0 || bg.Ly <= 0 || bg.Lz <= 0 {
		return fmt.Errorf("box lengths must be positive, have %gx%gx%g", bg.Lx, bg.Ly, bg.Lz)
	}
	for _, k := range bg.LayerPermeability {
		if k <= 0 {
			return fmt.Errorf("layer permeability must be positive, have %g", k)
		}
	}
	return nil
}

// cellIndex numbers cells x fastest
func (bg *BoxGenerator) cellIndex(i, j, k int) int {
	return i + bg.Nx*(j+bg.Ny*k)
}

func (bg *BoxGenerator) vertexIndex(i, j, k int) int {
	return i + (bg.Nx+1)*(j+(bg.Ny+1)*k)
}

// Build returns the hex mesh with connectivity built
func (bg *BoxGenerator) Build() (m *Mesh, err error) {
	if err = bg.check(); err != nil {
		return
	}
	var (
		dx, dy, dz = bg.Lx / float64(bg.Nx), bg.Ly / float64(bg.Ny), bg.Lz / float64(bg.Nz)
	)
	m = NewMesh()
	m.NumVertices = (bg.Nx + 1) * (bg.Ny + 1) * (bg.Nz + 1)
	m.Vertices = make([][]float64, m.NumVertices)
	for k := 0; k <= bg.Nz; k++ {
		for j := 0; j <= bg.Ny; j++ {
			for i := 0; i <= bg.Nx; i++ {
				m.Vertices[bg.vertexIndex(i, j, k)] = []float64{float64(i) * dx, float64(j) * dy, float64(k) * dz}
			}
		}
	}
	m.NumElements = bg.Nx * bg.Ny * bg.Nz
	m.Elements = make([][]int, m.NumElements)
	m.ElementTypes = make([]ElementType, m.NumElements)
	for k := 0; k < bg.Nz; k++ {
		for j := 0; j < bg.Ny; j++ {
			for i := 0; i < bg.Nx; i++ {
				e := bg.cellIndex(i, j, k)
				m.ElementTypes[e] = Hex
				m.Elements[e] = []int{
					bg.vertexIndex(i, j, k), bg.vertexIndex(i+1, j, k),
					bg.vertexIndex(i+1, j+1, k), bg.vertexIndex(i, j+1, k),
					bg.vertexIndex(i, j, k+1), bg.vertexIndex(i+1, j, k+1),
					bg.vertexIndex(i+1, j+1, k+1), bg.vertexIndex(i, j+1, k+1),
				}
			}
		}
	}
	err = m.BuildConnectivity()
	return
}

// layerPermeability returns the isotropic tensor of layer k
func (bg *BoxGenerator) layerPermeability(k int) (perm [9]float64) {
	kk := 1.
	if n := len(bg.LayerPermeability); n > 0 {
		kk = bg.LayerPermeability[k%n]
	}
	perm[0], perm[4], perm[8] = kk, kk, kk
	return
}

// columnValue returns the DIRICHLET_BC value of the cells in x-column i
func (bg *BoxGenerator) columnValue(i int) float64 {
	switch {
	case i == 0:
		return bg.LeftValue
	case i == bg.Nx-1:
		return bg.RightValue
	default:
		return bg.InteriorValue
	}
}

// Permeability of the cell numbered e by cellIndex
func (bg *BoxGenerator) Permeability(e int) [9]float64 {
	return bg.layerPermeability(e / (bg.Nx * bg.Ny))
}

// BoundaryValue of the cell numbered e by cellIndex
func (bg *BoxGenerator) BoundaryValue(e int) float64 {
	return bg.columnValue(e % bg.Nx)
}

// Tag produces the partitioned mesh document. m must come from Build and
// have EToP set.
func (bg *BoxGenerator) Tag(m *Mesh, globalIDs []int, title string) (*TaggedMesh, error) {
	return TagMesh(m, globalIDs, title, bg)
}

func centroidValues(c r3.Vec) []float64 {
	return []float64{c.X, c.Y, c.Z}
}
