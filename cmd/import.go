/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/notargets/gotpfa/mesh"
	"github.com/spf13/cobra"
)

type ImportModel struct {
	MeshFile            string
	Partitions          int
	Strategy            string
	Title               string
	OutputFile          string
	DefaultPermeability float64
	InteriorValue       float64
	Permeabilities      []string // REGION=K
	BoundaryValues      []string // GROUP=VALUE
}

// ImportCmd represents the import command
var ImportCmd = &cobra.Command{
	Use:   "import mesh.msh",
	Short: "Partition and tag a Gmsh mesh",
	Long: `
Reads an ASCII Gmsh 2.2 mesh, partitions its volume elements and writes the
tagged mesh. Permeability is isotropic, set per volume physical group.
DIRICHLET_BC is set per surface physical group on the cells touching it; a
value of 0 fixes the cell.

gotpfa import reservoir.msh -n 4 --perm Shale=0.01 --bc Outlet=0 -o part_mesh.yaml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		im := &ImportModel{MeshFile: args[0]}
		im.Partitions = mustFlag(cmd.Flags().GetInt("parts"))
		im.Strategy = mustFlag(cmd.Flags().GetString("strategy"))
		im.Title = mustFlag(cmd.Flags().GetString("title"))
		im.OutputFile = mustFlag(cmd.Flags().GetString("output"))
		im.DefaultPermeability = mustFlag(cmd.Flags().GetFloat64("default-perm"))
		im.InteriorValue = mustFlag(cmd.Flags().GetFloat64("interior"))
		im.Permeabilities = mustFlag(cmd.Flags().GetStringSlice("perm"))
		im.BoundaryValues = mustFlag(cmd.Flags().GetStringSlice("bc"))
		if err := ImportMesh(im, os.Stdout); err != nil {
			fmt.Printf("error: %s\n", err)
			os.Exit(ExitRunFailure)
		}
	},
}

func init() {
	rootCmd.AddCommand(ImportCmd)
	ImportCmd.Flags().IntP("parts", "n", 2, "number of partitions")
	ImportCmd.Flags().String("strategy", "metis", "partitioning strategy: metis or block")
	ImportCmd.Flags().String("title", "", "mesh title, the mesh file name when empty")
	ImportCmd.Flags().StringP("output", "o", DefaultInputFile, "output mesh file, .yaml or .json")
	ImportCmd.Flags().Float64("default-perm", 1, "permeability of cells outside any --perm region")
	ImportCmd.Flags().Float64("interior", 1, "DIRICHLET_BC value of cells touching no --bc group")
	ImportCmd.Flags().StringSlice("perm", nil, "REGION=K permeability of a volume physical group")
	ImportCmd.Flags().StringSlice("bc", nil, "GROUP=VALUE DIRICHLET_BC of cells on a surface physical group")
}

// ImportMesh reads, partitions, tags and writes a Gmsh mesh
func ImportMesh(im *ImportModel, w io.Writer) (err error) {
	var (
		m  *mesh.Mesh
		ra *mesh.RegionAttributes
	)
	if m, err = mesh.ReadGmsh(im.MeshFile); err != nil {
		return
	}
	if ra, err = mesh.NewRegionAttributes(m, im.DefaultPermeability, im.InteriorValue,
		im.Permeabilities, im.BoundaryValues); err != nil {
		return
	}
	tags, counts := m.RegionCounts()
	for _, tag := range tags {
		fmt.Fprintf(w, "Region %d %q: %d elements, permeability %g\n",
			tag, m.PhysicalNames[tag], counts[tag], ra.PermeabilityOf(tag))
	}
	title := im.Title
	if title == "" {
		title = im.MeshFile
	}
	return writePartitioned(m, ra, im.Partitions, im.Strategy, title, im.OutputFile, w)
}
