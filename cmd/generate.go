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

type BoxModel struct {
	Box        mesh.BoxGenerator
	Partitions int
	Strategy   string
	Title      string
	OutputFile string
}

// GenerateCmd represents the generate command
var GenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Write a partitioned, tagged hexahedral box mesh",
	Long: `
Builds an Nx x Ny x Nz box of hexahedra, partitions it with METIS (or in
contiguous blocks), numbers GLOBAL_ID contiguously per partition and writes
the tagged mesh as YAML, or JSON when the output file ends in .json.

gotpfa generate --nx 20 --ny 10 --nz 4 -n 4 --perm 1,0.01 -o part_mesh.yaml`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		bm := &BoxModel{}
		bm.Box.Nx = mustFlag(cmd.Flags().GetInt("nx"))
		bm.Box.Ny = mustFlag(cmd.Flags().GetInt("ny"))
		bm.Box.Nz = mustFlag(cmd.Flags().GetInt("nz"))
		bm.Box.Lx = mustFlag(cmd.Flags().GetFloat64("lx"))
		bm.Box.Ly = mustFlag(cmd.Flags().GetFloat64("ly"))
		bm.Box.Lz = mustFlag(cmd.Flags().GetFloat64("lz"))
		bm.Box.LayerPermeability = mustFlag(cmd.Flags().GetFloat64Slice("perm"))
		bm.Box.LeftValue = mustFlag(cmd.Flags().GetFloat64("left"))
		bm.Box.RightValue = mustFlag(cmd.Flags().GetFloat64("right"))
		bm.Box.InteriorValue = mustFlag(cmd.Flags().GetFloat64("interior"))
		bm.Partitions = mustFlag(cmd.Flags().GetInt("parts"))
		bm.Strategy = mustFlag(cmd.Flags().GetString("strategy"))
		bm.Title = mustFlag(cmd.Flags().GetString("title"))
		bm.OutputFile = mustFlag(cmd.Flags().GetString("output"))
		if err := GenerateBox(bm, os.Stdout); err != nil {
			fmt.Printf("error: %s\n", err)
			os.Exit(ExitRunFailure)
		}
	},
}

func init() {
	rootCmd.AddCommand(GenerateCmd)
	GenerateCmd.Flags().Int("nx", 8, "cells in x")
	GenerateCmd.Flags().Int("ny", 4, "cells in y")
	GenerateCmd.Flags().Int("nz", 2, "cells in z")
	GenerateCmd.Flags().Float64("lx", 8, "box length in x")
	GenerateCmd.Flags().Float64("ly", 4, "box length in y")
	GenerateCmd.Flags().Float64("lz", 2, "box length in z")
	GenerateCmd.Flags().Float64Slice("perm", []float64{1}, "isotropic permeability of each z layer, cycled")
	GenerateCmd.Flags().Float64("left", 1, "DIRICHLET_BC value of the x-min cells")
	GenerateCmd.Flags().Float64("right", 0.5, "DIRICHLET_BC value of the x-max cells")
	GenerateCmd.Flags().Float64("interior", 1, "DIRICHLET_BC value of every other cell, 0 fixes the cell")
	GenerateCmd.Flags().IntP("parts", "n", 2, "number of partitions")
	GenerateCmd.Flags().String("strategy", "metis", "partitioning strategy: metis or block")
	GenerateCmd.Flags().String("title", "box", "mesh title")
	GenerateCmd.Flags().StringP("output", "o", DefaultInputFile, "output mesh file, .yaml or .json")
}

// GenerateBox builds, partitions, tags and writes the box mesh
func GenerateBox(bm *BoxModel, w io.Writer) (err error) {
	var (
		m *mesh.Mesh
	)
	if m, err = bm.Box.Build(); err != nil {
		return
	}
	return writePartitioned(m, &bm.Box, bm.Partitions, bm.Strategy, bm.Title, bm.OutputFile, w)
}

// writePartitioned partitions m, numbers GLOBAL_ID contiguously per
// partition and writes the tagged document to outputFile.
func writePartitioned(m *mesh.Mesh, attr mesh.ElementAttributes, partitions int, strategy, title,
	outputFile string, w io.Writer) (err error) {
	var (
		tm *mesh.TaggedMesh
		ps mesh.PartitionStrategy
	)
	if ps, err = mesh.ParsePartitionStrategy(strategy); err != nil {
		return
	}
	cfg := mesh.DefaultPartitionConfig(int32(partitions))
	cfg.Strategy = ps
	mp := mesh.NewMeshPartitioner(m, cfg)
	if err = mp.Partition(); err != nil {
		return fmt.Errorf("partitioning failed: %w", err)
	}
	if tm, err = mesh.TagMesh(m, mp.RenumberByPartition(), title, attr); err != nil {
		return
	}
	if err = mesh.WriteTaggedMesh(outputFile, tm); err != nil {
		return
	}
	m.PrintStatistics(w)
	stats, cut := mp.Statistics()
	for _, st := range stats {
		fmt.Fprintf(w, "Partition %d: %d elements, %d neighbors\n", st.ID, st.NumElements, len(st.NumNeighbors))
	}
	fmt.Fprintf(w, "%d cut faces, written to %s\n", cut, outputFile)
	return
}
