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
	"log"
	"os"
	"strings"

	"github.com/notargets/gotpfa/InputParameters"
	"github.com/notargets/gotpfa/linalg"
	"github.com/notargets/gotpfa/mesh"
	"github.com/notargets/gotpfa/parallel"
	"github.com/notargets/gotpfa/partition"
	"github.com/notargets/gotpfa/tpfa"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	DefaultInputFile  = "part_mesh.yaml"
	DefaultOutputFile = "solve_mesh.yaml"
)

type ModelTPFA struct {
	InputFile  string
	OutputFile string // Reserved for the solved mesh, not written yet
	ICFile     string
	Profile    string
}

// RankResult summarizes the work of one rank
type RankResult struct {
	Rank              int
	NumOwned          int
	NumGhosts         int
	Stats             tpfa.Stats
	NumGlobalRows     int
	NumMyNonzeros     int
	NumGlobalNonzeros int
	Matrix            *linalg.CrsMatrix
}

// AssembleCmd represents the assemble command
var AssembleCmd = &cobra.Command{
	Use:   "assemble [input_file [output_file]]",
	Short: "Assemble the distributed TPFA pressure matrix of a partitioned mesh",
	Long: `
Loads a partitioned mesh tagged with GLOBAL_ID, CENTROID, PERMEABILITY and
DIRICHLET_BC, exchanges one layer of ghost cells, assembles one matrix row per
owned cell and finalizes the distributed matrix.

gotpfa assemble part_mesh.yaml -n 4 -p`,
	Args: cobra.MaximumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		mt := &ModelTPFA{InputFile: DefaultInputFile, OutputFile: DefaultOutputFile}
		if len(args) > 0 {
			mt.InputFile = args[0]
		}
		if len(args) > 1 {
			mt.OutputFile = args[1]
		}
		mt.ICFile = mustFlag(cmd.Flags().GetString("inputConditionsFile"))
		mt.Profile = mustFlag(cmd.Flags().GetString("profile"))
		ip, err := processInput(mt)
		if err != nil {
			fmt.Printf("error: %s\n", err)
			os.Exit(ExitSetupFailure)
		}
		world, err := parallel.NewWorld(ip.NumProcs)
		if err != nil {
			fmt.Printf("error: %s\n", err)
			os.Exit(ExitSetupFailure)
		}
		stopProfile, err := startProfile(mt.Profile, ".")
		if err != nil {
			fmt.Printf("error: %s\n", err)
			os.Exit(ExitSetupFailure)
		}
		ip.Print(os.Stdout)
		fmt.Printf("[%s]\t\t\t= Input Mesh\n", mt.InputFile)
		fmt.Printf("[%s]\t\t\t= Output Mesh (not written)\n", mt.OutputFile)
		if _, err = RunTPFA(world, mt.InputFile, ip, os.Stdout, os.Stderr); err != nil {
			fmt.Printf("error: %s\n", err)
			// os.Exit does not run deferred calls
			stopProfile()
			os.Exit(ExitRunFailure)
		}
		stopProfile()
	},
}

func init() {
	rootCmd.AddCommand(AssembleCmd)
	def := InputParameters.Defaults()
	AssembleCmd.Flags().IntP("np", "n", def.NumProcs, "number of ranks, one per mesh partition")
	AssembleCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file for input parameters like:\n\t- DistanceRule\n\t- Projection\n\t- IsolatedRows")
	AssembleCmd.Flags().BoolP("print", "p", false, "print the finalized matrix")
	AssembleCmd.Flags().Int("workers", def.Workers, "goroutines assembling rows within a rank")
	AssembleCmd.Flags().String("profile", "", "write a cpu or mem profile to the current directory")
	for _, name := range []string{"np", "print", "workers"} {
		if err := viper.BindPFlag(name, AssembleCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// startProfile starts a cpu or mem profile written to dir. The returned stop
// function writes the profile and may be called more than once.
func startProfile(kind, dir string) (stop func(), err error) {
	stop = func() {}
	switch strings.ToLower(kind) {
	case "":
	case "cpu":
		stop = profile.Start(profile.CPUProfile, profile.ProfilePath(dir), profile.Quiet).Stop
	case "mem":
		stop = profile.Start(profile.MemProfile, profile.ProfilePath(dir), profile.Quiet).Stop
	default:
		err = fmt.Errorf("unknown profile %q, want cpu or mem", kind)
	}
	return
}

// processInput reads the parameters file, then applies flags and config
// settings on top of it.
func processInput(mt *ModelTPFA) (ip *InputParameters.InputParametersTPFA, err error) {
	ip = InputParameters.Defaults()
	if len(mt.ICFile) != 0 {
		var data []byte
		if data, err = os.ReadFile(mt.ICFile); err != nil {
			return
		}
		if err = ip.Parse(data); err != nil {
			return nil, fmt.Errorf("unable to parse %s: %w", mt.ICFile, err)
		}
	}
	if viper.IsSet("np") {
		ip.NumProcs = viper.GetInt("np")
	}
	if viper.IsSet("print") {
		ip.PrintMatrix = viper.GetBool("print")
	}
	if viper.IsSet("workers") {
		ip.Workers = viper.GetInt("workers")
	}
	err = ip.Validate()
	return
}

// RunTPFA assembles the matrix of inputFile with one rank per partition.
// Matrix prints go to out, rank logs to logOut.
func RunTPFA(world *parallel.World, inputFile string, ip *InputParameters.InputParametersTPFA,
	out, logOut io.Writer) (results []RankResult, err error) {
	results = make([]RankResult, world.Size())
	err = world.Run(func(comm parallel.Comm) (err error) {
		logger := log.New(logOut, fmt.Sprintf("<%d> ", comm.Rank()), 0)
		results[comm.Rank()], err = assembleRank(comm, inputFile, ip, out, logger)
		return
	})
	return
}

func assembleRank(comm parallel.Comm, inputFile string, ip *InputParameters.InputParametersTPFA,
	out io.Writer, logger *log.Logger) (res RankResult, err error) {
	var (
		p   *mesh.Part
		pt  *partition.Partition
		av  *partition.AttributeView
		rm  *linalg.RowMap
		as  *tpfa.Assembler
		st  tpfa.Stats
		tag partition.Tag
	)
	res.Rank = comm.Rank()
	if p, err = mesh.ReadPart(inputFile, comm.Rank()); err != nil {
		return res, fmt.Errorf("load_file failed: %w", err)
	}
	if pt, err = partition.New(p); err != nil {
		return res, fmt.Errorf("load_file failed: %w", err)
	}
	if err = pt.ExchangeGhostCells(comm, 3, ip.BridgeDim, ip.GhostDepth); err != nil {
		return res, fmt.Errorf("exchange_ghost_cells failed: %w", err)
	}
	res.NumOwned, res.NumGhosts = pt.NumOwned(), pt.NumGhosts()
	if av, err = partition.NewAttributeView(pt); err != nil {
		return
	}
	if rm, err = linalg.NewRowMap(comm, pt.MyGlobalIDs()); err != nil {
		return res, fmt.Errorf("row map failed: %w", err)
	}
	exchanged := make([]partition.Tag, 0, 3)
	for _, name := range []string{mesh.CentroidTag, mesh.PermeabilityTag, mesh.DirichletBCTag} {
		if tag, err = pt.Tags().TagGetHandle(name); err != nil {
			return res, fmt.Errorf("tag_get_handle for %s failed: %w", strings.ToLower(name), err)
		}
		if err = pt.ExchangeTags(comm, tag); err != nil {
			return res, fmt.Errorf("exchange_tags for %s failed: %w", strings.ToLower(name), err)
		}
		exchanged = append(exchanged, tag)
	}
	if ip.VerifyRowMap {
		if err = rm.CheckBijection(); err != nil {
			return
		}
	}
	if ip.VerifyGhosts {
		if err = pt.CheckGhostConsistency(comm, exchanged...); err != nil {
			return
		}
	}

	hint := ip.NNZPerRowHint
	if hint == 0 {
		hint = pt.MaxNeighbors() + 1
	}
	A := linalg.NewCrsMatrix(rm, hint)
	A.SetName("k_matrix")
	if as, err = ip.Assembler(); err != nil {
		return
	}
	if st, err = as.Assemble(av, A); err != nil {
		return res, fmt.Errorf("assembly failed: %w", err)
	}
	res.Stats = st
	logger.Printf("Done.")

	if err = A.FillComplete(); err != nil {
		return res, fmt.Errorf("fill_complete failed: %w", err)
	}
	res.NumGlobalRows = rm.NumGlobalElements()
	res.NumMyNonzeros, res.NumGlobalNonzeros = A.NumMyNonzeros(), A.NumGlobalNonzeros()
	res.Matrix = A
	if ip.PrintMatrix {
		if err = A.Print(out); err != nil {
			return
		}
	}
	err = comm.Barrier()
	return
}
