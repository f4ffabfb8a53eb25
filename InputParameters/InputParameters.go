package InputParameters

import (
	"fmt"
	"io"

	"github.com/ghodss/yaml"
	"github.com/notargets/gotpfa/tpfa"
)

// Parameters obtained from the YAML input file
type InputParametersTPFA struct {
	Title         string `json:"Title"`
	NumProcs      int    `json:"NumProcs"`
	GhostDepth    int    `json:"GhostDepth"`    // Ghost layers exchanged, only 1 is supported
	BridgeDim     int    `json:"BridgeDim"`     // Dimension of the entity two neighbor cells share
	NNZPerRowHint int    `json:"NNZPerRowHint"` // 0 derives the hint from the mesh
	DistanceRule  string `json:"DistanceRule"`  // additive, euclidean or squared
	Projection    string `json:"Projection"`    // first-diagonal or directional
	IsolatedRows  string `json:"IsolatedRows"`  // zero or fixed
	Workers       int    `json:"Workers"`
	VerifyRowMap  bool   `json:"VerifyRowMap"`
	VerifyGhosts  bool   `json:"VerifyGhosts"`
	PrintMatrix   bool   `json:"PrintMatrix"`
}

func Defaults() *InputParametersTPFA {
	return &InputParametersTPFA{
		Title:        "TPFA pressure matrix",
		NumProcs:     1,
		GhostDepth:   1,
		BridgeDim:    2,
		DistanceRule: "additive",
		Projection:   "first-diagonal",
		IsolatedRows: "zero",
		Workers:      1,
	}
}

// Parse overlays the YAML document on the receiver; absent keys keep their
// current values.
func (ip *InputParametersTPFA) Parse(data []byte) error {
	return yaml.Unmarshal(data, ip)
}

func (ip *InputParametersTPFA) Validate() (err error) {
	switch {
	case ip.NumProcs < 1:
		return fmt.Errorf("NumProcs must be at least 1, have %d", ip.NumProcs)
	case ip.GhostDepth != 1:
		return fmt.Errorf("GhostDepth %d unsupported, only 1", ip.GhostDepth)
	case ip.BridgeDim != 2:
		return fmt.Errorf("BridgeDim %d unsupported, only 2 (faces)", ip.BridgeDim)
	case ip.NNZPerRowHint < 0:
		return fmt.Errorf("NNZPerRowHint must not be negative, have %d", ip.NNZPerRowHint)
	case ip.Workers < 1:
		return fmt.Errorf("Workers must be at least 1, have %d", ip.Workers)
	}
	_, err = ip.Assembler()
	return
}

// Assembler returns the row assembler the parameters describe
func (ip *InputParametersTPFA) Assembler() (as *tpfa.Assembler, err error) {
	as = &tpfa.Assembler{Workers: ip.Workers}
	if as.Distance, err = tpfa.DistanceByName(ip.DistanceRule); err != nil {
		return nil, err
	}
	if as.Projection, err = tpfa.ProjectionByName(ip.Projection); err != nil {
		return nil, err
	}
	if as.IsolatedRows, err = tpfa.ParseIsolatedRowPolicy(ip.IsolatedRows); err != nil {
		return nil, err
	}
	return
}

func (ip *InputParametersTPFA) Print(w io.Writer) {
	fmt.Fprintf(w, "\"%s\"\t\t= Title\n", ip.Title)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Number of Processes\n", ip.NumProcs)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Ghost Depth\n", ip.GhostDepth)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Bridge Dimension\n", ip.BridgeDim)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Nonzeros Per Row Hint\n", ip.NNZPerRowHint)
	fmt.Fprintf(w, "[%s]\t\t\t= Distance Rule\n", ip.DistanceRule)
	fmt.Fprintf(w, "[%s]\t\t= Permeability Projection\n", ip.Projection)
	fmt.Fprintf(w, "[%s]\t\t\t\t= Isolated Rows\n", ip.IsolatedRows)
	fmt.Fprintf(w, "[%d]\t\t\t\t= Workers\n", ip.Workers)
	fmt.Fprintf(w, "[%v/%v]\t\t\t= Verify Row Map/Ghosts\n", ip.VerifyRowMap, ip.VerifyGhosts)
	fmt.Fprintf(w, "[%v]\t\t\t\t= Print Matrix\n", ip.PrintMatrix)
}
