// Package parallel runs a single program over several ranks inside one
// process. Each rank is a goroutine holding one shard of the data; ranks
// only talk to each other through the blocking collectives of Comm.
//
// Every collective must be reached by every rank. There is no timeout: a rank
// that never arrives stalls the others, and a rank that fails aborts the whole
// World so that the blocked ranks return ErrAborted.
package parallel

import "errors"

// ErrAborted is returned by any collective once another rank has failed.
var ErrAborted = errors.New("parallel world aborted")

// Op is a reduction operation
type Op int

const (
	OpSum Op = iota
	OpMax
	OpMin
)

func (op Op) String() string {
	return [...]string{"Sum", "Max", "Min"}[op]
}

// Comm is the view a single rank has of the World.
type Comm interface {
	Rank() int
	Size() int
	// Barrier blocks until all ranks have called it
	Barrier() error
	// AllReduceInts reduces element-wise across ranks, every rank gets the result
	AllReduceInts(op Op, in []int) ([]int, error)
	AllReduceFloat64s(op Op, in []float64) ([]float64, error)
	// AllGather returns the contribution of every rank, indexed by rank
	AllGather(v any) ([]any, error)
	// Exchange delivers out[target] to each target rank and returns the
	// messages posted to this rank, keyed by source rank. Ranks that posted
	// nothing to this rank do not appear in the result.
	Exchange(out map[int]any) (map[int]any, error)
	// Abort fails the World with err, releasing every blocked rank
	Abort(err error)
}
