package parallel

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// World is a fixed group of ranks executing the same function.
type World struct {
	np int

	mu    sync.Mutex
	round *rendezvous
	mb    *MailBox[any]

	abort     chan struct{}
	abortOnce sync.Once
	cause     error
}

// rendezvous is one collective call. Its slots are written under the World
// lock and become read-only once done is closed.
type rendezvous struct {
	count int
	slots []any
	done  chan struct{}
}

func newRendezvous(np int) *rendezvous {
	return &rendezvous{
		slots: make([]any, np),
		done:  make(chan struct{}),
	}
}

func NewWorld(np int) (*World, error) {
	if np < 1 {
		return nil, fmt.Errorf("unable to create a world with %d ranks", np)
	}
	return &World{np: np}, nil
}

func (w *World) Size() int { return w.np }

// Run executes fn once per rank and waits for all of them. The first rank to
// fail aborts the World; Run returns that root cause.
func (w *World) Run(fn func(Comm) error) error {
	w.round = newRendezvous(w.np)
	w.mb = NewMailBox[any](w.np)
	w.abort = make(chan struct{})
	w.abortOnce = sync.Once{}
	w.cause = nil

	var g errgroup.Group
	for r := 0; r < w.np; r++ {
		comm := &rankComm{world: w, rank: r}
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = fmt.Errorf("rank %d: panic: %v", r, p)
				}
				if err != nil {
					w.Abort(err)
				}
			}()
			if err = fn(comm); err != nil {
				err = fmt.Errorf("rank %d: %w", r, err)
			}
			return
		})
	}
	if err := g.Wait(); err != nil {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.cause != nil {
			return w.cause
		}
		return err
	}
	return nil
}

// Abort records err as the cause of failure and releases every rank waiting
// in a collective. Only the first call has an effect.
func (w *World) Abort(err error) {
	w.abortOnce.Do(func() {
		w.mu.Lock()
		w.cause = err
		w.mu.Unlock()
		close(w.abort)
	})
}

func (w *World) aborted() bool {
	select {
	case <-w.abort:
		return true
	default:
		return false
	}
}

// gather is the primitive every collective is built on: all ranks deposit a
// value and all ranks receive every deposited value.
func (w *World) gather(rank int, v any) ([]any, error) {
	if w.aborted() {
		return nil, ErrAborted
	}
	w.mu.Lock()
	rv := w.round
	rv.slots[rank] = v
	rv.count++
	if rv.count == w.np {
		w.round = newRendezvous(w.np)
		close(rv.done)
	}
	w.mu.Unlock()
	select {
	case <-rv.done:
		return rv.slots, nil
	case <-w.abort:
		return nil, ErrAborted
	}
}

type rankComm struct {
	world *World
	rank  int
}

func (c *rankComm) Rank() int       { return c.rank }
func (c *rankComm) Size() int       { return c.world.np }
func (c *rankComm) Abort(err error) { c.world.Abort(err) }

func (c *rankComm) Barrier() (err error) {
	_, err = c.world.gather(c.rank, nil)
	return
}

func (c *rankComm) AllGather(v any) (all []any, err error) {
	var (
		slots []any
	)
	if slots, err = c.world.gather(c.rank, v); err != nil {
		return
	}
	all = make([]any, len(slots))
	copy(all, slots)
	return
}

func (c *rankComm) AllReduceInts(op Op, in []int) (out []int, err error) {
	var (
		slots []any
	)
	if slots, err = c.world.gather(c.rank, in); err != nil {
		return
	}
	out = make([]int, len(in))
	for r, s := range slots {
		vals := s.([]int)
		if len(vals) != len(in) {
			return nil, fmt.Errorf("all-reduce length mismatch: rank %d has %d values, rank %d has %d",
				c.rank, len(in), r, len(vals))
		}
		for i, v := range vals {
			switch {
			case r == 0:
				out[i] = v
			case op == OpSum:
				out[i] += v
			case op == OpMax:
				out[i] = max(out[i], v)
			case op == OpMin:
				out[i] = min(out[i], v)
			}
		}
	}
	return
}

func (c *rankComm) AllReduceFloat64s(op Op, in []float64) (out []float64, err error) {
	var (
		slots []any
	)
	if slots, err = c.world.gather(c.rank, in); err != nil {
		return
	}
	out = make([]float64, len(in))
	for r, s := range slots {
		vals := s.([]float64)
		if len(vals) != len(in) {
			return nil, fmt.Errorf("all-reduce length mismatch: rank %d has %d values, rank %d has %d",
				c.rank, len(in), r, len(vals))
		}
		for i, v := range vals {
			switch {
			case r == 0:
				out[i] = v
			case op == OpSum:
				out[i] += v
			case op == OpMax:
				out[i] = max(out[i], v)
			case op == OpMin:
				out[i] = min(out[i], v)
			}
		}
	}
	return
}

func (c *rankComm) Exchange(out map[int]any) (in map[int]any, err error) {
	var (
		mb = c.world.mb
	)
	for target, msg := range out {
		if target < 0 || target >= c.world.np {
			return nil, fmt.Errorf("exchange target rank %d out of range [0,%d)", target, c.world.np)
		}
		mb.PostMessage(c.rank, target, msg)
	}
	mb.DeliverMyMessages(c.rank)
	if err = c.Barrier(); err != nil {
		return
	}
	mb.ReceiveMyMessages(c.rank)
	in = make(map[int]any)
	for _, env := range mb.MyMessages(c.rank) {
		if _, dup := in[env.From]; dup {
			err = errors.New("exchange received two messages from the same rank")
			return
		}
		in[env.From] = env.Msg
	}
	mb.ClearMyMessages(c.rank)
	// Outboxes are reset by their receivers, wait before anyone posts again
	err = c.Barrier()
	return
}
