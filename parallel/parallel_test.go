package parallel

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionMap(t *testing.T) {
	{ // Test PartitionMap
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				maxK := pm.GetBucketDimension(np)
				histo[maxK]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 32}, getHisto(256, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		assert.Equal(t, 287, getTotal(getHisto(287, 32)))
		for n := 64; n < 2000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // Maximum imbalance of 1
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // Inverted bucket lookup - find bucket that contains index
		for maxIndex := 10; maxIndex < 500; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				tryCount, bn, min, max := pm.getBucketWithTryCount(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax && tryCount <= 1)
				kLocal, _, bn2 := pm.GetLocalK(k)
				assert.Equal(t, k, pm.GetGlobalK(kLocal, bn2))
			}
		}
	}
	{ // Out of range
		pm := NewPartitionMap(3, 10)
		bn, _, _ := pm.GetBucket(10)
		assert.Equal(t, -1, bn)
		bn, _, _ = pm.GetBucket(-1)
		assert.Equal(t, -1, bn)
	}
}

func TestNewWorld(t *testing.T) {
	_, err := NewWorld(0)
	assert.Error(t, err)
	w, err := NewWorld(4)
	require.NoError(t, err)
	assert.Equal(t, 4, w.Size())
}

func TestCollectives(t *testing.T) {
	w, err := NewWorld(3)
	require.NoError(t, err)
	err = w.Run(func(c Comm) error {
		sum, err := c.AllReduceInts(OpSum, []int{c.Rank() + 1, 10})
		if err != nil {
			return err
		}
		assert.Equal(t, []int{6, 30}, sum)
		mx, err := c.AllReduceInts(OpMax, []int{c.Rank()})
		if err != nil {
			return err
		}
		assert.Equal(t, []int{2}, mx)
		mn, err := c.AllReduceFloat64s(OpMin, []float64{float64(c.Rank()) - 0.5})
		if err != nil {
			return err
		}
		assert.Equal(t, []float64{-0.5}, mn)
		all, err := c.AllGather(c.Rank() * 10)
		if err != nil {
			return err
		}
		assert.Equal(t, []any{0, 10, 20}, all)
		return c.Barrier()
	})
	assert.NoError(t, err)
}

func TestExchange(t *testing.T) {
	w, err := NewWorld(4)
	require.NoError(t, err)
	var (
		mu       sync.Mutex
		received = make(map[int]map[int]any)
	)
	err = w.Run(func(c Comm) error {
		// Ring: every rank sends to its right neighbor, twice in a row
		for iter := 0; iter < 2; iter++ {
			right := (c.Rank() + 1) % c.Size()
			in, err := c.Exchange(map[int]any{right: []int{c.Rank(), iter}})
			if err != nil {
				return err
			}
			if iter == 1 {
				mu.Lock()
				received[c.Rank()] = in
				mu.Unlock()
			}
		}
		return nil
	})
	require.NoError(t, err)
	for r := 0; r < 4; r++ {
		left := (r + 3) % 4
		assert.Equal(t, map[int]any{left: []int{left, 1}}, received[r])
	}
}

func TestExchangeEmpty(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	err = w.Run(func(c Comm) error {
		out := map[int]any{}
		if c.Rank() == 0 {
			out[1] = "hello"
		}
		in, err := c.Exchange(out)
		if err != nil {
			return err
		}
		if c.Rank() == 1 {
			assert.Equal(t, map[int]any{0: "hello"}, in)
		} else {
			assert.Empty(t, in)
		}
		return nil
	})
	assert.NoError(t, err)
}

func TestAbortReleasesBlockedRanks(t *testing.T) {
	w, err := NewWorld(3)
	require.NoError(t, err)
	cause := errors.New("load_file failed")
	var (
		mu      sync.Mutex
		aborted int
	)
	err = w.Run(func(c Comm) error {
		if c.Rank() == 1 {
			return cause
		}
		err := c.Barrier()
		if errors.Is(err, ErrAborted) {
			mu.Lock()
			aborted++
			mu.Unlock()
		}
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "rank 1")
	assert.Equal(t, 2, aborted)
}

func TestPanicAbortsWorld(t *testing.T) {
	w, err := NewWorld(2)
	require.NoError(t, err)
	err = w.Run(func(c Comm) error {
		if c.Rank() == 0 {
			panic("boom")
		}
		return c.Barrier()
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic: boom")
}

func TestMailBox(t *testing.T) {
	mb := NewMailBox[int](3)
	mb.PostMessageToAll(0, 7)
	mb.PostMessage(2, 1, 9)
	mb.DeliverMyMessages(0)
	mb.DeliverMyMessages(2)
	mb.ReceiveMyMessages(1)
	got := map[int]int{}
	for _, env := range mb.MyMessages(1) {
		got[env.From] = env.Msg
	}
	assert.Equal(t, map[int]int{0: 7, 2: 9}, got)
	mb.ClearMyMessages(1)
	assert.Empty(t, mb.MyMessages(1))
	assert.Panics(t, func() { mb.PostMessage(0, 5, 1) })
}
