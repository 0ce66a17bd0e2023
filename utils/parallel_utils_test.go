package utils

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartitionMap(t *testing.T) {
	{ // bucket sizes
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				histo[pm.GetBucketDimension(np)]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		// fewer items than workers caps the degree
		assert.Equal(t, map[int]int{1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 32}, getHisto(256, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
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
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1]))
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // bucket lookup
		for maxIndex := 10; maxIndex < 200; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				bn, min, max := pm.GetBucket(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax)
				kl, _, bn2 := pm.GetLocalK(k)
				assert.Equal(t, k, pm.GetGlobalK(kl, bn2))
			}
			bn, _, _ := pm.GetBucket(maxIndex)
			assert.Equal(t, -1, bn)
		}
	}
	{ // every index visited exactly once
		var (
			pm   = NewPartitionMap(7, 1000)
			seen = make([]int, 1000)
			mu   sync.Mutex
		)
		pm.ParallelFor(func(bn, kMin, kMax int) {
			mu.Lock()
			defer mu.Unlock()
			for k := kMin; k < kMax; k++ {
				seen[k]++
			}
		})
		for _, s := range seen {
			assert.Equal(t, 1, s)
		}
	}
}

func TestThreadComm(t *testing.T) {
	var (
		np    = 4
		comms = NewThreadGroup(np)
		wg    sync.WaitGroup
		maxs  = make([]int, np)
		sums  = make([]float64, np)
	)
	for _, c := range comms {
		wg.Add(1)
		go func(c *ThreadComm) {
			defer wg.Done()
			for i := 0; i < 3; i++ {
				maxs[c.Rank()] = c.MaxAllInt(10*c.Rank() + i)
				sums[c.Rank()] = c.SumAll(float64(c.Rank() + 1))
				c.Barrier()
			}
		}(c)
	}
	wg.Wait()
	for r := 0; r < np; r++ {
		assert.Equal(t, 32, maxs[r])
		assert.Equal(t, 10., sums[r])
	}
	var s SerialComm
	assert.Equal(t, 3, s.MaxAllInt(3))
	assert.Equal(t, 1, s.NumProc())
}
