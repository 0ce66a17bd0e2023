package utils

import (
	"runtime"
	"sync"
)

// PartitionMap splits [0, MaxIndex) into ParallelDegree contiguous buckets
// with a maximum imbalance of one item.
type PartitionMap struct {
	MaxIndex       int
	ParallelDegree int
	Partitions     [][2]int // Beginning and end index of partitions
}

func NewPartitionMap(ParallelDegree, maxIndex int) (pm *PartitionMap) {
	if ParallelDegree < 1 {
		ParallelDegree = 1
	}
	if maxIndex > 0 && ParallelDegree > maxIndex {
		ParallelDegree = maxIndex
	}
	pm = &PartitionMap{
		MaxIndex:       maxIndex,
		ParallelDegree: ParallelDegree,
		Partitions:     make([][2]int, ParallelDegree),
	}
	for n := 0; n < ParallelDegree; n++ {
		pm.Partitions[n] = pm.Split1D(n)
	}
	return
}

// DefaultParallelDegree is the number of usable CPUs, overridable by the
// caller with a positive request.
func DefaultParallelDegree(requested int) int {
	if requested > 0 {
		return requested
	}
	return runtime.NumCPU()
}

func (pm *PartitionMap) Split1D(bucketNum int) (bucket [2]int) {
	var (
		Npart     = pm.MaxIndex / pm.ParallelDegree
		remainder = pm.MaxIndex % pm.ParallelDegree
		start     = bucketNum * Npart
		size      = Npart
	)
	// spread the remainder over the first buckets
	if bucketNum < remainder {
		start += bucketNum
		size++
	} else {
		start += remainder
	}
	bucket = [2]int{start, start + size}
	return
}

// GetBucket returns the bucket holding index k, or -1 when out of range.
func (pm *PartitionMap) GetBucket(k int) (bucketNum, min, max int) {
	if k < 0 || k >= pm.MaxIndex {
		return -1, 0, 0
	}
	for bn, p := range pm.Partitions {
		if p[0] <= k && k < p[1] {
			return bn, p[0], p[1]
		}
	}
	return -1, 0, 0
}

func (pm *PartitionMap) GetBucketRange(bucketNum int) (kMin, kMax int) {
	kMin, kMax = pm.Partitions[bucketNum][0], pm.Partitions[bucketNum][1]
	return
}

func (pm *PartitionMap) GetBucketDimension(bn int) int {
	if bn == -1 {
		return pm.MaxIndex
	}
	kMin, kMax := pm.GetBucketRange(bn)
	return kMax - kMin
}

func (pm *PartitionMap) GetLocalK(k int) (kLocal, kMax, bn int) {
	var kmin, kmax int
	bn, kmin, kmax = pm.GetBucket(k)
	return k - kmin, kmax - kmin, bn
}

func (pm *PartitionMap) GetGlobalK(kLocal, bn int) int {
	if bn == -1 {
		return kLocal
	}
	return pm.Partitions[bn][0] + kLocal
}

// ParallelFor runs fn once per bucket on its own goroutine and waits.
func (pm *PartitionMap) ParallelFor(fn func(bn, kMin, kMax int)) {
	if pm.ParallelDegree == 1 {
		fn(0, 0, pm.MaxIndex)
		return
	}
	var wg sync.WaitGroup
	for bn := 0; bn < pm.ParallelDegree; bn++ {
		wg.Add(1)
		go func(bn int) {
			defer wg.Done()
			kMin, kMax := pm.GetBucketRange(bn)
			fn(bn, kMin, kMax)
		}(bn)
	}
	wg.Wait()
}
