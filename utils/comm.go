package utils

import (
	"math"
	"sync"
)

// Comm is the cross-rank reduction surface used by the engine.
type Comm interface {
	Rank() int
	NumProc() int
	Barrier()
	MaxAllInt(v int) int
	MaxAll(v float64) float64
	SumAll(v float64) float64
}

// SerialComm is a single rank world.
type SerialComm struct{}

func (SerialComm) Rank() int                { return 0 }
func (SerialComm) NumProc() int             { return 1 }
func (SerialComm) Barrier()                 {}
func (SerialComm) MaxAllInt(v int) int      { return v }
func (SerialComm) MaxAll(v float64) float64 { return v }
func (SerialComm) SumAll(v float64) float64 { return v }

// threadWorld is shared by the ranks of an in-process group. Each collective
// is: post own value, barrier, read all values, barrier.
type threadWorld struct {
	np    int
	mu    sync.Mutex
	cond  *sync.Cond
	count int
	gen   int
	slots []float64
}

func (w *threadWorld) barrier() {
	w.mu.Lock()
	gen := w.gen
	w.count++
	if w.count == w.np {
		w.count = 0
		w.gen++
		w.cond.Broadcast()
	} else {
		for gen == w.gen {
			w.cond.Wait()
		}
	}
	w.mu.Unlock()
}

func (w *threadWorld) allReduce(rank int, v float64, op func(a, b float64) float64) (r float64) {
	w.mu.Lock()
	w.slots[rank] = v
	w.mu.Unlock()
	w.barrier()
	w.mu.Lock()
	r = w.slots[0]
	for _, s := range w.slots[1:] {
		r = op(r, s)
	}
	w.mu.Unlock()
	w.barrier()
	return
}

// ThreadComm is one rank of an in-process group of goroutine ranks.
type ThreadComm struct {
	rank  int
	world *threadWorld
}

// NewThreadGroup returns np communicators sharing one world. Each must be
// driven from its own goroutine.
func NewThreadGroup(np int) (comms []*ThreadComm) {
	w := &threadWorld{np: np, slots: make([]float64, np)}
	w.cond = sync.NewCond(&w.mu)
	comms = make([]*ThreadComm, np)
	for r := range comms {
		comms[r] = &ThreadComm{rank: r, world: w}
	}
	return
}

func (c *ThreadComm) Rank() int    { return c.rank }
func (c *ThreadComm) NumProc() int { return c.world.np }
func (c *ThreadComm) Barrier()     { c.world.barrier() }

func (c *ThreadComm) MaxAll(v float64) float64 {
	return c.world.allReduce(c.rank, v, math.Max)
}

func (c *ThreadComm) MaxAllInt(v int) int {
	return int(c.MaxAll(float64(v)))
}

func (c *ThreadComm) SumAll(v float64) float64 {
	return c.world.allReduce(c.rank, v, func(a, b float64) float64 { return a + b })
}
