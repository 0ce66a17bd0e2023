package state

import (
	"github.com/notargets/gocsd/utils"
)

// MultiStepBuffer holds the values at steps [-Past(), 0]. Storage is a ring;
// index 0 is the most recent value.
type MultiStepBuffer[T any] struct {
	steps []T
	head  int // ring position of index 0
	clone func(T) T
}

// NewMultiStepBuffer returns an empty buffer. clone must return an
// independent copy of its argument; nil means plain assignment.
func NewMultiStepBuffer[T any](clone func(T) T) *MultiStepBuffer[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &MultiStepBuffer[T]{clone: clone}
}

// Resize allocates the range [past, future]. Only future == 0 is supported.
// With copy set every slot receives a clone of prototype, otherwise the
// current values are kept where the range overlaps and new slots get clones.
func (b *MultiStepBuffer[T]) Resize(past, future int, prototype T, copy bool) {
	if future != 0 {
		panic(utils.NewRuntimeError("MultiStepBuffer.Resize", "future steps not supported: %d", future))
	}
	if past > 0 {
		panic(utils.NewRuntimeError("MultiStepBuffer.Resize", "past index must be <= 0, got %d", past))
	}
	var (
		n     = -past + 1
		steps = make([]T, n)
	)
	for i := 0; i < n; i++ {
		if !copy && i < len(b.steps) {
			steps[i] = b.At(-i)
		} else {
			steps[i] = b.clone(prototype)
		}
	}
	b.steps = steps
	b.head = 0
}

func (b *MultiStepBuffer[T]) Past() int { return len(b.steps) - 1 }

func (b *MultiStepBuffer[T]) pos(i int) int {
	if i > 0 || -i >= len(b.steps) {
		panic(utils.NewRuntimeError("MultiStepBuffer", "index %d outside [%d, 0]", i, -b.Past()))
	}
	return (b.head - i) % len(b.steps)
}

// At returns the stored value at step i (i <= 0). For reference types the
// value is live storage.
func (b *MultiStepBuffer[T]) At(i int) T { return b.steps[b.pos(i)] }

func (b *MultiStepBuffer[T]) Set(i int, v T) { b.steps[b.pos(i)] = b.clone(v) }

// UpdateSteps shifts every value one step into the past, dropping the oldest,
// and stores v at index 0.
func (b *MultiStepBuffer[T]) UpdateSteps(v T) {
	if len(b.steps) == 0 {
		panic(utils.NewRuntimeError("MultiStepBuffer.UpdateSteps", "buffer not resized"))
	}
	n := len(b.steps)
	b.head = (b.head - 1 + n) % n
	b.steps[b.head] = b.clone(v)
}
