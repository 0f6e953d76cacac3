// Package shared holds state that one task writes and others read.
package shared

import "sync/atomic"

type snapshot[T any] struct {
	val T
	gen uint64
}

// Cell is a value with exactly one writer and any number of readers. Each
// store bumps a generation so readers can detect a change across a
// suspension point.
type Cell[T any] struct {
	p atomic.Pointer[snapshot[T]]
}

// Writer is the only handle that can change a Cell.
type Writer[T any] struct {
	c *Cell[T]
}

// New returns a cell holding initial and its writer.
func New[T any](initial T) (*Cell[T], *Writer[T]) {
	c := &Cell[T]{}
	c.p.Store(&snapshot[T]{val: initial})
	return c, &Writer[T]{c: c}
}

// Load returns the current value.
func (c *Cell[T]) Load() T {
	return c.p.Load().val
}

// Snapshot returns the current value and its generation.
func (c *Cell[T]) Snapshot() (T, uint64) {
	s := c.p.Load()
	return s.val, s.gen
}

// Changed reports whether the cell was stored since generation gen.
func (c *Cell[T]) Changed(gen uint64) bool {
	return c.p.Load().gen != gen
}

// Store replaces the value.
func (w *Writer[T]) Store(v T) {
	old := w.c.p.Load()
	w.c.p.Store(&snapshot[T]{val: v, gen: old.gen + 1})
}

// Cell returns the read side.
func (w *Writer[T]) Cell() *Cell[T] {
	return w.c
}
