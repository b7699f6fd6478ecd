// Package grid provides the dense single-precision sample buffers shared by
// the filtering, masking and storage packages.
//
// A Grid has up to three dimensions n1, n2 and n3. Unused trailing
// dimensions are 1. Samples are stored contiguously with the first
// dimension varying fastest, so sample (i1, i2, i3) lives at
// i1 + n1*(i2 + n2*i3). Every run of n1 samples is an axis-1 line; the
// recursive filters scan along those lines.
package grid

import (
	"fmt"
	"math"
)

// Shape describes the extent of a Grid along each axis.
type Shape struct {
	N1 int
	N2 int
	N3 int
}

// Len returns the number of samples covered by the shape.
func (s Shape) Len() int { return s.N1 * s.N2 * s.N3 }

// Lines returns the number of axis-1 lines.
func (s Shape) Lines() int { return s.N2 * s.N3 }

// Dims returns 1, 2 or 3 depending on which trailing axes are in use.
func (s Shape) Dims() int {
	switch {
	case s.N3 > 1:
		return 3
	case s.N2 > 1:
		return 2
	default:
		return 1
	}
}

func (s Shape) String() string {
	switch s.Dims() {
	case 3:
		return fmt.Sprintf("%dx%dx%d", s.N1, s.N2, s.N3)
	case 2:
		return fmt.Sprintf("%dx%d", s.N1, s.N2)
	default:
		return fmt.Sprintf("%d", s.N1)
	}
}

// Validate reports whether every dimension is positive.
func (s Shape) Validate() error {
	if s.N1 <= 0 || s.N2 <= 0 || s.N3 <= 0 {
		return fmt.Errorf("%w: dimensions must be positive, got n1=%d n2=%d n3=%d",
			ErrInvalidParameter, s.N1, s.N2, s.N3)
	}
	return nil
}

// Grid is a dense array of float32 samples.
type Grid struct {
	shape Shape
	data  []float32
}

// New allocates a zero-filled grid of n1 x n2 x n3 samples.
func New(n1, n2, n3 int) (*Grid, error) {
	s := Shape{N1: n1, N2: n2, N3: n3}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Grid{shape: s, data: make([]float32, s.Len())}, nil
}

// New2 allocates a zero-filled 2-D grid.
func New2(n1, n2 int) (*Grid, error) { return New(n1, n2, 1) }

// NewShape allocates a zero-filled grid with the given shape.
func NewShape(s Shape) (*Grid, error) { return New(s.N1, s.N2, s.N3) }

// FromSlice wraps data as a grid of the given shape. The grid takes
// ownership of data; callers must not modify it afterwards.
func FromSlice(s Shape, data []float32) (*Grid, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if len(data) != s.Len() {
		return nil, fmt.Errorf("%w: %d samples for shape %s (want %d)",
			ErrShapeMismatch, len(data), s, s.Len())
	}
	return &Grid{shape: s, data: data}, nil
}

// Shape returns the grid dimensions.
func (g *Grid) Shape() Shape { return g.shape }

// Len returns the number of samples.
func (g *Grid) Len() int { return len(g.data) }

// Data exposes the underlying samples. Callers that did not allocate the
// grid must treat the slice as read-only.
func (g *Grid) Data() []float32 { return g.data }

// Index returns the flat offset of sample (i1, i2, i3).
func (g *Grid) Index(i1, i2, i3 int) int {
	return i1 + g.shape.N1*(i2+g.shape.N2*i3)
}

// At returns sample (i1, i2, i3).
func (g *Grid) At(i1, i2, i3 int) float32 { return g.data[g.Index(i1, i2, i3)] }

// Set stores v at (i1, i2, i3).
func (g *Grid) Set(i1, i2, i3 int, v float32) { g.data[g.Index(i1, i2, i3)] = v }

// Line returns the j-th axis-1 line as a sub-slice of the grid storage.
func (g *Grid) Line(j int) []float32 {
	n1 := g.shape.N1
	return g.data[j*n1 : (j+1)*n1]
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	data := make([]float32, len(g.data))
	copy(data, g.data)
	return &Grid{shape: g.shape, data: data}
}

// Fill sets every sample to v.
func (g *Grid) Fill(v float32) {
	for i := range g.data {
		g.data[i] = v
	}
}

// SameShape returns ErrShapeMismatch unless every grid has the shape of the first.
func SameShape(grids ...*Grid) error {
	if len(grids) == 0 {
		return nil
	}
	for i, g := range grids {
		if g == nil {
			return fmt.Errorf("%w: grid %d is nil", ErrInvalidParameter, i)
		}
	}
	want := grids[0].shape
	for _, g := range grids[1:] {
		if g.shape != want {
			return fmt.Errorf("%w: %s vs %s", ErrShapeMismatch, want, g.shape)
		}
	}
	return nil
}

// Sub returns a - b.
func Sub(a, b *Grid) (*Grid, error) {
	if err := SameShape(a, b); err != nil {
		return nil, err
	}
	out := &Grid{shape: a.shape, data: make([]float32, len(a.data))}
	for i := range a.data {
		out.data[i] = a.data[i] - b.data[i]
	}
	return out, nil
}

// Abs returns |g|.
func Abs(g *Grid) *Grid {
	out := &Grid{shape: g.shape, data: make([]float32, len(g.data))}
	for i, v := range g.data {
		if v < 0 {
			v = -v
		}
		out.data[i] = v
	}
	return out
}

// MaxAbsDiff returns max |a-b| over all samples.
func MaxAbsDiff(a, b *Grid) (float64, error) {
	if err := SameShape(a, b); err != nil {
		return 0, err
	}
	var m float64
	for i := range a.data {
		d := math.Abs(float64(a.data[i]) - float64(b.data[i]))
		if d > m {
			m = d
		}
	}
	return m, nil
}

// Float64s converts the samples to float64 for use with numeric libraries.
func (g *Grid) Float64s() []float64 {
	out := make([]float64, len(g.data))
	for i, v := range g.data {
		out[i] = float64(v)
	}
	return out
}
