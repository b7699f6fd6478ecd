package burg

import (
	"fmt"
	"math"

	"github.com/banshee-data/localburg/internal/grid"
)

// CoefficientSet selects one of the per-pixel coefficient sets of a field.
type CoefficientSet int

const (
	// ForwardSet holds the causal prediction coefficients a_k.
	ForwardSet CoefficientSet = iota
	// BackwardSet holds the anti-causal prediction coefficients b_k.
	BackwardSet
	// ReflectionSet holds the reflection coefficients kappa_k.
	ReflectionSet
)

func (s CoefficientSet) String() string {
	switch s {
	case ForwardSet:
		return "forward"
	case BackwardSet:
		return "backward"
	case ReflectionSet:
		return "reflection"
	default:
		return fmt.Sprintf("CoefficientSet(%d)", int(s))
	}
}

// CoefficientField holds per-pixel AR coefficients for orders 1..Order.
//
// Each set is stored pixel-major within order: coefficient k (1-based) of
// the pixel with flat grid index i lives at (k-1)*N + i, N being the number
// of samples in Shape. One order of one set is therefore a contiguous grid.
// A field is never modified after estimation; re-estimating returns a new one.
type CoefficientField struct {
	Order      int
	Shape      grid.Shape
	Forward    []float32
	Backward   []float32
	Reflection []float32

	// Clipped counts reflection coefficients pulled back to the stable range.
	Clipped int
	// NonFinite counts reflection coefficients replaced by zero.
	NonFinite int
}

func newField(order int, s grid.Shape) *CoefficientField {
	n := order * s.Len()
	return &CoefficientField{
		Order:      order,
		Shape:      s,
		Forward:    make([]float32, n),
		Backward:   make([]float32, n),
		Reflection: make([]float32, n),
	}
}

func (c *CoefficientField) set(s CoefficientSet) []float32 {
	switch s {
	case ForwardSet:
		return c.Forward
	case BackwardSet:
		return c.Backward
	default:
		return c.Reflection
	}
}

// ForwardAt returns a_k at flat grid index i.
func (c *CoefficientField) ForwardAt(k, i int) float32 { return c.Forward[(k-1)*c.Shape.Len()+i] }

// BackwardAt returns b_k at flat grid index i.
func (c *CoefficientField) BackwardAt(k, i int) float32 { return c.Backward[(k-1)*c.Shape.Len()+i] }

// ReflectionAt returns kappa_k at flat grid index i.
func (c *CoefficientField) ReflectionAt(k, i int) float32 {
	return c.Reflection[(k-1)*c.Shape.Len()+i]
}

// OrderGrid returns a copy of coefficient k of the given set as a grid
// shaped like the filtered image.
func (c *CoefficientField) OrderGrid(s CoefficientSet, k int) (*grid.Grid, error) {
	if k < 1 || k > c.Order {
		return nil, fmt.Errorf("%w: order %d outside 1..%d", grid.ErrInvalidParameter, k, c.Order)
	}
	n := c.Shape.Len()
	data := make([]float32, n)
	copy(data, c.set(s)[(k-1)*n:k*n])
	return grid.FromSlice(c.Shape, data)
}

// SetGrid returns one coefficient set as a single grid of shape
// n1 x n2 x (n3*Order), i.e. n1 x n2 x p for 2-D images. The grid shares
// storage with the field and must not be modified.
func (c *CoefficientField) SetGrid(s CoefficientSet) (*grid.Grid, error) {
	shape := grid.Shape{N1: c.Shape.N1, N2: c.Shape.N2, N3: c.Shape.N3 * c.Order}
	return grid.FromSlice(shape, c.set(s))
}

// Validate checks the field's layout and that every stored reflection
// coefficient is finite and within [-1, 1].
func (c *CoefficientField) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil coefficient field", grid.ErrInvalidParameter)
	}
	if c.Order <= 0 {
		return fmt.Errorf("%w: order must be positive, got %d", grid.ErrInvalidParameter, c.Order)
	}
	if err := c.Shape.Validate(); err != nil {
		return err
	}
	n := c.Order * c.Shape.Len()
	if len(c.Forward) != n || len(c.Backward) != n || len(c.Reflection) != n {
		return fmt.Errorf("%w: coefficient sets have %d/%d/%d values, want %d",
			grid.ErrShapeMismatch, len(c.Forward), len(c.Backward), len(c.Reflection), n)
	}
	for i, k := range c.Reflection {
		v := float64(k)
		if math.IsNaN(v) || math.Abs(v) > 1 {
			return fmt.Errorf("%w: reflection coefficient %g at order %d index %d",
				ErrNumericalInstability, v, i/c.Shape.Len()+1, i%c.Shape.Len())
		}
	}
	return nil
}

// checkGrid reports whether g can be filtered with c.
func (c *CoefficientField) checkGrid(g *grid.Grid) error {
	if c == nil || g == nil {
		return fmt.Errorf("%w: nil field or grid", grid.ErrInvalidParameter)
	}
	if g.Shape() != c.Shape {
		return fmt.Errorf("%w: coefficients %s vs grid %s", grid.ErrShapeMismatch, c.Shape, g.Shape())
	}
	n := c.Order * c.Shape.Len()
	if len(c.Forward) != n || len(c.Backward) != n {
		return fmt.Errorf("%w: coefficient sets have %d/%d values, want %d",
			grid.ErrShapeMismatch, len(c.Forward), len(c.Backward), n)
	}
	return nil
}
