package grid

import "errors"

var (
	// ErrInvalidParameter reports a non-positive order or smoothing scale,
	// a bad dimension, or any other argument outside its valid range.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrShapeMismatch reports cooperating grids with different shapes.
	// It matches ErrInvalidParameter under errors.Is.
	ErrShapeMismatch error = &shapeError{}
)

type shapeError struct{}

func (*shapeError) Error() string { return "grid shape mismatch" }

func (*shapeError) Unwrap() error { return ErrInvalidParameter }
