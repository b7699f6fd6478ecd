package burg

import (
	"errors"

	"github.com/banshee-data/localburg/internal/grid"
)

// ErrInvalidParameter is grid.ErrInvalidParameter, re-exported for callers
// that only import this package.
var ErrInvalidParameter = grid.ErrInvalidParameter

// ErrNumericalInstability marks reflection coefficients that were
// non-finite or outside [-1, 1]. Estimation recovers from it by clipping
// and logs a diagnostic; it is returned only by CoefficientField.Validate.
var ErrNumericalInstability = errors.New("numerical instability")
