package snapshot

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"

	"github.com/banshee-data/localburg/internal/burg"
	"github.com/banshee-data/localburg/internal/grid"
)

// fieldBlob is the gob payload of a stored coefficient field.
type fieldBlob struct {
	Order      int
	N1, N2, N3 int
	Forward    []float32
	Backward   []float32
	Reflection []float32
}

// serializeField compresses a coefficient field using gob encoding and gzip
// compression.
func serializeField(c *burg.CoefficientField) ([]byte, error) {
	b := fieldBlob{
		Order:      c.Order,
		N1:         c.Shape.N1,
		N2:         c.Shape.N2,
		N3:         c.Shape.N3,
		Forward:    c.Forward,
		Backward:   c.Backward,
		Reflection: c.Reflection,
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(&b); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeField decodes a gob+gzip blob and checks the restored field.
func deserializeField(blob []byte) (*burg.CoefficientField, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty coefficient blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var b fieldBlob
	if err := gob.NewDecoder(gz).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode coefficients: %w", err)
	}
	c := &burg.CoefficientField{
		Order:      b.Order,
		Shape:      grid.Shape{N1: b.N1, N2: b.N2, N3: b.N3},
		Forward:    b.Forward,
		Backward:   b.Backward,
		Reflection: b.Reflection,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("restored coefficients: %w", err)
	}
	return c, nil
}
