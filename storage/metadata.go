package storage

import (
	"fmt"

	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/tomo"
	"github.com/tinylib/msgp/msgp"
)

// Metadata is everything, apart from the values, needed to reopen a dataset:
// shape, chunk shape, element type, axis labels and supported patterns.
type Metadata struct {
	Name     string
	Shape    []int
	Chunks   []int
	DType    tomo.DataType
	Axes     tomo.AxisLabels
	Patterns []pattern.Pattern
	Version  string
}

// Validate checks that the metadata describes a usable array.
func (m Metadata) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("array metadata has no name")
	}
	if len(m.Shape) == 0 {
		return fmt.Errorf("array %q has no shape", m.Name)
	}
	for d, n := range m.Shape {
		if n < 1 {
			return fmt.Errorf("array %q has non-positive extent in dim %d: %v", m.Name, d, m.Shape)
		}
	}
	if len(m.Chunks) != 0 {
		if len(m.Chunks) != len(m.Shape) {
			return fmt.Errorf("array %q chunks %v do not match shape %v", m.Name, m.Chunks, m.Shape)
		}
		for d, c := range m.Chunks {
			if c < 1 || c > m.Shape[d] {
				return fmt.Errorf("array %q chunk %v out of bounds for shape %v", m.Name, m.Chunks, m.Shape)
			}
		}
	}
	if len(m.Axes) != 0 && len(m.Axes) != len(m.Shape) {
		return fmt.Errorf("array %q has %d axis labels for rank %d", m.Name, len(m.Axes), len(m.Shape))
	}
	return nil
}

// ChunkShape returns the chunk shape, defaulting to the full shape.
func (m Metadata) ChunkShape() []int {
	if len(m.Chunks) == len(m.Shape) {
		return append([]int(nil), m.Chunks...)
	}
	return append([]int(nil), m.Shape...)
}

// Registry returns the pattern registry described by the metadata.
func (m Metadata) Registry() (*pattern.Registry, error) {
	r := pattern.NewRegistry(len(m.Shape))
	for _, p := range m.Patterns {
		if err := r.Add(p.Name, p.CoreDims, p.SliceDims); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Duplicate returns a deep copy.
func (m Metadata) Duplicate() Metadata {
	dup := m
	dup.Shape = append([]int(nil), m.Shape...)
	dup.Chunks = append([]int(nil), m.Chunks...)
	dup.Axes = m.Axes.Duplicate()
	dup.Patterns = make([]pattern.Pattern, len(m.Patterns))
	for i, p := range m.Patterns {
		dup.Patterns[i] = pattern.Pattern{
			Name:      p.Name,
			CoreDims:  append([]int(nil), p.CoreDims...),
			SliceDims: append([]int(nil), p.SliceDims...),
		}
	}
	return dup
}

func appendInts(b []byte, ints []int) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(ints)))
	for _, i := range ints {
		b = msgp.AppendInt(b, i)
	}
	return b
}

func readInts(bts []byte) ([]int, []byte, error) {
	n, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	ints := make([]int, n)
	for i := range ints {
		ints[i], bts, err = msgp.ReadIntBytes(bts)
		if err != nil {
			return nil, bts, err
		}
	}
	return ints, bts, nil
}

// MarshalMsg implements msgp.Marshaler
func (m Metadata) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.AppendMapHeader(b, 7)
	o = msgp.AppendString(o, "name")
	o = msgp.AppendString(o, m.Name)
	o = msgp.AppendString(o, "shape")
	o = appendInts(o, m.Shape)
	o = msgp.AppendString(o, "chunks")
	o = appendInts(o, m.Chunks)
	o = msgp.AppendString(o, "dtype")
	o = msgp.AppendString(o, m.DType.String())
	o = msgp.AppendString(o, "axes")
	o = msgp.AppendArrayHeader(o, uint32(len(m.Axes)))
	for _, a := range m.Axes {
		o = msgp.AppendString(o, a.String())
	}
	o = msgp.AppendString(o, "patterns")
	o = msgp.AppendArrayHeader(o, uint32(len(m.Patterns)))
	for _, p := range m.Patterns {
		o = msgp.AppendArrayHeader(o, 3)
		o = msgp.AppendString(o, p.Name)
		o = appendInts(o, p.CoreDims)
		o = appendInts(o, p.SliceDims)
	}
	o = msgp.AppendString(o, "version")
	o = msgp.AppendString(o, m.Version)
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (m *Metadata) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var fields uint32
	fields, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return
	}
	for ; fields > 0; fields-- {
		var field string
		field, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return
		}
		switch field {
		case "name":
			m.Name, bts, err = msgp.ReadStringBytes(bts)
		case "shape":
			m.Shape, bts, err = readInts(bts)
		case "chunks":
			m.Chunks, bts, err = readInts(bts)
		case "dtype":
			var s string
			if s, bts, err = msgp.ReadStringBytes(bts); err == nil {
				m.DType, err = tomo.ParseDataType(s)
			}
		case "axes":
			var n uint32
			if n, bts, err = msgp.ReadArrayHeaderBytes(bts); err != nil {
				return
			}
			m.Axes = make(tomo.AxisLabels, n)
			for i := range m.Axes {
				var s string
				if s, bts, err = msgp.ReadStringBytes(bts); err != nil {
					return
				}
				if m.Axes[i], err = tomo.ParseAxisLabel(s); err != nil {
					return
				}
			}
		case "patterns":
			var n uint32
			if n, bts, err = msgp.ReadArrayHeaderBytes(bts); err != nil {
				return
			}
			m.Patterns = make([]pattern.Pattern, n)
			for i := range m.Patterns {
				var sz uint32
				if sz, bts, err = msgp.ReadArrayHeaderBytes(bts); err != nil {
					return
				}
				if sz != 3 {
					err = msgp.ArrayError{Wanted: 3, Got: sz}
					return
				}
				p := &m.Patterns[i]
				if p.Name, bts, err = msgp.ReadStringBytes(bts); err != nil {
					return
				}
				if p.CoreDims, bts, err = readInts(bts); err != nil {
					return
				}
				if p.SliceDims, bts, err = readInts(bts); err != nil {
					return
				}
			}
		case "version":
			m.Version, bts, err = msgp.ReadStringBytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return
		}
	}
	o = bts
	return
}
