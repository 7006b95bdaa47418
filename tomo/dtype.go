package tomo

import "fmt"

// DataType is the element type of a stored dataset.  Values are always
// processed as float32 in memory; DataType records the declared element
// type and its item size for chunk budgeting.
type DataType uint8

const (
	Float32 DataType = iota
	Float64
	Uint8
	Uint16
	Int16
	Int32
)

var dataTypeNames = map[DataType]string{
	Float32: "float32",
	Float64: "float64",
	Uint8:   "uint8",
	Uint16:  "uint16",
	Int16:   "int16",
	Int32:   "int32",
}

func (t DataType) String() string {
	if s, found := dataTypeNames[t]; found {
		return s
	}
	return fmt.Sprintf("unknown data type %d", uint8(t))
}

// ItemSize returns the number of bytes per element.
func (t DataType) ItemSize() int {
	switch t {
	case Uint8:
		return 1
	case Uint16, Int16:
		return 2
	case Float64:
		return 8
	default:
		return 4
	}
}

// ParseDataType returns the DataType for a name such as "float32".
func ParseDataType(s string) (DataType, error) {
	for t, name := range dataTypeNames {
		if name == s {
			return t, nil
		}
	}
	return Float32, fmt.Errorf("Unknown data type specification (%s)", s)
}
