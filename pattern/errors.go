package pattern

import "fmt"

// InvalidPatternError is returned when core and slice dimensions of a pattern
// do not exactly partition the dataset dimensions.
type InvalidPatternError struct {
	Name      string
	Rank      int
	CoreDims  []int
	SliceDims []int
	Reason    string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q (core %v, slice %v) for rank %d: %s",
		e.Name, e.CoreDims, e.SliceDims, e.Rank, e.Reason)
}

// UnknownPatternError is returned when a pattern name is not registered.
type UnknownPatternError struct {
	Name  string
	Known []string
}

func (e *UnknownPatternError) Error() string {
	return fmt.Sprintf("unknown pattern %q (registered: %v)", e.Name, e.Known)
}

// UnsupportedPatternError is returned when a slice list is requested for a
// pattern the dataset does not support.
type UnsupportedPatternError struct {
	Name    string
	Dataset string
}

func (e *UnsupportedPatternError) Error() string {
	if e.Dataset == "" {
		return fmt.Sprintf("pattern %q is not supported", e.Name)
	}
	return fmt.Sprintf("pattern %q is not supported by dataset %q", e.Name, e.Dataset)
}
