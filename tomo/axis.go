package tomo

import (
	"fmt"
	"strings"
)

// AxisLabel names a dataset dimension and its units, e.g. "rotation_angle.degrees".
type AxisLabel struct {
	Name  string
	Units string
}

// ParseAxisLabel parses "name.units".  A label without a period has empty units.
func ParseAxisLabel(s string) (AxisLabel, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AxisLabel{}, fmt.Errorf("empty axis label")
	}
	i := strings.LastIndex(s, ".")
	if i < 0 {
		return AxisLabel{Name: s}, nil
	}
	if i == 0 {
		return AxisLabel{}, fmt.Errorf("axis label %q has no name", s)
	}
	return AxisLabel{Name: s[:i], Units: s[i+1:]}, nil
}

func (a AxisLabel) String() string {
	if a.Units == "" {
		return a.Name
	}
	return a.Name + "." + a.Units
}

// AxisLabels is the ordered list of labels for every dimension of a dataset.
type AxisLabels []AxisLabel

// ParseAxisLabels parses each "name.units" string.
func ParseAxisLabels(labels ...string) (AxisLabels, error) {
	out := make(AxisLabels, len(labels))
	for i, s := range labels {
		a, err := ParseAxisLabel(s)
		if err != nil {
			return nil, err
		}
		out[i] = a
	}
	return out, nil
}

// Strings returns the "name.units" form of each label.
func (labels AxisLabels) Strings() []string {
	s := make([]string, len(labels))
	for i, a := range labels {
		s[i] = a.String()
	}
	return s
}

// Duplicate returns a copy of the labels.
func (labels AxisLabels) Duplicate() AxisLabels {
	return append(AxisLabels(nil), labels...)
}

// Find returns the dimension with the given axis name or -1.
func (labels AxisLabels) Find(name string) int {
	for i, a := range labels {
		if a.Name == name {
			return i
		}
	}
	return -1
}

func (labels AxisLabels) normalize(dim int, inclusive bool) (int, error) {
	n := len(labels)
	if inclusive {
		n++
	}
	if dim < 0 {
		dim += n
	}
	if dim < 0 || dim >= n {
		return 0, fmt.Errorf("axis %d out of range for %d labels", dim, len(labels))
	}
	return dim, nil
}

// Remove returns a copy without the given dimension.  Negative dims count from the end.
func (labels AxisLabels) Remove(dim int) (AxisLabels, error) {
	dim, err := labels.normalize(dim, false)
	if err != nil {
		return nil, err
	}
	out := make(AxisLabels, 0, len(labels)-1)
	out = append(out, labels[:dim]...)
	return append(out, labels[dim+1:]...), nil
}

// Replace returns a copy with the label at dim replaced.
func (labels AxisLabels) Replace(dim int, a AxisLabel) (AxisLabels, error) {
	dim, err := labels.normalize(dim, false)
	if err != nil {
		return nil, err
	}
	out := labels.Duplicate()
	out[dim] = a
	return out, nil
}

// Insert returns a copy with a new label placed before dim.  A dim equal to the
// number of labels appends.
func (labels AxisLabels) Insert(dim int, a AxisLabel) (AxisLabels, error) {
	dim, err := labels.normalize(dim, true)
	if err != nil {
		return nil, err
	}
	out := make(AxisLabels, 0, len(labels)+1)
	out = append(out, labels[:dim]...)
	out = append(out, a)
	return append(out, labels[dim:]...), nil
}
