package tomo

import (
	"fmt"
	"path/filepath"

	humanize "github.com/dustin/go-humanize"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
	Tera = 1 << 40
)

// ConvertToAbsolute returns an absolute path for p, treating relative paths as
// relative to dir.
func ConvertToAbsolute(p, dir string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	abs, err := filepath.Abs(filepath.Join(dir, p))
	if err != nil {
		return "", fmt.Errorf("could not make %q absolute: %v", p, err)
	}
	return abs, nil
}

// Prod returns the product of the given extents.
func Prod(dims []int) int {
	n := 1
	for _, d := range dims {
		n *= d
	}
	return n
}

// Bytes is a human readable byte count.
func Bytes(n uint64) string {
	return humanize.Bytes(n)
}

// IntsEqual returns true if two int slices have identical elements.
func IntsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
