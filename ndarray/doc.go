// Package ndarray provides dense float32 N-dimensional arrays and the
// per-dimension slice tuples used to address frame-groups within them.
package ndarray
