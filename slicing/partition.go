package slicing

import "fmt"

// Span is a half-open range [Start, Stop) of list positions.
type Span struct {
	Start, Stop int
}

// Len returns the number of positions in the span.
func (s Span) Len() int {
	return s.Stop - s.Start
}

// Split divides n items into procs contiguous spans whose sizes differ by at
// most one.  The first n mod procs spans get the extra item.
func Split(n, procs int) ([]Span, error) {
	if procs < 1 {
		return nil, fmt.Errorf("number of processes must be positive, got %d", procs)
	}
	if n < 0 {
		return nil, fmt.Errorf("cannot split negative count %d", n)
	}
	spans := make([]Span, procs)
	size, extra := n/procs, n%procs
	start := 0
	for rank := range spans {
		l := size
		if rank < extra {
			l++
		}
		spans[rank] = Span{start, start + l}
		start += l
	}
	return spans, nil
}

// Partition returns the contiguous portion of a list handled by a rank.
// Ranks beyond the length of the list get an empty portion.
func Partition(list List, rank, procs int) (List, error) {
	span, err := RankSpan(len(list), rank, procs)
	if err != nil {
		return nil, err
	}
	return list[span.Start:span.Stop], nil
}

// RankSpan returns the span of n items handled by a rank.
func RankSpan(n, rank, procs int) (Span, error) {
	if rank < 0 || rank >= procs {
		return Span{}, fmt.Errorf("rank %d out of range for %d processes", rank, procs)
	}
	spans, err := Split(n, procs)
	if err != nil {
		return Span{}, err
	}
	return spans[rank], nil
}

// FrameIndices returns the global positions of n items handled by a rank.
func FrameIndices(n, rank, procs int) ([]int, error) {
	span, err := RankSpan(n, rank, procs)
	if err != nil {
		return nil, err
	}
	indices := make([]int, 0, span.Len())
	for i := span.Start; i < span.Stop; i++ {
		indices = append(indices, i)
	}
	return indices, nil
}
