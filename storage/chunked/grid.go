package chunked

import (
	"strconv"
	"strings"

	"github.com/janelia-flyem/tomoflow/ndarray"
)

// dimPart is the portion of one dimension of a region that lies in a single
// chunk: the offsets inside that chunk and the matching offsets in the region.
type dimPart struct {
	chunk  int
	local  []int
	region []int
}

// splitDim groups the positions selected in one dimension by chunk.
func splitDim(sl ndarray.Slice, extent, chunk int) []dimPart {
	var parts []dimPart
	for i, p := range sl.Positions(extent) {
		c := p / chunk
		if len(parts) == 0 || parts[len(parts)-1].chunk != c {
			parts = append(parts, dimPart{chunk: c})
		}
		last := &parts[len(parts)-1]
		last.local = append(last.local, p-c*chunk)
		last.region = append(last.region, i)
	}
	return parts
}

// chunkPart is the intersection of a region with one chunk.
type chunkPart struct {
	coord []int
	dims  []dimPart
}

// overlaps returns every chunk a region touches.
func overlaps(idx ndarray.Index, shape, chunks []int) []chunkPart {
	perDim := make([][]dimPart, len(shape))
	counts := make([]int, len(shape))
	for d := range shape {
		perDim[d] = splitDim(idx[d], shape[d], chunks[d])
		counts[d] = len(perDim[d])
	}
	var out []chunkPart
	ndarray.ForEach(counts, func(pos []int) {
		cp := chunkPart{coord: make([]int, len(pos)), dims: make([]dimPart, len(pos))}
		for d, i := range pos {
			cp.dims[d] = perDim[d][i]
			cp.coord[d] = perDim[d][i].chunk
		}
		out = append(out, cp)
	})
	return out
}

// chunkExtent returns the shape of the chunk at coord, clipped at the array edge.
func chunkExtent(coord, shape, chunks []int) []int {
	ext := make([]int, len(coord))
	for d, c := range coord {
		ext[d] = chunks[d]
		if rem := shape[d] - c*chunks[d]; rem < ext[d] {
			ext[d] = rem
		}
	}
	return ext
}

func chunkKey(name string, coord []int) []byte {
	parts := make([]string, len(coord))
	for d, c := range coord {
		parts[d] = strconv.Itoa(c)
	}
	return []byte(name + "/c/" + strings.Join(parts, "."))
}

func metaKey(name string) []byte {
	return []byte(name + "/meta")
}
