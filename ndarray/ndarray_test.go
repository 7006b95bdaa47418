package ndarray

import (
	"testing"

	. "github.com/janelia-flyem/go/gocheck"
)

func Test(t *testing.T) { TestingT(t) }

type ArraySuite struct{}

var _ = Suite(&ArraySuite{})

func (s *ArraySuite) TestSliceLen(c *C) {
	c.Assert(At(4).Len(10), Equals, 1)
	c.Assert(Range(0, 7, 1).Len(10), Equals, 7)
	c.Assert(Range(1, 10, 3).Len(10), Equals, 3)
	c.Assert(Range(1, 10, 3).Last(10), Equals, 7)
	c.Assert(All().Len(135), Equals, 135)
	c.Assert(Range(5, 5, 1).Len(10), Equals, 0)
	c.Assert(Range(0, 8, 2).Positions(8), DeepEquals, []int{0, 2, 4, 6})
}

func (s *ArraySuite) TestIndexString(c *C) {
	idx := Index{At(3), All(), All()}
	c.Assert(idx.String(), Equals, "(3, :, :)")
	idx = Index{Range(0, 8, 1), All()}
	c.Assert(idx.String(), Equals, "(0:8:1, :)")
}

func (s *ArraySuite) TestIndexCheck(c *C) {
	shape := []int{4, 5}
	c.Assert(Index{At(3), All()}.Check(shape), IsNil)
	c.Assert(Index{At(4), All()}.Check(shape), NotNil)
	c.Assert(Index{Range(-1, 2, 1), All()}.Check(shape), NotNil)
	c.Assert(Index{All()}.Check(shape), NotNil)
}

func (s *ArraySuite) TestRegion(c *C) {
	a := Ramp(3, 4, 5)
	r, err := a.Region(Index{At(1), Range(0, 4, 2), All()})
	c.Assert(err, IsNil)
	c.Assert(r.Shape(), DeepEquals, []int{1, 2, 5})
	c.Assert(r.At(0, 0, 0), Equals, float32(20))
	c.Assert(r.At(0, 1, 4), Equals, float32(34))

	b := New(3, 4, 5)
	c.Assert(b.SetRegion(Index{At(1), Range(0, 4, 2), All()}, r), IsNil)
	c.Assert(b.At(1, 2, 4), Equals, float32(34))
	c.Assert(b.At(1, 1, 4), Equals, float32(0))

	c.Assert(b.SetRegion(Index{At(0), All(), All()}, r), NotNil)
}

func (s *ArraySuite) TestEdgePad(c *C) {
	a, err := FromData([]float32{1, 2, 3}, 3)
	c.Assert(err, IsNil)
	p, err := a.EdgePad([][2]int{{2, 1}})
	c.Assert(err, IsNil)
	c.Assert(p.Data(), DeepEquals, []float32{1, 1, 1, 2, 3, 3})

	a2 := Ramp(2, 2)
	p2, err := a2.EdgePad([][2]int{{1, 0}, {0, 1}})
	c.Assert(err, IsNil)
	c.Assert(p2.Shape(), DeepEquals, []int{3, 3})
	c.Assert(p2.Data(), DeepEquals, []float32{0, 1, 1, 0, 1, 1, 2, 3, 3})

	_, err = a2.EdgePad([][2]int{{1, 0}})
	c.Assert(err, NotNil)
}

func (s *ArraySuite) TestFrame(c *C) {
	a := Ramp(2, 3, 4)
	f, err := a.Frame(1, 2)
	c.Assert(err, IsNil)
	c.Assert(f.Shape(), DeepEquals, []int{2, 4})
	c.Assert(f.At(1, 0), Equals, float32(20))

	_, err = a.Frame(3, 0)
	c.Assert(err, NotNil)
}

func (s *ArraySuite) TestForEach(c *C) {
	var visited [][]int
	ForEach([]int{2, 2}, func(pos []int) {
		visited = append(visited, append([]int(nil), pos...))
	})
	c.Assert(visited, DeepEquals, [][]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}})

	count := 0
	ForEach([]int{3, 0}, func(pos []int) { count++ })
	c.Assert(count, Equals, 0)
}

func (s *ArraySuite) TestFromData(c *C) {
	_, err := FromData(make([]float32, 5), 2, 3)
	c.Assert(err, NotNil)
	a, err := FromData(make([]float32, 6), 2, 3)
	c.Assert(err, IsNil)
	b, err := a.Reshape(3, 2)
	c.Assert(err, IsNil)
	b.Set(7, 2, 1)
	c.Assert(a.At(1, 2), Equals, float32(7))
	c.Assert(a.Equal(a.Clone()), Equals, true)
}
