package hdf5

import (
	"os"
	"reflect"
	"testing"

	"github.com/batchatco/go-native-netcdf/netcdf"

	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/storage/storagetest"
	"github.com/janelia-flyem/tomoflow/tomo"
)

func TestConformance(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	storagetest.Check(t, s)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestFileWrittenOnClose(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.CreateArray(storagetest.Metadata("tomo", []int{4, 3, 2}, []int{2, 3, 2}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(s.Path("tomo")); !os.IsNotExist(err) {
		t.Fatalf("file should not exist before Close")
	}
	whole := ndarray.Index{ndarray.All(), ndarray.All(), ndarray.All()}
	if err := a.Write(whole, ndarray.Ramp(4, 3, 2)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(s.Path("tomo"))
	if err != nil {
		t.Fatal(err)
	}
	got, err := loaded.Read(whole)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(ndarray.Ramp(4, 3, 2)) {
		t.Errorf("loaded data differs")
	}
	meta := loaded.Metadata()
	reg, err := meta.Registry()
	if err != nil {
		t.Fatal(err)
	}
	p, err := reg.Get(pattern.Sinogram)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.CoreDims) != 2 || p.CoreDims[0] != 0 || p.SliceDims[0] != 1 {
		t.Errorf("unexpected sinogram pattern %v", p)
	}
}

func TestPatternAttribute(t *testing.T) {
	p := pattern.Pattern{Name: "VOLUME_3D", CoreDims: []int{0, 1, 2}}
	got, err := decodePattern(encodePattern(p))
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != p.Name || len(got.CoreDims) != 3 || len(got.SliceDims) != 0 {
		t.Errorf("unexpected decoded pattern %v", got)
	}
	if _, err := decodePattern("PROJECTION:1,x:0"); err == nil {
		t.Errorf("expected error for bad dims")
	}
}

func TestFileKeepsArrayRank(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	a, err := s.CreateArray(storagetest.Metadata("vol", []int{4, 5, 6}, []int{4, 1, 6}))
	if err != nil {
		t.Fatal(err)
	}
	whole := ndarray.Index{ndarray.All(), ndarray.All(), ndarray.All()}
	if err := a.Write(whole, ndarray.Ramp(4, 5, 6)); err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	nc, err := netcdf.Open(s.Path("vol"))
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	g, err := nc.GetGroup(groupName)
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()
	vg, err := g.GetVarGetter(datasetName)
	if err != nil {
		t.Fatal(err)
	}
	if got := vg.Shape(); !reflect.DeepEqual(got, []int64{4, 5, 6}) {
		t.Fatalf("on-disk dataspace %v for shape [4 5 6]", got)
	}
	if got := vg.Dimensions(); !reflect.DeepEqual(got, []string{"rotation_angle", "detector_y", "detector_x"}) {
		t.Errorf("unexpected dimension names %v", got)
	}
	chunks, err := attrInts(vg.Attributes(), "chunks")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(chunks, []int{4, 1, 6}) {
		t.Errorf("expected chunks attribute [4 1 6], got %v", chunks)
	}
	slab, err := vg.GetSliceMD([]int64{1, 2, 0}, []int64{2, 3, 6})
	if err != nil {
		t.Fatal(err)
	}
	values, err := flatten(nil, reflect.ValueOf(slab))
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 6 || values[0] != 42 || values[5] != 47 {
		t.Errorf("expected row [42..47] at (1, 2, :), got %v", values)
	}
}

func TestDimNames(t *testing.T) {
	axes, err := tomo.ParseAxisLabels("x.pixel", "x.pixel", "data", "bad name")
	if err != nil {
		t.Fatal(err)
	}
	meta := storage.Metadata{Shape: []int{2, 2, 2, 2}, Axes: axes}
	if got := dimNames(meta); !reflect.DeepEqual(got, []string{"x", "dim1", "dim2", "dim3"}) {
		t.Errorf("unexpected dimension names %v", got)
	}
	meta.Axes = nil
	if got := dimNames(meta); !reflect.DeepEqual(got, []string{"dim0", "dim1", "dim2", "dim3"}) {
		t.Errorf("unexpected default dimension names %v", got)
	}
}

func TestNestedFlatten(t *testing.T) {
	data := ndarray.Ramp(2, 3, 4).Data()
	v := nested(data, []int{2, 3, 4})
	cube, ok := v.([][][]float32)
	if !ok {
		t.Fatalf("expected [][][]float32, got %T", v)
	}
	if cube[1][2][3] != 23 {
		t.Errorf("expected 23 at (1, 2, 3), got %v", cube[1][2][3])
	}
	back, err := flatten(nil, reflect.ValueOf(v))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(back, data) {
		t.Errorf("flattened data differs: %v", back)
	}
}
