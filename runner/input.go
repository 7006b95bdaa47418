package runner

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/janelia-flyem/tomoflow/dataset"
	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/slicing"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/storage/hdf5"
	"github.com/janelia-flyem/tomoflow/tomo"
)

// InputName is the name given to the dataset loaded from the command line.
const InputName = "tomo"

// SyntheticPrefix marks an input given as a shape rather than a file.
const SyntheticPrefix = "synthetic:"

// ParseShape parses a shape such as "91x135x160".
func ParseShape(s string) ([]int, error) {
	parts := strings.Split(strings.TrimSpace(s), "x")
	shape := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("bad shape %q: extents must be positive integers", s)
		}
		shape[i] = n
	}
	return shape, nil
}

var tomoAxes = []string{"rotation_angle.degrees", "detector_y.pixel", "detector_x.pixel"}

// Synthetic allocates a raw tomography dataset in the store and fills it with
// a ramp, each element holding its flat index.  The first three dimensions
// are rotation, detector y and detector x.
func Synthetic(s storage.Store, name string, shape []int) (*dataset.Dataset, error) {
	if len(shape) < 3 {
		return nil, fmt.Errorf("synthetic tomography data needs at least 3 dims, got %v", shape)
	}
	labels := append([]string(nil), tomoAxes...)
	for d := 3; d < len(shape); d++ {
		labels = append(labels, fmt.Sprintf("dim%d", d))
	}
	axes, err := tomo.ParseAxisLabels(labels...)
	if err != nil {
		return nil, err
	}
	reg := pattern.NewRegistry(len(shape))
	if err := reg.AddTomoPatterns(0, 1, 2); err != nil {
		return nil, err
	}
	ds, err := dataset.New(name, shape, axes, reg, tomo.Float32)
	if err != nil {
		return nil, err
	}
	if err := ds.Allocate(s); err != nil {
		return nil, err
	}
	all := make(ndarray.Index, len(shape))
	for d := range all {
		all[d] = ndarray.All()
	}
	if err := ds.Write(all, ndarray.Ramp(shape...)); err != nil {
		return nil, multierr.Append(err, ds.Complete())
	}
	return ds, nil
}

// LoadInput opens the pipeline input named by arg: an HDF5 file written by
// the hdf5 store, a dataset within any HDF5 file given as file:/path, or
// "synthetic:" followed by a shape.  The dataset is called InputName.
func LoadInput(s storage.Store, arg string) (*dataset.Dataset, error) {
	if strings.HasPrefix(arg, SyntheticPrefix) {
		shape, err := ParseShape(strings.TrimPrefix(arg, SyntheticPrefix))
		if err != nil {
			return nil, err
		}
		return Synthetic(s, InputName, shape)
	}
	file, dsPath := hdf5.SplitDatasetPath(arg)
	switch strings.ToLower(filepath.Ext(file)) {
	case ".h5", ".hdf5", ".nxs":
	default:
		return nil, fmt.Errorf("unsupported input %q: give an HDF5 file or %s<shape>", arg, SyntheticPrefix)
	}
	var array *hdf5.Array
	var err error
	if dsPath != "" {
		array, err = hdf5.LoadDataset(file, dsPath)
	} else {
		array, err = hdf5.Load(file)
	}
	if err != nil {
		return nil, err
	}
	meta := array.Metadata()
	reg, err := meta.Registry()
	if err != nil {
		array.Close()
		return nil, err
	}
	if reg.Len() == 0 && len(meta.Shape) >= 3 {
		if err := reg.AddTomoPatterns(0, 1, 2); err != nil {
			array.Close()
			return nil, err
		}
	}
	ds, err := dataset.New(InputName, meta.Shape, meta.Axes, reg, meta.DType)
	if err != nil {
		array.Close()
		return nil, err
	}
	if err := ds.Populate(array); err != nil {
		array.Close()
		return nil, err
	}
	tomo.Infof("Loaded input %s: %s\n", arg, ds)
	return ds, nil
}

// ApplyPreview restricts ds to the region given by one "start:stop:step"
// entry per dimension.  No entries leave ds whole.
func ApplyPreview(ds *dataset.Dataset, entries []string) error {
	pv, err := slicing.ParsePreview(entries, ds.Shape())
	if err != nil {
		return fmt.Errorf("dataset %q: %v", ds.Name(), err)
	}
	if err := ds.SetPreview(pv); err != nil {
		return err
	}
	if pv != nil {
		tomo.Infof("Previewing %s as %v\n", ds, ds.PreviewShape())
	}
	return nil
}
