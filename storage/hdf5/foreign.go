package hdf5

import (
	"fmt"
	"path/filepath"
	"strings"

	h5 "github.com/robert-malhotra/go-hdf5/hdf5"

	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/storage/memory"
	"github.com/janelia-flyem/tomoflow/tomo"
)

// SplitDatasetPath splits an input such as "scan.nxs:/entry1/tomo/data" into
// the file and the dataset path within it.  The dataset path is empty when
// none is given.
func SplitDatasetPath(arg string) (file, dataset string) {
	for _, ext := range []string{".h5:", ".hdf5:", ".nxs:"} {
		if i := strings.Index(strings.ToLower(arg), ext); i >= 0 {
			cut := i + len(ext)
			return arg[:cut-1], arg[cut:]
		}
	}
	return arg, ""
}

// LoadDataset reads the dataset at dsPath of any HDF5 file, for example raw
// detector data from a beamline.  Integer data is converted to float32.  An
// "axes" string attribute in name.units form, if present, labels the
// dimensions.  The array is read-only and is never written back.
func LoadDataset(path, dsPath string) (*Array, error) {
	tlog := tomo.NewTimeLog()
	f, err := h5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %v", path, err)
	}
	defer f.Close()
	ds, err := f.OpenDataset(dsPath)
	if err != nil {
		return nil, fmt.Errorf("no dataset %q in %s: %v", dsPath, path, err)
	}
	if ds.Rank() == 0 {
		return nil, fmt.Errorf("dataset %q in %s is a scalar", dsPath, path)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	meta := storage.Metadata{Name: name, DType: tomo.Float32, Version: Engine.SemVer.String()}
	for _, n := range ds.Shape() {
		meta.Shape = append(meta.Shape, int(n))
	}
	if ds.HasAttr("axes") {
		labels, err := ds.Attr("axes").ReadString()
		if err != nil {
			return nil, fmt.Errorf("axes of %q in %s: %v", dsPath, path, err)
		}
		if len(labels) == len(meta.Shape) {
			if meta.Axes, err = tomo.ParseAxisLabels(labels...); err != nil {
				return nil, err
			}
		} else {
			tomo.Infof("ignoring %d axis labels of %q in %s with rank %d\n", len(labels), dsPath, path, len(meta.Shape))
		}
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	values, err := ds.ReadFloat32()
	if err != nil {
		return nil, fmt.Errorf("reading %q from %s: %v", dsPath, path, err)
	}
	data, err := ndarray.FromData(values, meta.Shape...)
	if err != nil {
		return nil, fmt.Errorf("%q in %s: %v", dsPath, path, err)
	}
	tlog.Debugf("read %q %v from %s", dsPath, meta.Shape, path)
	return &Array{path: path, mem: memory.NewArray(meta, data), readOnly: true}, nil
}
