/*
	Package hdf5 stores each array as an HDF5 file.  Arrays are staged in memory
	while a plugin writes them and are written to <dir>/<name>.h5 on Close as
	the dataset /entry/data, with one HDF5 dimension per array dimension named
	after its axis label.  Attributes on the dataset record the shape, chunk
	shape, element type, axis labels and patterns so that a later run can
	reopen the array without recomputing them.

	Files of other origin are read with LoadDataset, which takes the path of
	the dataset within the file.
*/
package hdf5

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/util"

	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/pattern"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/storage/memory"
	"github.com/janelia-flyem/tomoflow/tomo"
)

// Engine describes the HDF5 storage engine.
var Engine = storage.NewEngine("hdf5", "HDF5 file per array", "0.2.0")

const (
	groupName   = "entry"
	datasetName = "data"
)

// Store keeps arrays as HDF5 files within a directory.
type Store struct {
	dir string

	mu     sync.Mutex
	arrays map[string]*Array
}

// New returns a store writing into dir, which is created if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("can't make HDF5 output directory %q: %v", dir, err)
	}
	return &Store{dir: dir, arrays: make(map[string]*Array)}, nil
}

func (s *Store) Engine() storage.Engine {
	return Engine
}

// Path returns the file that holds the named array.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".h5")
}

func (s *Store) CreateArray(meta storage.Metadata) (storage.Array, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	meta = meta.Duplicate()
	meta.Chunks = meta.ChunkShape()
	if meta.Version == "" {
		meta.Version = Engine.SemVer.String()
	}
	a := &Array{
		store: s,
		path:  s.Path(meta.Name),
		mem:   memory.NewArray(meta, ndarray.New(meta.Shape...)),
		dirty: true,
	}
	s.mu.Lock()
	s.arrays[meta.Name] = a
	s.mu.Unlock()
	return a, nil
}

// OpenArray returns a staged array or loads it from its file.
func (s *Store) OpenArray(name string) (storage.Array, error) {
	s.mu.Lock()
	if a, found := s.arrays[name]; found && !a.isClosed() {
		s.mu.Unlock()
		return a, nil
	}
	s.mu.Unlock()
	a, err := Load(s.Path(name))
	if err != nil {
		return nil, err
	}
	a.store = s
	s.mu.Lock()
	s.arrays[name] = a
	s.mu.Unlock()
	return a, nil
}

func (s *Store) DeleteArray(name string) error {
	s.mu.Lock()
	delete(s.arrays, name)
	s.mu.Unlock()
	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close writes every array not yet closed.
func (s *Store) Close() error {
	s.mu.Lock()
	arrays := make([]*Array, 0, len(s.arrays))
	for _, a := range s.arrays {
		arrays = append(arrays, a)
	}
	s.mu.Unlock()
	for _, a := range arrays {
		if err := a.Close(); err != nil {
			return err
		}
	}
	return nil
}

// Array is an HDF5-backed array staged in memory.
type Array struct {
	store *Store
	path  string
	mem   *memory.Array

	// readOnly arrays come from files this package did not write.
	readOnly bool

	mu     sync.Mutex
	dirty  bool
	closed bool
}

func (a *Array) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *Array) Metadata() storage.Metadata {
	return a.mem.Metadata()
}

func (a *Array) Read(idx ndarray.Index) (*ndarray.Array, error) {
	return a.mem.Read(idx)
}

func (a *Array) Write(idx ndarray.Index, data *ndarray.Array) error {
	if a.readOnly {
		return fmt.Errorf("array %q read from %s is read-only", a.mem.Metadata().Name, a.path)
	}
	if err := a.mem.Write(idx, data); err != nil {
		return err
	}
	a.mu.Lock()
	a.dirty = true
	a.mu.Unlock()
	return nil
}

// Flush writes the file if the array changed since the last write.
func (a *Array) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed || !a.dirty {
		return nil
	}
	if err := write(a.path, a.mem.Metadata(), a.mem.Data()); err != nil {
		return err
	}
	a.dirty = false
	return nil
}

// Close writes the file if the array changed.  Later calls do nothing.
func (a *Array) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	if a.dirty {
		if err := write(a.path, a.mem.Metadata(), a.mem.Data()); err != nil {
			return err
		}
		a.dirty = false
	}
	a.closed = true
	return a.mem.Close()
}

func int64s(ints []int) []int64 {
	out := make([]int64, len(ints))
	for i, n := range ints {
		out[i] = int64(n)
	}
	return out
}

func encodePattern(p pattern.Pattern) string {
	join := func(dims []int) string {
		s := make([]string, len(dims))
		for i, d := range dims {
			s[i] = strconv.Itoa(d)
		}
		return strings.Join(s, ",")
	}
	return p.Name + ":" + join(p.CoreDims) + ":" + join(p.SliceDims)
}

func decodePattern(s string) (pattern.Pattern, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return pattern.Pattern{}, fmt.Errorf("bad pattern attribute %q", s)
	}
	split := func(field string) ([]int, error) {
		var dims []int
		if field == "" {
			return dims, nil
		}
		for _, f := range strings.Split(field, ",") {
			d, err := strconv.Atoi(f)
			if err != nil {
				return nil, fmt.Errorf("bad pattern attribute %q: %v", s, err)
			}
			dims = append(dims, d)
		}
		return dims, nil
	}
	core, err := split(parts[1])
	if err != nil {
		return pattern.Pattern{}, err
	}
	slice, err := split(parts[2])
	if err != nil {
		return pattern.Pattern{}, err
	}
	return pattern.Pattern{Name: parts[0], CoreDims: core, SliceDims: slice}, nil
}

var validDimName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dimNames names the HDF5 dimensions after the axis labels, falling back to
// dimN for labels that are missing, repeated or not valid names.
func dimNames(meta storage.Metadata) []string {
	names := make([]string, len(meta.Shape))
	used := map[string]bool{datasetName: true}
	for d := range names {
		name := fmt.Sprintf("dim%d", d)
		if d < len(meta.Axes) {
			if n := meta.Axes[d].Name; validDimName.MatchString(n) && !used[n] {
				name = n
			}
		}
		used[name] = true
		names[d] = name
	}
	return names
}

// nested returns data as a slice nested once per dimension of shape, the
// form from which the writer derives the dataspace.
func nested(data []float32, shape []int) any {
	return nestedValue(data, shape).Interface()
}

func nestedValue(data []float32, shape []int) reflect.Value {
	if len(shape) == 1 {
		return reflect.ValueOf(data[:shape[0]:shape[0]])
	}
	t := reflect.TypeOf(float32(0))
	for range shape {
		t = reflect.SliceOf(t)
	}
	inner := tomo.Prod(shape[1:])
	v := reflect.MakeSlice(t, shape[0], shape[0])
	for i := 0; i < shape[0]; i++ {
		v.Index(i).Set(nestedValue(data[i*inner:(i+1)*inner], shape[1:]))
	}
	return v
}

// flatten appends the numeric leaves of a nested slice in row-major order.
func flatten(dst []float32, v reflect.Value) ([]float32, error) {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if f, ok := v.Interface().([]float32); ok {
			return append(dst, f...), nil
		}
		var err error
		for i := 0; i < v.Len(); i++ {
			if dst, err = flatten(dst, v.Index(i)); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case reflect.Float32, reflect.Float64:
		return append(dst, float32(v.Float())), nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return append(dst, float32(v.Int())), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return append(dst, float32(v.Uint())), nil
	case reflect.Interface:
		return flatten(dst, v.Elem())
	default:
		return nil, fmt.Errorf("cannot read %s values as float32", v.Kind())
	}
}

func write(path string, meta storage.Metadata, data *ndarray.Array) error {
	tlog := tomo.NewTimeLog()
	attrs, err := util.NewOrderedMap(nil, nil)
	if err != nil {
		return err
	}
	attrs.Add("shape", int64s(meta.Shape))
	attrs.Add("chunks", int64s(meta.ChunkShape()))
	attrs.Add("dtype", meta.DType.String())
	attrs.Add("version", meta.Version)
	if len(meta.Axes) > 0 {
		attrs.Add("axes", meta.Axes.Strings())
	}
	if len(meta.Patterns) > 0 {
		encoded := make([]string, len(meta.Patterns))
		for i, p := range meta.Patterns {
			encoded[i] = encodePattern(p)
		}
		attrs.Add("patterns", encoded)
	}

	w, err := netcdf.OpenWriter(path, netcdf.KindHDF5)
	if err != nil {
		return fmt.Errorf("creating %s: %v", path, err)
	}
	entry, err := w.CreateGroup(groupName)
	if err != nil {
		w.Close()
		return fmt.Errorf("creating group in %s: %v", path, err)
	}
	v := api.Variable{
		Values:     nested(data.Data(), meta.Shape),
		Dimensions: dimNames(meta),
		Attributes: attrs,
	}
	if err := entry.AddVar(datasetName, v); err != nil {
		w.Close()
		return fmt.Errorf("writing %q to %s: %v", meta.Name, path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing %s: %v", path, err)
	}
	tlog.Debugf("wrote %q %v (%s) to %s", meta.Name, meta.Shape, tomo.Bytes(uint64(4*data.Size())), path)
	return nil
}

// attrInts reads an integer attribute, which comes back as a scalar when it
// has one element.
func attrInts(attrs api.AttributeMap, key string) ([]int, error) {
	val, found := attrs.Get(key)
	if !found {
		return nil, nil
	}
	v := reflect.ValueOf(val)
	if v.Kind() != reflect.Slice {
		v = reflect.Append(reflect.MakeSlice(reflect.SliceOf(v.Type()), 0, 1), v)
	}
	ints := make([]int, v.Len())
	for i := range ints {
		switch e := v.Index(i); e.Kind() {
		case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			ints[i] = int(e.Int())
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			ints[i] = int(e.Uint())
		default:
			return nil, fmt.Errorf("attribute %q holds %T, not integers", key, val)
		}
	}
	return ints, nil
}

func attrStrings(attrs api.AttributeMap, key string) ([]string, error) {
	val, found := attrs.Get(key)
	if !found {
		return nil, nil
	}
	switch s := val.(type) {
	case string:
		return []string{s}, nil
	case []string:
		return s, nil
	default:
		return nil, fmt.Errorf("attribute %q holds %T, not strings", key, val)
	}
}

func attrString(attrs api.AttributeMap, key string) (string, error) {
	strs, err := attrStrings(attrs, key)
	if err != nil || len(strs) == 0 {
		return "", err
	}
	return strs[0], nil
}

// Load reads an array written by this package.  The returned array is staged
// in memory; changes are written back on Close.
func Load(path string) (*Array, error) {
	nc, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %v", path, err)
	}
	defer nc.Close()
	g, err := nc.GetGroup(groupName)
	if err != nil {
		return nil, fmt.Errorf("no %q group in %s: %v", groupName, path, err)
	}
	defer g.Close()
	vg, err := g.GetVarGetter(datasetName)
	if err != nil {
		return nil, fmt.Errorf("no dataset in %s: %v", path, err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	meta := storage.Metadata{Name: name}
	for _, n := range vg.Shape() {
		meta.Shape = append(meta.Shape, int(n))
	}

	attrs := vg.Attributes()
	if shape, err := attrInts(attrs, "shape"); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	} else if shape != nil && !tomo.IntsEqual(shape, meta.Shape) {
		return nil, fmt.Errorf("%s: dataset shape %v disagrees with shape attribute %v", path, meta.Shape, shape)
	}
	if meta.Chunks, err = attrInts(attrs, "chunks"); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	if s, err := attrString(attrs, "dtype"); err != nil {
		return nil, err
	} else if s != "" {
		if meta.DType, err = tomo.ParseDataType(s); err != nil {
			return nil, err
		}
	}
	if meta.Version, err = attrString(attrs, "version"); err != nil {
		return nil, err
	}
	axes, err := attrStrings(attrs, "axes")
	if err != nil {
		return nil, err
	}
	if meta.Axes, err = tomo.ParseAxisLabels(axes...); err != nil {
		return nil, err
	}
	encoded, err := attrStrings(attrs, "patterns")
	if err != nil {
		return nil, err
	}
	for _, s := range encoded {
		p, err := decodePattern(s)
		if err != nil {
			return nil, err
		}
		meta.Patterns = append(meta.Patterns, p)
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}

	raw, err := vg.Values()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %v", path, err)
	}
	values, err := flatten(make([]float32, 0, tomo.Prod(meta.Shape)), reflect.ValueOf(raw))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %v", path, err)
	}
	data, err := ndarray.FromData(values, meta.Shape...)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", path, err)
	}
	return &Array{path: path, mem: memory.NewArray(meta, data)}, nil
}
