package chunked

import (
	"strings"
	"sync"
	"testing"

	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/storage/storagetest"
	"github.com/janelia-flyem/tomoflow/tomo"
)

type mapKV struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
}

func newMapKV() *mapKV {
	return &mapKV{data: make(map[string][]byte)}
}

func (kv *mapKV) Get(key []byte) ([]byte, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.data[string(key)], nil
}

func (kv *mapKV) Put(key, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.data[string(key)] = append([]byte(nil), value...)
	kv.puts++
	return nil
}

func (kv *mapKV) Delete(key []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, string(key))
	return nil
}

func (kv *mapKV) DeletePrefix(prefix []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	for k := range kv.data {
		if strings.HasPrefix(k, string(prefix)) {
			delete(kv.data, k)
		}
	}
	return nil
}

func (kv *mapKV) Close() error { return nil }

var testEngine = storage.NewEngine("map", "map chunk store", "0.1.0")

func TestConformance(t *testing.T) {
	for _, opts := range []Options{
		{Compression: tomo.Uncompressed},
		{Compression: tomo.Snappy, CacheBytes: 1 << 20},
		{Compression: tomo.Zstd, CacheBytes: 1 << 20},
	} {
		s := New(newMapKV(), testEngine, opts)
		storagetest.Check(t, s)
		if err := s.Close(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestChunkLayout(t *testing.T) {
	kv := newMapKV()
	s := New(kv, testEngine, Options{Compression: tomo.Snappy})
	a, err := s.CreateArray(storagetest.Metadata("layout", []int{4, 6, 6}, []int{2, 3, 6}))
	if err != nil {
		t.Fatal(err)
	}
	frame := ndarray.New(1, 6, 6)
	frame.Fill(2)
	if err := a.Write(ndarray.Index{ndarray.At(1), ndarray.All(), ndarray.All()}, frame); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"layout/meta", "layout/c/0.0.0", "layout/c/0.1.0"} {
		if _, found := kv.data[key]; !found {
			t.Errorf("expected key %q", key)
		}
	}
	if _, found := kv.data["layout/c/1.0.0"]; found {
		t.Errorf("untouched chunk was written")
	}
	got, err := a.Read(ndarray.Index{ndarray.Range(0, 4, 1), ndarray.At(5), ndarray.At(0)})
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{0, 2, 0, 0}
	for i := range want {
		if got.Data()[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got.Data())
		}
	}
}

func TestCorruptChunk(t *testing.T) {
	kv := newMapKV()
	s := New(kv, testEngine, Options{Compression: tomo.Uncompressed})
	a, err := s.CreateArray(storagetest.Metadata("corrupt", []int{2, 2, 2}, nil))
	if err != nil {
		t.Fatal(err)
	}
	whole := ndarray.Index{ndarray.All(), ndarray.All(), ndarray.All()}
	if err := a.Write(whole, ndarray.Ramp(2, 2, 2)); err != nil {
		t.Fatal(err)
	}
	b := kv.data["corrupt/c/0.0.0"]
	b[len(b)-1] ^= 0x10
	if _, err := a.Read(whole); err == nil {
		t.Errorf("expected checksum error")
	}
}

func TestIncompatibleVersion(t *testing.T) {
	kv := newMapKV()
	s := New(kv, testEngine, Options{})
	meta := storagetest.Metadata("future", []int{2, 2, 2}, nil)
	meta.Version = "3.0.0"
	if _, err := s.CreateArray(meta); err != nil {
		t.Fatal(err)
	}
	if _, err := s.OpenArray("future"); err == nil {
		t.Errorf("expected version error")
	}
}

func TestCacheUsed(t *testing.T) {
	s := New(newMapKV(), testEngine, Options{Compression: tomo.Zstd, CacheBytes: 1 << 20})
	a, err := s.CreateArray(storagetest.Metadata("cached", []int{2, 3, 4}, nil))
	if err != nil {
		t.Fatal(err)
	}
	whole := ndarray.Index{ndarray.All(), ndarray.All(), ndarray.All()}
	if err := a.Write(whole, ndarray.Ramp(2, 3, 4)); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Read(whole); err != nil {
		t.Fatal(err)
	}
	if hits, _ := s.CacheStats(); hits == 0 {
		t.Errorf("expected a cache hit")
	}
}
