/*
	Package chunked stores arrays as individually serialized chunks in any
	key-value store.  Chunks are compressed with the configured codec, carry a
	CRC32 checksum and are cached decoded.  Writes that touch part of a chunk
	are read-modify-write operations serialized by a per-chunk lock, so worker
	ranks writing disjoint regions of a shared chunk never lose updates.
*/
package chunked

import (
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/coocood/freecache"
	"github.com/janelia-flyem/tomoflow/ndarray"
	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/tomo"
)

// KV is the minimal key-value interface needed to hold chunks.  Get returns a
// nil value without error for a missing key.
type KV interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	DeletePrefix(prefix []byte) error
	Close() error
}

const numLocks = 256

// Options configure a chunked store.
type Options struct {
	Compression tomo.Compression

	// CacheBytes is the size of the decoded chunk cache.  Zero disables caching.
	CacheBytes int
}

// Store is a storage.Store over a KV.
type Store struct {
	kv     KV
	engine storage.Engine
	opts   Options
	cache  *freecache.Cache
	locks  [numLocks]sync.Mutex

	mu     sync.Mutex
	closed bool
}

// New returns a store holding its chunks in kv.
func New(kv KV, engine storage.Engine, opts Options) *Store {
	s := &Store{kv: kv, engine: engine, opts: opts}
	if opts.CacheBytes > 0 {
		s.cache = freecache.NewCache(opts.CacheBytes)
	}
	return s
}

func (s *Store) Engine() storage.Engine {
	return s.engine
}

func (s *Store) lockFor(key []byte) *sync.Mutex {
	h := fnv.New32a()
	h.Write(key)
	return &s.locks[h.Sum32()%numLocks]
}

// CacheStats returns hit and miss counts of the decoded chunk cache.
func (s *Store) CacheStats() (hits, misses int64) {
	if s.cache == nil {
		return 0, 0
	}
	return s.cache.HitCount(), s.cache.MissCount()
}

// CreateArray records metadata for a new array and removes any old chunks.
func (s *Store) CreateArray(meta storage.Metadata) (storage.Array, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	meta = meta.Duplicate()
	meta.Chunks = meta.ChunkShape()
	if meta.Version == "" {
		meta.Version = s.engine.SemVer.String()
	}
	if err := s.kv.DeletePrefix([]byte(meta.Name + "/")); err != nil {
		return nil, fmt.Errorf("clearing old chunks of %q: %v", meta.Name, err)
	}
	if s.cache != nil {
		s.cache.Clear()
	}
	b, err := meta.MarshalMsg(nil)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Put(metaKey(meta.Name), b); err != nil {
		return nil, fmt.Errorf("storing metadata of %q: %v", meta.Name, err)
	}
	tomo.Debugf("%s: created %q shape %v chunks %v\n", s.engine, meta.Name, meta.Shape, meta.Chunks)
	return &Array{store: s, meta: meta}, nil
}

// OpenArray opens an array from its stored metadata.
func (s *Store) OpenArray(name string) (storage.Array, error) {
	b, err := s.kv.Get(metaKey(name))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("no array %q in %s", name, s.engine)
	}
	var meta storage.Metadata
	if _, err := meta.UnmarshalMsg(b); err != nil {
		return nil, fmt.Errorf("decoding metadata of %q: %v", name, err)
	}
	if !s.engine.Compatible(meta.Version) {
		return nil, fmt.Errorf("array %q written by version %q cannot be read by %s", name, meta.Version, s.engine)
	}
	return &Array{store: s, meta: meta}, nil
}

// DeleteArray removes the array's metadata and chunks.
func (s *Store) DeleteArray(name string) error {
	if s.cache != nil {
		s.cache.Clear()
	}
	return s.kv.DeletePrefix([]byte(name + "/"))
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.kv.Close()
}

// getChunk returns the decoded chunk at key, or zeros if it was never written.
func (s *Store) getChunk(key []byte, extent []int) (*ndarray.Array, error) {
	if s.cache != nil {
		if b, err := s.cache.Get(key); err == nil {
			values, err := tomo.BytesToFloat32(b)
			if err != nil {
				return nil, err
			}
			return ndarray.FromData(values, extent...)
		} else if err != freecache.ErrNotFound {
			return nil, err
		}
	}
	stored, err := s.kv.Get(key)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return ndarray.New(extent...), nil
	}
	raw, _, err := tomo.DeserializeData(stored, true)
	if err != nil {
		return nil, fmt.Errorf("chunk %s: %v", key, err)
	}
	if s.cache != nil {
		s.cache.Set(key, raw, 0)
	}
	values, err := tomo.BytesToFloat32(raw)
	if err != nil {
		return nil, err
	}
	return ndarray.FromData(values, extent...)
}

func (s *Store) putChunk(key []byte, chunk *ndarray.Array) error {
	raw := tomo.Float32ToBytes(chunk.Data())
	stored, err := tomo.SerializeData(raw, s.opts.Compression, tomo.CRC32)
	if err != nil {
		return err
	}
	if err := s.kv.Put(key, stored); err != nil {
		return err
	}
	if s.cache != nil {
		// A chunk too big for the cache is simply not cached.
		if err := s.cache.Set(key, raw, 0); err != nil {
			s.cache.Del(key)
		}
	}
	return nil
}

// Array is an array in a chunked store.
type Array struct {
	store *Store
	meta  storage.Metadata
}

func (a *Array) Metadata() storage.Metadata {
	return a.meta.Duplicate()
}

func (a *Array) Read(idx ndarray.Index) (*ndarray.Array, error) {
	shape := a.meta.Shape
	if err := idx.Check(shape); err != nil {
		return nil, err
	}
	out := ndarray.New(idx.Shape(shape)...)
	for _, part := range overlaps(idx, shape, a.meta.Chunks) {
		key := chunkKey(a.meta.Name, part.coord)
		chunk, err := a.store.getChunk(key, chunkExtent(part.coord, shape, a.meta.Chunks))
		if err != nil {
			return nil, err
		}
		copyPart(part, func(local, region []int) {
			out.Set(chunk.At(local...), region...)
		})
	}
	return out, nil
}

func (a *Array) Write(idx ndarray.Index, data *ndarray.Array) error {
	shape := a.meta.Shape
	if err := storage.CheckWrite(shape, idx, data); err != nil {
		return err
	}
	for _, part := range overlaps(idx, shape, a.meta.Chunks) {
		key := chunkKey(a.meta.Name, part.coord)
		if err := a.writeChunk(key, part, data); err != nil {
			return fmt.Errorf("writing %q chunk %v: %v", a.meta.Name, part.coord, err)
		}
	}
	return nil
}

func (a *Array) writeChunk(key []byte, part chunkPart, data *ndarray.Array) error {
	lock := a.store.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	chunk, err := a.store.getChunk(key, chunkExtent(part.coord, a.meta.Shape, a.meta.Chunks))
	if err != nil {
		return err
	}
	copyPart(part, func(local, region []int) {
		chunk.Set(data.At(region...), local...)
	})
	return a.store.putChunk(key, chunk)
}

// Close is a no-op; chunks are written through on every Write.
func (a *Array) Close() error {
	return nil
}

// copyPart calls fn with matching chunk-local and region positions for every
// element of the part.
func copyPart(part chunkPart, fn func(local, region []int)) {
	lens := make([]int, len(part.dims))
	for d, dp := range part.dims {
		lens[d] = len(dp.local)
	}
	local := make([]int, len(lens))
	region := make([]int, len(lens))
	ndarray.ForEach(lens, func(pos []int) {
		for d, i := range pos {
			local[d] = part.dims[d].local[i]
			region[d] = part.dims[d].region[i]
		}
		fn(local, region)
	})
}
