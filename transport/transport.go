/*
	Package transport selects the storage backend that datasets of a run are
	kept in.  The set of transports is closed and chosen once, when a runner is
	built.
*/
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/storage/badger"
	"github.com/janelia-flyem/tomoflow/storage/blob"
	"github.com/janelia-flyem/tomoflow/storage/chunked"
	"github.com/janelia-flyem/tomoflow/storage/hdf5"
	"github.com/janelia-flyem/tomoflow/storage/memory"
	"github.com/janelia-flyem/tomoflow/tomo"
)

// Kind names a transport.
type Kind uint8

const (
	HDF5 Kind = iota
	Dist
	Blob
	Memory
)

var kindNames = []string{"hdf5", "dist", "blob", "memory"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("unknown transport %d", uint8(k))
}

// ParseKind returns the transport with the given name.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range kindNames {
		if s == name {
			return Kind(i), nil
		}
	}
	return HDF5, fmt.Errorf("unknown transport %q, must be one of %s", s, strings.Join(kindNames, ", "))
}

// chunkedOptions reads "compression" and "cache" settings.
func chunkedOptions(c tomo.Config) (chunked.Options, error) {
	var opts chunked.Options
	s, _, err := c.GetString("compression")
	if err != nil {
		return opts, err
	}
	if opts.Compression, err = tomo.ParseCompression(s); err != nil {
		return opts, err
	}
	n, _, err := c.GetBytes("cache")
	if err != nil {
		return opts, err
	}
	opts.CacheBytes = int(n)
	return opts, nil
}

// Open builds the store for a transport.  Recognized settings:
//
//	hdf5:   path (output directory)
//	dist:   path, inmemory, compression, cache
//	blob:   bucket (URL such as mem://, file:///dir, s3://b, gs://b), compression, cache
//	memory: none
func Open(ctx context.Context, kind Kind, c tomo.Config) (storage.Store, error) {
	if c == nil {
		c = tomo.NewConfig()
	}
	switch kind {
	case HDF5:
		dir, found, err := c.GetString("path")
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%q must be specified for the hdf5 transport", "path")
		}
		s, err := hdf5.New(dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case Dist:
		cfg, err := badger.ParseConfig(c)
		if err != nil {
			return nil, err
		}
		opts, err := chunkedOptions(c)
		if err != nil {
			return nil, err
		}
		return badger.NewStore(cfg, opts)
	case Blob:
		ref, found, err := c.GetString("bucket")
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%q must be specified for the blob transport", "bucket")
		}
		opts, err := chunkedOptions(c)
		if err != nil {
			return nil, err
		}
		return blob.NewStore(ctx, ref, opts)
	case Memory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported transport %s", kind)
	}
}
