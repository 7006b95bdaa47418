/*
	Package blob keeps chunked arrays in a gocloud.dev blob bucket.  Any bucket
	URL supported by the registered drivers can be used:

		mem://
		file:///path/to/dir
		s3://<bucketname>?region=<region>
		gs://<bucketname>
*/
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/janelia-flyem/tomoflow/storage"
	"github.com/janelia-flyem/tomoflow/storage/chunked"
	"github.com/janelia-flyem/tomoflow/tomo"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// Engine describes the blob storage engine.
var Engine = storage.NewEngine("blob", "gocloud blob bucket chunk store", "0.1.0")

// Bucket is a chunked.KV on a blob bucket.
type Bucket struct {
	ref    string
	bucket *blob.Bucket
}

// OpenBucket returns a Bucket for the given URL.  An optional prefix after the
// bucket name of an s3:// or gs:// reference restricts keys to that path.
func OpenBucket(ctx context.Context, ref string) (*Bucket, error) {
	var prefix string
	for _, scheme := range []string{"s3://", "gs://"} {
		if strings.HasPrefix(ref, scheme) {
			rest := strings.TrimPrefix(ref, scheme)
			query := ""
			if i := strings.Index(rest, "?"); i >= 0 {
				rest, query = rest[:i], rest[i:]
			}
			if parts := strings.SplitN(rest, "/", 2); len(parts) == 2 {
				prefix = strings.TrimSuffix(parts[1], "/") + "/"
				ref = scheme + parts[0] + query
			}
		}
	}
	bucket, err := blob.OpenBucket(ctx, ref)
	if err != nil {
		tomo.Errorf("Can't open bucket reference @ %q: %v\n", ref, err)
		return nil, err
	}
	if prefix != "" {
		bucket = blob.PrefixedBucket(bucket, prefix)
	}
	return &Bucket{ref: ref, bucket: bucket}, nil
}

// NewStore opens a bucket and wraps it as a chunked array store.
func NewStore(ctx context.Context, ref string, opts chunked.Options) (*chunked.Store, error) {
	b, err := OpenBucket(ctx, ref)
	if err != nil {
		return nil, err
	}
	return chunked.New(b, Engine, opts), nil
}

func (b *Bucket) String() string {
	return fmt.Sprintf("bucket @ %s", b.ref)
}

func (b *Bucket) Get(key []byte) ([]byte, error) {
	value, err := b.bucket.ReadAll(context.Background(), string(key))
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, nil
	}
	return value, err
}

func (b *Bucket) Put(key, value []byte) error {
	return b.bucket.WriteAll(context.Background(), string(key), value, nil)
}

func (b *Bucket) Delete(key []byte) error {
	err := b.bucket.Delete(context.Background(), string(key))
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil
	}
	return err
}

// DeletePrefix removes every object whose key starts with prefix.
func (b *Bucket) DeletePrefix(prefix []byte) error {
	ctx := context.Background()
	iter := b.bucket.List(&blob.ListOptions{Prefix: string(prefix)})
	for {
		obj, err := iter.Next(ctx)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := b.Delete([]byte(obj.Key)); err != nil {
			return err
		}
	}
}

func (b *Bucket) Close() error {
	return b.bucket.Close()
}
