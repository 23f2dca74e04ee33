package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/hupe1980/imgrank/blobstore"
	"github.com/hupe1980/imgrank/container"
)

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// openContainer opens a local container file for reading.
func openContainer(ctx context.Context, path string) (*container.Reader, func(), error) {
	b, err := blobstore.NewLocalStore("").Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	r, err := container.NewReader(blobstore.ReaderAt(ctx, b), b.Size())
	if err != nil {
		b.Close()
		return nil, nil, err
	}
	return r, func() { _ = b.Close() }, nil
}

// writeContainer writes f to a local path atomically.
func writeContainer(ctx context.Context, path string, f *container.File, optFns ...func(o *container.WriteOptions)) (int, error) {
	var buf bytes.Buffer
	if err := container.Write(&buf, f, optFns...); err != nil {
		return 0, err
	}
	if err := blobstore.NewLocalStore("").Put(ctx, path, buf.Bytes()); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}
