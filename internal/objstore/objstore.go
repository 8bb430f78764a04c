// Package objstore abstracts the source of raw markdown bytes.
package objstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ngerrors "github.com/notegraph/notegraph/internal/errors"
)

// ObjectInfo describes one stored document.
type ObjectInfo struct {
	Name    string
	ETag    string
	Size    int64
	Updated time.Time
}

// Store lists and fetches raw document bytes.
type Store interface {
	// List returns objects whose name starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Get returns the bytes and etag of one object.
	Get(ctx context.Context, name string) ([]byte, string, error)
}

// FSStore serves markdown files from a directory tree. Object names are
// slash-separated paths relative to the root.
type FSStore struct {
	root string
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates a store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{root: dir}
}

// List walks the tree and returns every markdown file under prefix, sorted
// by name.
func (s *FSStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if !strings.HasPrefix(name, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{
			Name:    name,
			ETag:    etagFor(info),
			Size:    info.Size(),
			Updated: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ngerrors.New(ngerrors.KindNotFound, "corpus directory "+s.root)
		}
		return nil, ngerrors.Wrap(ngerrors.KindDependency, "list corpus", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get reads one object and returns its bytes and etag.
func (s *FSStore) Get(ctx context.Context, name string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	path := filepath.Join(s.root, filepath.FromSlash(name))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", ngerrors.New(ngerrors.KindNotFound, "object "+name)
		}
		return nil, "", ngerrors.Wrap(ngerrors.KindDependency, "read object "+name, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, "", ngerrors.Wrap(ngerrors.KindDependency, "stat object "+name, err)
	}
	return data, etagFor(info), nil
}

// etagFor derives a cheap etag from file metadata.
func etagFor(info fs.FileInfo) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d:%d", info.ModTime().UnixNano(), info.Size())))
	return hex.EncodeToString(sum[:8])
}
