// Package blob defines the contract of the object store that holds uploaded
// files, plus a filesystem implementation of it.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Metadata keys written next to every object
const (
	MetaOriginalName = "originalname"
	MetaUploadDate   = "uploaddate"
	MetaFileType     = "filetype"
)

type Object struct {
	Key  string
	URL  string
	Size int64
}

type Info struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	Metadata     map[string]string
}

// Store is implemented by every object store backend. Upload, Download and
// Info failures are reported as errs.StorageWrite / errs.StorageRead.
// Deleting a key that doesn't exist is not an error.
type Store interface {
	Upload(ctx context.Context, r io.Reader, name, mimeType string) (*Object, error)
	Download(ctx context.Context, key string) (io.ReadCloser, *Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	Info(ctx context.Context, key string) (*Info, error)
	List(ctx context.Context) ([]Info, error)
}

// NewKey prefixes the original name with the current unix millisecond
// timestamp. Two uploads of the same name within one millisecond collide.
func NewKey(now time.Time, name string) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), SafeName(name))
}

// SafeName drops any directory components so the key never escapes its
// bucket prefix or the local storage root
func SafeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return "file"
	}

	return name
}

// ContentDisposition is stored with the object and sent on download
func ContentDisposition(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

func Metadata(name, mimeType string, now time.Time) map[string]string {
	if mimeType == "" {
		mimeType = "unknown"
	}

	return map[string]string{
		MetaOriginalName: name,
		MetaUploadDate:   now.UTC().Format(time.RFC3339),
		MetaFileType:     mimeType,
	}
}
