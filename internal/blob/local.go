package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bitwise74/notes-api/internal/errs"

	"go.uber.org/zap"
)

// Sidecars live in their own directory so no upload name can clash with them.
// Keys made by NewKey start with a digit, dot names are reserved.
const metaDir = ".meta"

type sidecar struct {
	ContentType string            `json:"contentType"`
	Metadata    map[string]string `json:"metadata"`
}

// Local keeps objects as plain files under Root. Object metadata lives in a
// JSON sidecar under Root/.meta.
type Local struct {
	Root    string
	BaseURL string
	now     func() time.Time
}

// NewLocal creates the root directory if it doesn't exist yet
func NewLocal(root, baseURL string) (*Local, error) {
	if err := os.MkdirAll(filepath.Join(root, metaDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory, %w", err)
	}

	zap.L().Info("Local storage is ready", zap.String("root", root))

	return &Local{
		Root:    root,
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		now:     time.Now,
	}, nil
}

func (l *Local) path(key string) (string, error) {
	if key == "" || key != SafeName(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid key %q", key)
	}

	return filepath.Join(l.Root, key), nil
}

func (l *Local) metaPath(key string) string {
	return filepath.Join(l.Root, metaDir, key+".json")
}

func (l *Local) url(key string) string {
	if l.BaseURL == "" {
		return "file://" + filepath.ToSlash(filepath.Join(l.Root, key))
	}

	return l.BaseURL + "/" + url.PathEscape(key)
}

func (l *Local) Upload(ctx context.Context, r io.Reader, name, mimeType string) (*Object, error) {
	now := l.now()
	key := NewKey(now, name)

	p, err := l.path(key)
	if err != nil {
		return nil, errs.Wrap(errs.StorageWrite, "Failed to upload file to storage", err)
	}

	tmp, err := os.CreateTemp(l.Root, ".upload-*")
	if err != nil {
		return nil, errs.Wrap(errs.StorageWrite, "Failed to upload file to storage", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, readerWithContext(ctx, r))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errs.Wrap(errs.StorageWrite, "Failed to upload file to storage", err)
	}

	meta, err := json.Marshal(sidecar{
		ContentType: mimeType,
		Metadata:    Metadata(name, mimeType, now),
	})
	if err != nil {
		return nil, errs.Wrap(errs.StorageWrite, "Failed to upload file to storage", err)
	}

	if err := os.WriteFile(l.metaPath(key), meta, 0o644); err != nil {
		return nil, errs.Wrap(errs.StorageWrite, "Failed to upload file to storage", err)
	}

	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(l.metaPath(key))
		return nil, errs.Wrap(errs.StorageWrite, "Failed to upload file to storage", err)
	}

	return &Object{
		Key:  key,
		URL:  l.url(key),
		Size: size,
	}, nil
}

func (l *Local) Download(ctx context.Context, key string) (io.ReadCloser, *Info, error) {
	info, err := l.Info(ctx, key)
	if err != nil {
		return nil, nil, err
	}

	p, _ := l.path(key)

	f, err := os.Open(p)
	if err != nil {
		return nil, nil, errs.Wrap(errs.StorageRead, "Failed to download file from storage", err)
	}

	return f, info, nil
}

func (l *Local) Delete(_ context.Context, key string) (bool, error) {
	p, err := l.path(key)
	if err != nil {
		return false, err
	}

	for _, f := range []string{p, l.metaPath(key)} {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to delete %s, %w", key, err)
		}
	}

	return true, nil
}

func (l *Local) Info(_ context.Context, key string) (*Info, error) {
	p, err := l.path(key)
	if err != nil {
		return nil, errs.Wrap(errs.StorageRead, "Failed to get file information", err)
	}

	st, err := os.Stat(p)
	if err != nil {
		return nil, errs.Wrap(errs.StorageRead, "Failed to get file information", err)
	}

	info := &Info{
		Key:          key,
		Size:         st.Size(),
		LastModified: st.ModTime(),
		ContentType:  "application/octet-stream",
		Metadata:     map[string]string{},
	}

	b, err := os.ReadFile(l.metaPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return info, nil
		}

		return nil, errs.Wrap(errs.StorageRead, "Failed to get file information", err)
	}

	var sc sidecar
	if err := json.Unmarshal(b, &sc); err != nil {
		return nil, errs.Wrap(errs.StorageRead, "Failed to get file information", err)
	}

	if sc.ContentType != "" {
		info.ContentType = sc.ContentType
	}
	if sc.Metadata != nil {
		info.Metadata = sc.Metadata
	}

	return info, nil
}

func (l *Local) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory, %w", err)
	}

	var out []Info
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		st, err := e.Info()
		if err != nil {
			continue
		}

		out = append(out, Info{
			Key:          name,
			Size:         st.Size(),
			LastModified: st.ModTime(),
		})
	}

	return out, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}

	return c.r.Read(p)
}
