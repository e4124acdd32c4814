// Package blob stores uploaded binaries (message images, avatars) and
// returns stable URLs for them.
package blob

import (
	"context"
	"encoding/base64"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"
)

// Uploader stores bytes and returns a URL that serves them.
type Uploader interface {
	Upload(ctx context.Context, data []byte) (string, error)
}

// DiskStore writes blobs under Dir and serves them below BaseURL + "/uploads/".
type DiskStore struct {
	Dir     string
	BaseURL string
}

func NewDiskStore(dir, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "blob.NewDiskStore.MkdirAll")
	}
	return &DiskStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/bmp":  ".bmp",
}

func (s *DiskStore) Upload(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("empty upload")
	}

	ext := extensions[http.DetectContentType(data)]
	if ext == "" {
		ext = ".bin"
	}
	name := uuid.NewString() + ext

	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return "", errors.Wrap(err, "blob.Upload.CreateTemp")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", errors.Wrap(err, "blob.Upload.Write")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", errors.Wrap(err, "blob.Upload.Close")
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.Dir, name)); err != nil {
		os.Remove(tmp.Name())
		return "", errors.Wrap(err, "blob.Upload.Rename")
	}

	jww.DEBUG.Printf("[blob] stored %s (%d bytes)", name, len(data))
	return s.BaseURL + "/uploads/" + name, nil
}

// Handler serves stored blobs; mount it with the "/uploads/" prefix stripped.
// Directories and in-progress temp files answer 404, so names cannot be listed.
func (s *DiskStore) Handler() http.Handler {
	return http.FileServer(filesOnly{http.Dir(s.Dir)})
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	if strings.HasPrefix(path.Base(name), ".") {
		return nil, fs.ErrNotExist
	}
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, fs.ErrNotExist
	}
	return file, nil
}

// DecodeDataURL accepts either a "data:<mime>;base64,<payload>" URL or bare base64.
func DecodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.HasSuffix(s[:comma], ";base64") {
			return nil, errors.New("unsupported data URL")
		}
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "invalid base64 payload")
	}
	return data, nil
}
