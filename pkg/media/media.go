// Package media stores uploaded and imported logo images below an upload base directory
// and derives thumbnails from them.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrTooLarge        = errors.New("file exceeds the upload size limit")
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrOutsideBase     = errors.New("path escapes the upload base")
)

// ThumbSize bounds both thumbnail dimensions.
const ThumbSize = 256

// MIME mapping to avoid opening files repeatedly
var extMime = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// Stored describes a file written to the store. Paths are slash separated and relative
// to the base so they can be kept in the database.
type Stored struct {
	StorePath   string
	ThumbPath   string
	ContentType string
	Size        int64
}

// Store writes files below base.
type Store struct {
	base    string
	maxSize int64
}

// NewStore creates a store rooted at base. maxSize <= 0 disables the size check.
func NewStore(base string, maxSize int64) *Store {
	return &Store{base: base, maxSize: maxSize}
}

// Base returns the root directory.
func (s *Store) Base() string { return s.base }

// Path resolves rel below the base.
func (s *Store) Path(rel string) (string, error) {
	clean := path.Clean("/" + filepath.ToSlash(rel))
	if clean == "/" {
		return "", ErrOutsideBase
	}
	full := filepath.Join(s.base, filepath.FromSlash(strings.TrimPrefix(clean, "/")))
	if r, err := filepath.Rel(s.base, full); err != nil || strings.HasPrefix(r, "..") {
		return "", ErrOutsideBase
	}
	return full, nil
}

// SaveUpload stores a multipart image under dir with a random name and creates its thumbnail.
func (s *Store) SaveUpload(fh *multipart.FileHeader, dir string) (Stored, error) {
	if s.maxSize > 0 && fh.Size > s.maxSize {
		return Stored{}, ErrTooLarge
	}
	src, err := fh.Open()
	if err != nil {
		return Stored{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(src, head)
	ct := http.DetectContentType(head[:n])
	ext, ok := extForType(ct)
	if !ok {
		return Stored{}, fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}

	rel := path.Join(dir, uuid.NewString()+ext)
	full, err := s.Path(rel)
	if err != nil {
		return Stored{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Stored{}, err
	}
	out, err := os.Create(full)
	if err != nil {
		return Stored{}, err
	}
	size, err := io.Copy(out, io.MultiReader(bytes.NewReader(head[:n]), src))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(full)
		return Stored{}, fmt.Errorf("write upload: %w", err)
	}
	if s.maxSize > 0 && size > s.maxSize {
		_ = os.Remove(full)
		return Stored{}, ErrTooLarge
	}

	thumb, err := s.Thumbnail(rel)
	if err != nil {
		_ = os.Remove(full)
		return Stored{}, err
	}
	return Stored{StorePath: rel, ThumbPath: thumb, ContentType: ct, Size: size}, nil
}

// Import moves the file at src into dir, shrinking it to maxBytes when it is larger, and
// creates its thumbnail. The original name is kept.
func (s *Store) Import(src, dir string, maxBytes int64) (Stored, error) {
	name := filepath.Base(src)
	rel := path.Join(dir, name)
	dst, err := s.Path(rel)
	if err != nil {
		return Stored{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return Stored{}, err
	}
	if err := Compress(src, dst, maxBytes); err != nil {
		return Stored{}, fmt.Errorf("move %s: %w", name, err)
	}
	thumb, err := s.Thumbnail(rel)
	if err != nil {
		return Stored{}, err
	}
	st := Stored{StorePath: rel, ThumbPath: thumb, ContentType: ContentTypeFromExt(name)}
	if fi, err := os.Stat(dst); err == nil {
		st.Size = fi.Size()
	}
	if st.ContentType == "" {
		st.ContentType = SniffContentType(dst)
	}
	return st, nil
}

// Remove deletes stored files, ignoring empty and missing paths.
func (s *Store) Remove(rels ...string) {
	for _, rel := range rels {
		if rel == "" {
			continue
		}
		if full, err := s.Path(rel); err == nil {
			_ = os.Remove(full)
		}
	}
}

// IsSupported reports whether name has an image extension the store can decode.
func IsSupported(name string) bool {
	// ignore generated thumbnails to avoid recursive processing
	if strings.Contains(name, ".thumb.") {
		return false
	}
	return ContentTypeFromExt(name) != ""
}

// ContentTypeFromExt maps a file extension to its MIME type, or "".
func ContentTypeFromExt(name string) string {
	return extMime[strings.ToLower(filepath.Ext(name))]
}

// SniffContentType reads first 512 bytes and returns MIME type.
func SniffContentType(path string) string { // fallback only
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	if n == 0 {
		return ""
	}
	return http.DetectContentType(buf[:n])
}

func extForType(ct string) (string, bool) {
	switch ct {
	case "image/png":
		return ".png", true
	case "image/jpeg":
		return ".jpg", true
	case "image/gif":
		return ".gif", true
	}
	return "", false
}
