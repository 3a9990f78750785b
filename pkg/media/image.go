package media

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Thumbnail writes a PNG fitting ThumbSize x ThumbSize next to rel, as
// "<dir>/thumbs/<stem>.thumb.png", and returns its relative path.
func (s *Store) Thumbnail(rel string) (string, error) {
	full, err := s.Path(rel)
	if err != nil {
		return "", err
	}
	img, err := imaging.Open(full)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}
	stem := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	thumbRel := path.Join(path.Dir(rel), "thumbs", stem+".thumb.png")
	thumbFull, err := s.Path(thumbRel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(thumbFull), 0o755); err != nil {
		return "", err
	}
	if err := imaging.Save(imaging.Fit(img, ThumbSize, ThumbSize, imaging.Lanczos), thumbFull); err != nil {
		return "", fmt.Errorf("save thumbnail: %w", err)
	}
	return thumbRel, nil
}

// Placeholder writes a solid-colour square PNG at rel plus its thumbnail. The colour is
// derived from seed so repeated runs produce identical files.
func (s *Store) Placeholder(rel string, seed int) (Stored, error) {
	full, err := s.Path(rel)
	if err != nil {
		return Stored{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Stored{}, err
	}
	c := color.NRGBA{R: uint8(40 + seed*53%180), G: uint8(40 + seed*97%180), B: uint8(40 + seed*29%180), A: 255}
	if err := imaging.Save(imaging.New(512, 512, c), full); err != nil {
		return Stored{}, fmt.Errorf("save placeholder: %w", err)
	}
	thumb, err := s.Thumbnail(rel)
	if err != nil {
		return Stored{}, err
	}
	st := Stored{StorePath: rel, ThumbPath: thumb, ContentType: "image/png"}
	if fi, err := os.Stat(full); err == nil {
		st.Size = fi.Size()
	}
	return st, nil
}

// Compress moves src to dst. Files above maxBytes are downscaled first; maxBytes <= 0
// only moves. It attempts an atomic rename and falls back to copy+remove when necessary.
func Compress(src, dst string, maxBytes int64) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	// Fast path: already small enough -> attempt rename/copy
	if maxBytes <= 0 || fi.Size() <= maxBytes {
		return move(src, dst)
	}
	img, err := imaging.Open(src)
	if err != nil { // fallback to raw move if cannot decode
		return move(src, dst)
	}
	// Estimate scale factor based on sqrt(max/current) (size roughly scales with area)
	scale := math.Sqrt(float64(maxBytes) / float64(fi.Size()))
	if scale > 0.95 {
		scale = 0.95
	}
	if scale < 0.1 { // avoid absurd downscale
		scale = 0.1
	}
	w := img.Bounds().Dx()
	h := img.Bounds().Dy()
	newW := int(math.Max(1, math.Round(float64(w)*scale)))
	newH := int(math.Max(1, math.Round(float64(h)*scale)))
	img = imaging.Resize(img, newW, newH, imaging.Lanczos)

	if err := imaging.Save(img, dst); err != nil {
		return move(src, dst)
	}
	_ = os.Remove(src)
	// If still > maxBytes, try one more uniform 80% scale pass
	if fi2, err := os.Stat(dst); err == nil && fi2.Size() > maxBytes {
		if img2, err := imaging.Open(dst); err == nil {
			img2 = imaging.Resize(img2, int(float64(img2.Bounds().Dx())*0.8), 0, imaging.Lanczos)
			_ = imaging.Save(img2, dst)
		}
	}
	return nil
}

func move(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyRemove(src, dst)
}

func copyRemove(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
