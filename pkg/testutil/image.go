package testutil

import (
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// WritePNG creates a solid w x h PNG named name inside dir and returns its path.
func WritePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()

	img := imaging.New(w, h, color.NRGBA{R: 32, G: 96, B: 160, A: 255})
	path := filepath.Join(dir, name)
	require.NoError(t, imaging.Save(img, path))
	return path
}
