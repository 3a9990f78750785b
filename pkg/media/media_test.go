package media

import (
	"bytes"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ultrashots/pkg/testutil"
)

// fileHeader builds a parsed multipart file header carrying content.
func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("logo", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	form, err := multipart.NewReader(&body, mw.Boundary()).ReadForm(10 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["logo"][0]
}

func TestSaveUpload(t *testing.T) {
	src := testutil.WritePNG(t, t.TempDir(), "logo.png", 640, 320)
	content, err := os.ReadFile(src)
	require.NoError(t, err)

	store := NewStore(t.TempDir(), 5<<20)
	st, err := store.SaveUpload(fileHeader(t, "logo.png", content), "logos")
	require.NoError(t, err)

	assert.Equal(t, "image/png", st.ContentType)
	assert.Equal(t, int64(len(content)), st.Size)
	assert.Regexp(t, `^logos/[0-9a-f-]{36}\.png$`, st.StorePath)
	assert.Regexp(t, `^logos/thumbs/[0-9a-f-]{36}\.thumb\.png$`, st.ThumbPath)

	thumbFull, err := store.Path(st.ThumbPath)
	require.NoError(t, err)
	thumb, err := imaging.Open(thumbFull)
	require.NoError(t, err)
	assert.Equal(t, ThumbSize, thumb.Bounds().Dx())
	assert.Equal(t, ThumbSize/2, thumb.Bounds().Dy())

	store.Remove(st.StorePath, st.ThumbPath, "")
	full, _ := store.Path(st.StorePath)
	assert.NoFileExists(t, full)
}

func TestSaveUpload_Rejects(t *testing.T) {
	store := NewStore(t.TempDir(), 1024)

	_, err := store.SaveUpload(fileHeader(t, "notes.txt", []byte("plain text, not an image")), "logos")
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = store.SaveUpload(fileHeader(t, "big.png", bytes.Repeat([]byte{0x89}, 4096)), "logos")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestPath_RejectsTraversal(t *testing.T) {
	store := NewStore(t.TempDir(), 0)
	p, err := store.Path("../../etc/passwd")
	require.NoError(t, err, "cleaned paths stay below the base")
	assert.Equal(t, filepath.Join(store.Base(), "etc", "passwd"), p)

	_, err = store.Path("/")
	assert.ErrorIs(t, err, ErrOutsideBase)
}

func TestImport_CompressesLargeFiles(t *testing.T) {
	inbox := t.TempDir()
	src := testutil.WritePNG(t, inbox, "huge.png", 1200, 1200)
	fi, err := os.Stat(src)
	require.NoError(t, err)

	store := NewStore(t.TempDir(), 0)
	st, err := store.Import(src, "logos", fi.Size()/2)
	require.NoError(t, err)

	assert.NoFileExists(t, src)
	assert.Equal(t, "logos/huge.png", st.StorePath)
	assert.Equal(t, "image/png", st.ContentType)

	full, err := store.Path(st.StorePath)
	require.NoError(t, err)
	img, err := imaging.Open(full)
	require.NoError(t, err)
	assert.Less(t, img.Bounds().Dx(), 1200)
}

func TestPlaceholder_Deterministic(t *testing.T) {
	store := NewStore(t.TempDir(), 0)
	a, err := store.Placeholder("logos/a.png", 7)
	require.NoError(t, err)
	b, err := store.Placeholder("logos/b.png", 7)
	require.NoError(t, err)

	pa, _ := store.Path(a.StorePath)
	pb, _ := store.Path(b.StorePath)
	ba, err := os.ReadFile(pa)
	require.NoError(t, err)
	bb, err := os.ReadFile(pb)
	require.NoError(t, err)
	assert.Equal(t, ba, bb)
	assert.NotEmpty(t, a.ThumbPath)
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("logo.PNG"))
	assert.True(t, IsSupported("photo.jpeg"))
	assert.False(t, IsSupported("logo.thumb.png"))
	assert.False(t, IsSupported("readme.txt"))
}
