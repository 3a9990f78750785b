package logoimport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ultrashots/models"
	"ultrashots/pkg/logger"
	"ultrashots/pkg/media"
	"ultrashots/pkg/testutil"
)

func newImporter(t *testing.T, opts Options) (*Importer, *media.Store) {
	t.Helper()
	db := testutil.NewDB(t)
	store := media.NewStore(t.TempDir(), 5<<20)
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	im := New(db, store, logger.Discard(), opts)
	require.NoError(t, im.Preload(context.Background()))
	return im, store
}

func TestScan_ImportsSupportedFiles(t *testing.T) {
	im, store := newImporter(t, Options{Workers: 2})
	testutil.WritePNG(t, im.opts.Dir, "acme-corp.png", 40, 20)
	testutil.WritePNG(t, im.opts.Dir, "blue_river.png", 20, 20)
	require.NoError(t, os.WriteFile(filepath.Join(im.opts.Dir, "notes.txt"), []byte("x"), 0o644))

	stats, err := im.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Imported: 2}, stats)

	var logos []models.Logo
	require.NoError(t, im.db.Order("file_name").Find(&logos).Error)
	require.Len(t, logos, 2)
	assert.Equal(t, "Acme Corp", logos[0].Name)
	assert.Equal(t, "logos/acme-corp.png", logos[0].StorePath)
	assert.Equal(t, "image/png", logos[0].ContentType)
	assert.Nil(t, logos[0].CustomerID)

	thumb, err := store.Path(logos[0].ThumbPath)
	require.NoError(t, err)
	assert.FileExists(t, thumb)
	assert.NoFileExists(t, filepath.Join(im.opts.Dir, "acme-corp.png"), "imported files leave the scan dir")
	assert.FileExists(t, filepath.Join(im.opts.Dir, "notes.txt"))
}

func TestScan_SkipsKnownFiles(t *testing.T) {
	im, _ := newImporter(t, Options{Workers: 1})
	testutil.WritePNG(t, im.opts.Dir, "acme.png", 10, 10)
	_, err := im.Scan(context.Background())
	require.NoError(t, err)

	testutil.WritePNG(t, im.opts.Dir, "acme.png", 10, 10)
	stats, err := im.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Imported)
	assert.Equal(t, int64(1), stats.Skipped)

	var count int64
	im.db.Model(&models.Logo{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestPreload_CustomerAndCache(t *testing.T) {
	db := testutil.NewDB(t)
	store := media.NewStore(t.TempDir(), 5<<20)

	im := New(db, store, logger.Discard(), Options{Dir: t.TempDir(), CustomerID: 99})
	assert.Error(t, im.Preload(context.Background()))

	c := models.Customer{Name: "Ada", Email: "ada@example.com"}
	require.NoError(t, db.Create(&c).Error)
	require.NoError(t, db.Create(&models.Logo{Name: "Old", FileName: "old.png"}).Error)

	im = New(db, store, logger.Discard(), Options{Dir: t.TempDir(), CustomerID: c.ID})
	require.NoError(t, im.Preload(context.Background()))
	assert.Equal(t, 1, im.Known())

	testutil.WritePNG(t, im.opts.Dir, "new.png", 10, 10)
	_, err := im.Scan(context.Background())
	require.NoError(t, err)

	var logo models.Logo
	require.NoError(t, db.Where("file_name = ?", "new.png").First(&logo).Error)
	require.NotNil(t, logo.CustomerID)
	assert.Equal(t, c.ID, *logo.CustomerID)
}

func TestWatch_ImportsNewFiles(t *testing.T) {
	im, _ := newImporter(t, Options{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- im.Watch(ctx) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	testutil.WritePNG(t, im.opts.Dir, "fresh.png", 12, 12)

	require.Eventually(t, func() bool { return im.Stats().Imported == 1 }, 5*time.Second, 50*time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestListImages_MissingDir(t *testing.T) {
	_, err := ListImages(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorContains(t, err, "does not exist")
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Acme Corp Logo", DisplayName("acme-corp_logo.png"))
	assert.Equal(t, "Blue", DisplayName("blue.jpeg"))
}
