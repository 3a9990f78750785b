// Package logoimport scans a directory of logo images, moves them into the media store and
// creates Logo rows. It can keep watching the directory for new files.
package logoimport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gorm.io/gorm"

	"ultrashots/models"
	"ultrashots/pkg/database"
	"ultrashots/pkg/media"
)

// StoreDir is the media directory imported logos are moved into.
const StoreDir = "logos"

// DefaultMaxBytes is the size budget above which images are downscaled on import.
const DefaultMaxBytes = 1_000_000

const (
	debounceTick   = 250 * time.Millisecond
	debounceStable = 300 * time.Millisecond
)

// Options configures an Importer.
type Options struct {
	Dir        string
	Workers    int
	CustomerID uint
	MaxBytes   int64
}

// Stats counts the outcome of a scan.
type Stats struct {
	Imported int64
	Skipped  int64
	Failed   int64
}

// Importer turns image files into logos. It is safe for concurrent use by its workers.
type Importer struct {
	db    *gorm.DB
	store *media.Store
	log   *slog.Logger
	opts  Options

	mu     sync.RWMutex
	byFile map[string]uint // file name -> logo id

	imported, skipped, failed atomic.Int64
}

func New(db *gorm.DB, store *media.Store, log *slog.Logger, opts Options) *Importer {
	if opts.MaxBytes == 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &Importer{db: db, store: store, log: log, opts: opts, byFile: make(map[string]uint, 256)}
}

// Workers returns the effective pool size.
func (im *Importer) Workers() int {
	if im.opts.Workers <= 0 {
		return runtime.NumCPU()
	}
	return im.opts.Workers
}

// Preload fetches existing logos to minimise per-file queries and checks the customer.
func (im *Importer) Preload(ctx context.Context) error {
	if im.opts.CustomerID != 0 {
		var c models.Customer
		if err := im.db.WithContext(ctx).First(&c, im.opts.CustomerID).Error; err != nil {
			return fmt.Errorf("customer %d: %w", im.opts.CustomerID, err)
		}
	}
	var logos []models.Logo
	if err := im.db.WithContext(ctx).Select("id", "file_name").Find(&logos).Error; err != nil {
		return fmt.Errorf("preload logos: %w", err)
	}
	im.mu.Lock()
	for _, l := range logos {
		im.byFile[l.FileName] = l.ID
	}
	im.mu.Unlock()
	return nil
}

// Known returns how many logos are cached.
func (im *Importer) Known() int {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return len(im.byFile)
}

func (im *Importer) lookup(name string) bool {
	im.mu.RLock()
	defer im.mu.RUnlock()
	_, ok := im.byFile[name]
	return ok
}

func (im *Importer) remember(name string, id uint) {
	im.mu.Lock()
	im.byFile[name] = id
	im.mu.Unlock()
}

// Stats returns the counters accumulated so far.
func (im *Importer) Stats() Stats {
	return Stats{Imported: im.imported.Load(), Skipped: im.skipped.Load(), Failed: im.failed.Load()}
}

// Scan imports every supported file currently in the directory.
func (im *Importer) Scan(ctx context.Context) (Stats, error) {
	files, err := ListImages(im.opts.Dir)
	if err != nil {
		return Stats{}, err
	}
	im.log.Info("scanning logos", "dir", im.opts.Dir, "files", len(files), "workers", im.Workers())

	ch := make(chan string)
	go func() {
		defer close(ch)
		for _, f := range files {
			select {
			case ch <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	im.run(ctx, ch)
	return im.Stats(), ctx.Err()
}

// Watch imports files created in the directory until ctx is cancelled. Events are debounced
// so files still being written are picked up once their size settles.
func (im *Importer) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(im.opts.Dir); err != nil {
		return err
	}
	im.log.Info("watching logos", "dir", im.opts.Dir)

	ch := make(chan string, 256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		im.run(ctx, ch)
	}()

	pending := map[string]time.Time{}
	ticker := time.NewTicker(debounceTick)
	defer ticker.Stop()
	defer func() {
		close(ch)
		<-done
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !media.IsSupported(name) {
				continue
			}
			pending[name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for name, t := range pending {
				if now.Sub(t) > debounceStable {
					delete(pending, name)
					select {
					case ch <- name:
					case <-ctx.Done():
						return nil
					}
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			im.log.Warn("watch error", "error", err)
		}
	}
}

func (im *Importer) run(ctx context.Context, files <-chan string) {
	var wg sync.WaitGroup
	for i := 0; i < im.Workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range files {
				if ctx.Err() != nil {
					continue
				}
				im.processFile(ctx, name)
			}
		}()
	}
	wg.Wait()
}

// processFile executes the idempotent import of a single file.
func (im *Importer) processFile(ctx context.Context, name string) {
	if im.lookup(name) {
		im.skipped.Add(1)
		im.log.Debug("skip logo exists", "file", name)
		return
	}
	src := filepath.Join(im.opts.Dir, name)
	st, err := im.store.Import(src, StoreDir, im.opts.MaxBytes)
	if err != nil {
		im.failed.Add(1)
		im.log.Error("import logo", "file", name, "error", err)
		return
	}

	logo := models.Logo{
		Name:        DisplayName(name),
		FileName:    name,
		StorePath:   st.StorePath,
		ThumbPath:   st.ThumbPath,
		ContentType: st.ContentType,
	}
	if im.opts.CustomerID != 0 {
		id := im.opts.CustomerID
		logo.CustomerID = &id
	}
	if err := im.db.WithContext(ctx).Create(&logo).Error; err != nil {
		if database.IsUniqueConstraintError(err) { // race: someone else created it
			var existing models.Logo
			if err2 := im.db.WithContext(ctx).Where("file_name = ?", name).First(&existing).Error; err2 == nil {
				im.remember(name, existing.ID)
				im.skipped.Add(1)
				return
			}
		}
		im.failed.Add(1)
		im.log.Error("create logo", "file", name, "error", err)
		return
	}
	im.remember(name, logo.ID)
	im.imported.Add(1)
	im.log.Info("new logo", "id", logo.ID, "file", name, "size", st.Size)
}

// ListImages returns the supported image files in dir, sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("directory %s does not exist", dir)
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !media.IsSupported(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// DisplayName turns "acme-corp_logo.png" into "Acme Corp Logo".
func DisplayName(file string) string {
	stem := strings.TrimSuffix(file, filepath.Ext(file))
	words := strings.FieldsFunc(stem, func(r rune) bool { return r == '-' || r == '_' || r == ' ' || r == '.' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
