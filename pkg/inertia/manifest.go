package inertia

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"

	"ultrashots/pkg/session"
)

// ManifestEntry is one chunk of a Vite build manifest.
type ManifestEntry struct {
	File    string   `json:"file"`
	Src     string   `json:"src"`
	IsEntry bool     `json:"isEntry"`
	CSS     []string `json:"css"`
	Imports []string `json:"imports"`
}

// Manifest exposes the Vite build manifest. Its md5 is the Inertia asset version.
type Manifest struct {
	path    string
	baseURL string
	log     *slog.Logger

	mu      sync.RWMutex
	entries map[string]ManifestEntry
	version string
}

// LoadManifest reads path. A missing file yields an empty manifest with an empty version,
// so the server runs before assets are built.
func LoadManifest(path, baseURL string, log *slog.Logger) (*Manifest, error) {
	m := &Manifest{path: path, baseURL: baseURL, log: log, entries: map[string]ManifestEntry{}}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads the manifest file.
func (m *Manifest) Reload() error {
	raw, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		m.set(map[string]ManifestEntry{}, "")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read manifest: %w", err)
	}
	entries := map[string]ManifestEntry{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("parse manifest %s: %w", m.path, err)
	}
	sum := md5.Sum(raw)
	m.set(entries, hex.EncodeToString(sum[:]))
	return nil
}

func (m *Manifest) set(entries map[string]ManifestEntry, version string) {
	m.mu.Lock()
	m.entries = entries
	m.version = version
	m.mu.Unlock()
}

func (m *Manifest) Version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Assets returns the URLs of the entry scripts and of their stylesheets.
func (m *Manifest) Assets() (scripts, styles []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, key := range m.entryKeys() {
		e := m.entries[key]
		if strings.HasSuffix(e.File, ".css") {
			styles = append(styles, m.url(e.File))
			continue
		}
		scripts = append(scripts, m.url(e.File))
		for _, css := range m.collectCSS(key, map[string]bool{}) {
			styles = append(styles, m.url(css))
		}
	}
	return scripts, styles
}

// PreloadLinks returns Link header values for the entries, their imports and stylesheets.
func (m *Manifest) PreloadLinks() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	var links []string
	add := func(file string) {
		if seen[file] {
			return
		}
		seen[file] = true
		if strings.HasSuffix(file, ".css") {
			links = append(links, fmt.Sprintf(`<%s>; rel="preload"; as="style"`, m.url(file)))
		} else {
			links = append(links, fmt.Sprintf(`<%s>; rel="modulepreload"`, m.url(file)))
		}
	}
	for _, key := range m.entryKeys() {
		e := m.entries[key]
		add(e.File)
		for _, imp := range e.Imports {
			if ie, ok := m.entries[imp]; ok {
				add(ie.File)
			}
		}
		for _, css := range m.collectCSS(key, map[string]bool{}) {
			add(css)
		}
	}
	return links
}

// entryKeys is sorted for stable output. Callers hold the lock.
func (m *Manifest) entryKeys() []string {
	var keys []string
	for k, e := range m.entries {
		if e.IsEntry {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *Manifest) collectCSS(key string, visited map[string]bool) []string {
	if visited[key] {
		return nil
	}
	visited[key] = true
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	var out []string
	for _, imp := range e.Imports {
		out = append(out, m.collectCSS(imp, visited)...)
	}
	return append(out, e.CSS...)
}

func (m *Manifest) url(file string) string {
	return strings.TrimSuffix(m.baseURL, "/") + "/" + strings.TrimPrefix(file, "/")
}

// Watch reloads the manifest whenever the file changes, until ctx is done. Events are
// debounced because builds rewrite the file several times.
func (m *Manifest) Watch(ctx context.Context) error {
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	m.log.Info("watching asset manifest", "path", m.path)

	name := filepath.Base(m.path)
	var pending time.Time
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) == name && ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				pending = time.Now()
			}
		case <-ticker.C:
			if !pending.IsZero() && time.Since(pending) > 150*time.Millisecond { // stable
				pending = time.Time{}
				before := m.Version()
				if err := m.Reload(); err != nil {
					m.log.Warn("manifest reload failed", "error", err)
					continue
				}
				if v := m.Version(); v != before {
					m.log.Info("asset version changed", "version", v)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn("manifest watch error", "error", err)
		}
	}
}

// AddLinkHeadersForPreloadedAssets adds preload Link headers to HTML page responses.
func AddLinkHeadersForPreloadedAssets(m *Manifest) gin.HandlerFunc {
	return func(c *gin.Context) {
		session.BeforeWrite(c, func() {
			if !strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/html") {
				return
			}
			if links := m.PreloadLinks(); len(links) > 0 {
				c.Writer.Header().Set("Link", strings.Join(links, ", "))
			}
		})
		c.Next()
	}
}
