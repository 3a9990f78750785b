// Package session provides cookie based sessions with flash data, cookie encryption and
// CSRF protection as gin middleware.
package session

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"ultrashots/pkg/config"
)

const (
	tokenKey       = "_token"
	flashOldKey    = "_flash.old"
	flashNewKey    = "_flash.new"
	previousURLKey = "_previous.url"
	// IntendedURLKey holds the page a guest asked for before being sent to login.
	IntendedURLKey = "url.intended"

	contextKey = "session"
)

// Session is the data of one visitor. It is not safe for concurrent use; each request
// gets its own copy.
type Session struct {
	id    string
	oldID string
	data  map[string]any
}

func newSession(id string, data map[string]any) *Session {
	if data == nil {
		data = make(map[string]any)
	}
	return &Session{id: id, data: data}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Get(key string) any { return s.data[key] }

func (s *Session) Has(key string) bool {
	_, ok := s.data[key]
	return ok
}

func (s *Session) GetString(key string) string {
	v, _ := s.data[key].(string)
	return v
}

// GetUint reads integer values, including those decoded from JSON.
func (s *Session) GetUint(key string) (uint, bool) {
	switch v := s.data[key].(type) {
	case uint:
		return v, true
	case int:
		return uint(v), v >= 0
	case float64:
		return uint(v), v >= 0
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		return uint(n), err == nil
	}
	return 0, false
}

func (s *Session) Put(key string, value any) { s.data[key] = value }

func (s *Session) Forget(keys ...string) {
	for _, k := range keys {
		delete(s.data, k)
	}
}

// Pull returns the value and removes it.
func (s *Session) Pull(key string) any {
	v := s.data[key]
	delete(s.data, key)
	return v
}

// Flash stores a value that is available during the next request only.
func (s *Session) Flash(key string, value any) {
	s.Put(key, value)
	s.data[flashNewKey] = appendUnique(s.list(flashNewKey), key)
	s.data[flashOldKey] = remove(s.list(flashOldKey), key)
}

// Reflash keeps the current flash data for one more request.
func (s *Session) Reflash() {
	keys := s.list(flashNewKey)
	for _, k := range s.list(flashOldKey) {
		keys = appendUnique(keys, k)
	}
	s.data[flashNewKey] = keys
	s.data[flashOldKey] = []string{}
}

// ageFlash drops the data flashed for the previous request and marks the current flash
// data as old.
func (s *Session) ageFlash() {
	s.Forget(s.list(flashOldKey)...)
	s.data[flashOldKey] = s.list(flashNewKey)
	s.data[flashNewKey] = []string{}
}

// Token returns the CSRF token, creating one when missing.
func (s *Session) Token() string {
	if t := s.GetString(tokenKey); t != "" {
		return t
	}
	s.RegenerateToken()
	return s.GetString(tokenKey)
}

func (s *Session) RegenerateToken() { s.data[tokenKey] = randomString(40) }

// Regenerate moves the data to a new id. The old id is destroyed on save.
func (s *Session) Regenerate() {
	if s.oldID == "" {
		s.oldID = s.id
	}
	s.id = uuid.NewString()
}

// Invalidate clears all data and issues a new id and CSRF token.
func (s *Session) Invalidate() {
	s.data = make(map[string]any)
	s.Regenerate()
	s.RegenerateToken()
}

func (s *Session) PreviousURL() string { return s.GetString(previousURLKey) }

func (s *Session) list(key string) []string {
	switch v := s.data[key].(type) {
	case []string:
		return slices.Clone(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if str, ok := x.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Manager loads and saves sessions and writes the session cookie.
type Manager struct {
	store    Store
	cookie   string
	lifetime time.Duration
	secure   bool
	log      *slog.Logger
}

func NewManager(store Store, c config.SessionConfig, log *slog.Logger) *Manager {
	return &Manager{store: store, cookie: c.Cookie, lifetime: c.Lifetime, secure: c.Secure, log: log}
}

func (m *Manager) CookieName() string      { return m.cookie }
func (m *Manager) Lifetime() time.Duration { return m.lifetime }
func (m *Manager) Store() Store            { return m.store }

// Load returns the session for id, or a fresh one when id is unknown or malformed.
func (m *Manager) Load(ctx context.Context, id string) *Session {
	if _, err := uuid.Parse(id); err != nil {
		return newSession(uuid.NewString(), nil)
	}
	data, err := m.store.Load(ctx, id)
	if err != nil {
		m.log.Error("session load failed", "error", err)
		return newSession(uuid.NewString(), nil)
	}
	return newSession(id, data)
}

// Save ages flash data and persists the session.
func (m *Manager) Save(ctx context.Context, s *Session) error {
	s.ageFlash()
	if s.oldID != "" {
		if err := m.store.Destroy(ctx, s.oldID); err != nil {
			return err
		}
		s.oldID = ""
	}
	return m.store.Save(ctx, s.id, s.data, m.lifetime)
}

func (m *Manager) cookieFor(s *Session) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookie,
		Value:    s.id,
		Path:     "/",
		MaxAge:   int(m.lifetime.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// From returns the session started for the request, or nil.
func From(c *gin.Context) *Session {
	if v, ok := c.Get(contextKey); ok {
		if s, ok := v.(*Session); ok {
			return s
		}
	}
	return nil
}

const alphanum = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomString(n int) string {
	b := make([]byte, n)
	limit := big.NewInt(int64(len(alphanum)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(err)
		}
		b[i] = alphanum[idx.Int64()]
	}
	return string(b)
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

func remove(list []string, v string) []string {
	return slices.DeleteFunc(list, func(x string) bool { return x == v })
}
