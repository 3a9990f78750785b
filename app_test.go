package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"ultrashots/models"
	"ultrashots/pkg/accounts"
	"ultrashots/pkg/config"
	"ultrashots/pkg/database"
	"ultrashots/pkg/logger"
	"ultrashots/pkg/seed"
	"ultrashots/pkg/session"
	"ultrashots/pkg/testutil"
)

const testPassword = "secret-password"

type testApp struct {
	cfg    *config.Config
	db     *gorm.DB
	server *httptest.Server
	client *http.Client
}

type page struct {
	Component string         `json:"component"`
	Props     map[string]any `json:"props"`
	URL       string         `json:"url"`
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		App:     config.AppConfig{Name: "Ultrashots", Env: "testing", URL: "http://localhost", Key: "test-app-key"},
		Session: config.SessionConfig{Driver: config.SessionMemory, Cookie: "ultrashots_session", Lifetime: time.Hour},
		JWT:     config.JWTConfig{Secret: "test-secret", AccessTTL: 15 * time.Minute, RefreshTTL: 24 * time.Hour},
		Assets:  config.AssetsConfig{Manifest: filepath.Join(t.TempDir(), "manifest.json"), BaseURL: "/build/"},
		Uploads: config.UploadsConfig{Base: t.TempDir(), MaxSize: 1 << 20},
	}
}

// newTestApp serves the application over a SQLite database seeded with roles only.
// opts adjust the dependencies before the router is built.
func newTestApp(t *testing.T, opts ...func(*Deps)) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	runner, err := seed.NewRunner(db, seed.WithOutput(io.Discard), seed.NoColor(), seed.WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	require.NoError(t, runner.Only(context.Background(), seed.RolesAndPermissions))

	cfg := testConfig(t)
	deps := Deps{
		Config:     cfg,
		Log:        logger.Discard(),
		DB:         db,
		Sessions:   session.NewMemoryStore(),
		BcryptCost: bcrypt.MinCost,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	r, err := Configure(deps)
	require.NoError(t, err)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testApp{cfg: cfg, db: db, server: srv, client: client}
}

func (h *testApp) user(t *testing.T, email, role string) *models.User {
	t.Helper()
	svc := accounts.NewService(h.db, accounts.WithBcryptCost(bcrypt.MinCost))
	u, err := svc.Register(context.Background(), strings.Split(email, "@")[0], email, testPassword, role)
	require.NoError(t, err)
	return u
}

func (h *testApp) do(t *testing.T, method, path string, body io.Reader, header http.Header) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(method, h.server.URL+path, body)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(b)
}

func (h *testApp) xsrf(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(h.server.URL)
	require.NoError(t, err)
	for _, ck := range h.client.Jar.Cookies(u) {
		if ck.Name == session.XSRFCookie {
			return ck.Value
		}
	}
	// any page visit issues the cookie
	h.do(t, http.MethodGet, "/login", nil, nil)
	for _, ck := range h.client.Jar.Cookies(u) {
		if ck.Name == session.XSRFCookie {
			return ck.Value
		}
	}
	t.Fatal("no XSRF-TOKEN cookie issued")
	return ""
}

// send makes a state-changing JSON request carrying the CSRF token.
func (h *testApp) send(t *testing.T, method, path string, payload any, header http.Header) (*http.Response, string) {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	hdr := http.Header{
		"Content-Type": {"application/json"},
		"X-Xsrf-Token": {h.xsrf(t)},
	}
	for k, v := range header {
		hdr[k] = v
	}
	return h.do(t, method, path, bytes.NewReader(b), hdr)
}

func (h *testApp) login(t *testing.T, email string) {
	t.Helper()
	form := url.Values{"email": {email}, "password": {testPassword}}
	resp, _ := h.do(t, http.MethodPost, "/login", strings.NewReader(form.Encode()), http.Header{
		"Content-Type": {"application/x-www-form-urlencoded"},
		"X-Xsrf-Token": {h.xsrf(t)},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)
}

func (h *testApp) visit(t *testing.T, path string) page {
	t.Helper()
	resp, body := h.do(t, http.MethodGet, path, nil, http.Header{"X-Inertia": {"true"}})
	require.Equal(t, "true", resp.Header.Get("X-Inertia"), body)
	var p page
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	return p
}

var jsonHeader = http.Header{"Accept": {"application/json"}}

// lockedBuffer collects log output written from server goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHealth(t *testing.T) {
	h := newTestApp(t)

	resp, body := h.do(t, http.MethodGet, "/up", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"up"}`, body)

	require.NoError(t, database.Close(h.db))
	resp, body = h.do(t, http.MethodGet, "/up", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.JSONEq(t, `{"status":"down"}`, body)
}

func TestGuests(t *testing.T) {
	h := newTestApp(t)

	resp, _ := h.do(t, http.MethodGet, "/customers", nil, nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, body := h.do(t, http.MethodGet, "/customers", nil, jsonHeader)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Unauthenticated."}`, body)

	resp, _ = h.do(t, http.MethodGet, "/api/user", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNotFound(t *testing.T) {
	h := newTestApp(t)

	resp, body := h.do(t, http.MethodGet, "/does-not-exist", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "NotFound")
	assert.Contains(t, body, "Page Not Found")

	resp, body = h.do(t, http.MethodGet, "/does-not-exist", nil, http.Header{"X-Inertia": {"true"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var p page
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	assert.Equal(t, "NotFound", p.Component)
	assert.EqualValues(t, 404, p.Props["status"])

	resp, body = h.do(t, http.MethodGet, "/does-not-exist", nil, jsonHeader)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"message":"Not Found"}`, body)

	resp, _ = h.do(t, http.MethodPost, "/does-not-exist", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "unknown targets are not CSRF checked")
}

func TestExpiredPage(t *testing.T) {
	h := newTestApp(t)
	h.do(t, http.MethodGet, "/login", nil, nil)

	referer := h.server.URL + "/login"
	resp, _ := h.do(t, http.MethodPost, "/newsletter/subscribe", strings.NewReader("email=a@example.com"), http.Header{
		"Content-Type": {"application/x-www-form-urlencoded"},
		"Referer":      {referer},
	})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, referer, resp.Header.Get("Location"))

	p := h.visit(t, "/login")
	flash := p.Props["flash"].(map[string]any)
	notify := flash["notify"].(map[string]any)
	assert.Equal(t, "danger", notify["type"])
	assert.Equal(t, "The page expired, please try again.", notify["message"])

	resp, body := h.do(t, http.MethodPost, "/newsletter/subscribe", nil, jsonHeader)
	assert.Equal(t, 419, resp.StatusCode)
	assert.JSONEq(t, `{"message":"CSRF token mismatch."}`, body)
}

func TestLogin(t *testing.T) {
	h := newTestApp(t)
	h.user(t, "ada@example.com", "admin")

	resp, _ := h.do(t, http.MethodGet, "/customers?status=active", nil, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	form := url.Values{"email": {"ada@example.com"}, "password": {"wrong-password"}}
	resp, _ = h.do(t, http.MethodPost, "/login", strings.NewReader(form.Encode()), http.Header{
		"Content-Type": {"application/x-www-form-urlencoded"},
		"X-Xsrf-Token": {h.xsrf(t)},
	})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	p := h.visit(t, "/login")
	assert.Equal(t, "Auth/Login", p.Component)
	errs := p.Props["errors"].(map[string]any)
	assert.Equal(t, "These credentials do not match our records.", errs["email"])

	form.Set("password", testPassword)
	resp, _ = h.do(t, http.MethodPost, "/login", strings.NewReader(form.Encode()), http.Header{
		"Content-Type": {"application/x-www-form-urlencoded"},
		"X-Xsrf-Token": {h.xsrf(t)},
	})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.True(t, strings.HasSuffix(resp.Header.Get("Location"), "/customers?status=active"), "goes to the intended page")

	p = h.visit(t, "/")
	assert.Equal(t, "Dashboard", p.Component)
	user := p.Props["auth"].(map[string]any)["user"].(map[string]any)
	assert.Equal(t, "ada@example.com", user["email"])
	assert.Equal(t, "admin", user["role"])
	assert.Contains(t, user["permissions"], "customers.create")

	resp, _ = h.do(t, http.MethodGet, "/login", nil, nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode, "users are sent away from the login page")

	resp, _ = h.send(t, http.MethodPost, "/logout", nil, nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	resp, _ = h.do(t, http.MethodGet, "/", nil, nil)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestLoginThrottle(t *testing.T) {
	h := newTestApp(t)
	payload := map[string]string{"email": "nobody@example.com", "password": "wrong-password"}
	for range 5 {
		resp, _ := h.send(t, http.MethodPost, "/login", payload, jsonHeader)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	}
	resp, body := h.send(t, http.MethodPost, "/login", payload, jsonHeader)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, body, "Too many login attempts")
}

func TestPermissions(t *testing.T) {
	h := newTestApp(t)
	h.user(t, "vera@example.com", "viewer")
	h.login(t, "vera@example.com")

	p := h.visit(t, "/customers")
	assert.Equal(t, "Customers/Index", p.Component)

	resp, body := h.send(t, http.MethodPost, "/customers", map[string]string{"name": "Acme"}, jsonHeader)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.JSONEq(t, `{"message":"This action is unauthorized."}`, body)

	resp, _ = h.do(t, http.MethodGet, "/users", nil, jsonHeader)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "viewers may list users")
	resp, _ = h.send(t, http.MethodPost, "/users", map[string]string{}, jsonHeader)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCustomers(t *testing.T) {
	h := newTestApp(t)
	h.user(t, "ada@example.com", "admin")
	h.login(t, "ada@example.com")

	resp, body := h.send(t, http.MethodPost, "/customers", map[string]string{"website": "not a url"}, jsonHeader)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var invalid struct {
		Message string            `json:"message"`
		Errors  map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &invalid))
	assert.Equal(t, "The email field is required.", invalid.Message)
	assert.Equal(t, "The name field is required.", invalid.Errors["name"])
	assert.Equal(t, "The website field must be a valid URL.", invalid.Errors["website"])
	assert.Contains(t, invalid.Errors, "status")

	acme := map[string]string{"name": "Wile E.", "company": "Acme", "email": "Wile@Acme.test", "status": "active"}
	resp, _ = h.send(t, http.MethodPost, "/customers", acme, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/customers/1", resp.Header.Get("Location"))

	p := h.visit(t, "/customers/1")
	assert.Equal(t, "Customers/Show", p.Component)
	customer := p.Props["customer"].(map[string]any)
	assert.Equal(t, "wile@acme.test", customer["email"])
	notify := p.Props["flash"].(map[string]any)["notify"].(map[string]any)
	assert.Equal(t, "success", notify["type"])

	resp, body = h.send(t, http.MethodPost, "/customers", acme, jsonHeader)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "The email has already been taken.")

	acme["status"] = "lead"
	resp, _ = h.send(t, http.MethodPut, "/customers/1", acme, http.Header{"X-Inertia": {"true"}})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	var cu models.Customer
	require.NoError(t, h.db.First(&cu, 1).Error)
	assert.Equal(t, models.CustomerLead, cu.Status)

	p = h.visit(t, "/customers?q=acme&status=lead")
	list := p.Props["customers"].(map[string]any)
	assert.EqualValues(t, 1, list["total"])
	p = h.visit(t, "/customers?status=inactive")
	assert.EqualValues(t, 0, p.Props["customers"].(map[string]any)["total"])

	project := models.Project{CustomerID: cu.ID, Title: "Road Runner", Slug: "road-runner", Status: models.ProjectPlanning}
	require.NoError(t, h.db.Create(&project).Error)
	logo := models.Logo{CustomerID: &cu.ID, Name: "Acme", FileName: "acme.png", StorePath: "logos/acme.png"}
	require.NoError(t, h.db.Create(&logo).Error)

	resp, _ = h.send(t, http.MethodDelete, "/customers/1", nil, nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/customers", resp.Header.Get("Location"))

	resp, _ = h.do(t, http.MethodGet, "/customers/1", nil, jsonHeader)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var n int64
	require.NoError(t, h.db.Model(&models.Project{}).Where("customer_id = ?", cu.ID).Count(&n).Error)
	assert.Zero(t, n, "projects are deleted with their customer")
	require.NoError(t, h.db.First(&logo, logo.ID).Error, "logos outlive their customer")
	assert.Nil(t, logo.CustomerID)
}

func TestProjects(t *testing.T) {
	h := newTestApp(t)
	h.user(t, "ada@example.com", "admin")
	h.login(t, "ada@example.com")
	cu := models.Customer{Name: "Acme", Email: "acme@example.com", Status: models.CustomerActive}
	require.NoError(t, h.db.Create(&cu).Error)

	project := map[string]any{"customer_id": 999, "title": "Brand Refresh", "status": "planning"}
	resp, body := h.send(t, http.MethodPost, "/projects", project, jsonHeader)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "The selected customer id is invalid.")

	project["customer_id"] = cu.ID
	project["start_date"] = "2024-13-01"
	resp, body = h.send(t, http.MethodPost, "/projects", project, jsonHeader)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "start_date")

	project["start_date"] = "2024-05-01"
	for range 2 {
		resp, _ = h.send(t, http.MethodPost, "/projects", project, nil)
		require.Equal(t, http.StatusFound, resp.StatusCode)
	}
	var projects []models.Project
	require.NoError(t, h.db.Order("id").Find(&projects).Error)
	require.Len(t, projects, 2)
	assert.Equal(t, "brand-refresh", projects[0].Slug)
	assert.Equal(t, "brand-refresh-2", projects[1].Slug)
	require.NotNil(t, projects[0].StartDate)
	assert.Equal(t, "2024-05-01", projects[0].StartDate.Format(time.DateOnly))
	assert.Nil(t, projects[0].CompletedAt)

	project["status"] = "completed"
	resp, _ = h.send(t, http.MethodPut, fmt.Sprintf("/projects/%d", projects[1].ID), project, nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	var done models.Project
	require.NoError(t, h.db.First(&done, projects[1].ID).Error)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, "brand-refresh-2", done.Slug, "slug is kept while the title is unchanged")

	p := h.visit(t, "/projects?status=completed")
	assert.Equal(t, "Projects/Index", p.Component)
	assert.EqualValues(t, 1, p.Props["projects"].(map[string]any)["total"])
	assert.NotContains(t, p.Props, "customers", "lazy props stay out of full visits")

	resp, body = h.do(t, http.MethodGet, "/projects", nil, http.Header{
		"X-Inertia":                   {"true"},
		"X-Inertia-Partial-Component": {"Projects/Index"},
		"X-Inertia-Partial-Data":      {"customers"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	assert.Len(t, p.Props["customers"], 1)

	p = h.visit(t, "/")
	stats := p.Props["stats"].(map[string]any)
	assert.EqualValues(t, 2, stats["projects"])
	assert.EqualValues(t, 1, stats["projects_by_status"].(map[string]any)["completed"])
}

func TestProjects_SlugTakenConcurrently(t *testing.T) {
	h := newTestApp(t)
	h.user(t, "ada@example.com", "admin")
	h.login(t, "ada@example.com")
	cu := models.Customer{Name: "Acme", Email: "acme@example.com", Status: models.CustomerActive}
	require.NoError(t, h.db.Create(&cu).Error)

	// another request inserts the same slug between the lookup and our insert
	var taken atomic.Bool
	require.NoError(t, h.db.Callback().Create().Before("gorm:create").Register("test:take_slug", func(tx *gorm.DB) {
		if tx.Statement.Table != "projects" || taken.Swap(true) {
			return
		}
		now := time.Now()
		tx.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO projects (customer_id, title, slug, status, budget, featured, created_at, updated_at) VALUES (?, ?, ?, ?, 0, 0, ?, ?)",
			cu.ID, "Launch Kit", "launch-kit", models.ProjectPlanning, now, now)
	}))

	project := map[string]any{"customer_id": cu.ID, "title": "Launch Kit", "status": "planning"}
	resp, body := h.send(t, http.MethodPost, "/projects", project, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode, body)
	assert.True(t, taken.Load())

	var projects []models.Project
	require.NoError(t, h.db.Find(&projects).Error)
	require.Len(t, projects, 1)
	assert.Equal(t, "launch-kit", projects[0].Slug)
}

func TestProjects_CustomerOptionsError(t *testing.T) {
	logs := &lockedBuffer{}
	h := newTestApp(t, func(d *Deps) {
		d.Log = slog.New(slog.NewJSONHandler(logs, nil))
	})
	h.user(t, "ada@example.com", "admin")
	h.login(t, "ada@example.com")

	require.NoError(t, h.db.Callback().Query().Before("gorm:query").Register("test:fail_customers", func(tx *gorm.DB) {
		if tx.Statement.Table == "customers" {
			_ = tx.AddError(errors.New("customers unavailable"))
		}
	}))

	resp, body := h.do(t, http.MethodGet, "/projects", nil, http.Header{
		"X-Inertia":                   {"true"},
		"X-Inertia-Partial-Component": {"Projects/Index"},
		"X-Inertia-Partial-Data":      {"customers"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var p page
	require.NoError(t, json.Unmarshal([]byte(body), &p))
	assert.Empty(t, p.Props["customers"])
	assert.Contains(t, logs.String(), "load customer options failed")
	assert.Contains(t, logs.String(), "customers unavailable")
}

func TestNewsletter(t *testing.T) {
	h := newTestApp(t)

	resp, body := h.send(t, http.MethodPost, "/newsletter/subscribe", map[string]string{"email": "Reader@Example.com"}, jsonHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	var s models.Subscriber
	require.NoError(t, h.db.Where("email = ?", "reader@example.com").First(&s).Error)
	assert.Equal(t, models.SubscriberSubscribed, s.Status)
	assert.Equal(t, "website", s.Source)
	require.NotEmpty(t, s.Token)

	p := h.visit(t, "/newsletter/unsubscribe/"+s.Token)
	assert.Equal(t, "Newsletter/Unsubscribed", p.Component)
	require.NoError(t, h.db.First(&s, s.ID).Error)
	assert.Equal(t, models.SubscriberUnsubscribed, s.Status)
	assert.NotNil(t, s.UnsubscribedAt)

	resp, _ = h.send(t, http.MethodPost, "/newsletter/subscribe", map[string]string{"email": "reader@example.com"}, jsonHeader)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, h.db.First(&s, s.ID).Error)
	assert.Equal(t, models.SubscriberSubscribed, s.Status, "subscribing again reactivates")

	resp, _ = h.do(t, http.MethodGet, "/newsletter/unsubscribe/unknown", nil, jsonHeader)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUsers(t *testing.T) {
	h := newTestApp(t)
	admin := h.user(t, "ada@example.com", "admin")
	h.login(t, "ada@example.com")

	resp, body := h.send(t, http.MethodPost, "/users", map[string]string{
		"name": "Eddie", "email": "eddie@example.com", "password": "password1", "role": "ghost",
	}, jsonHeader)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, "The selected role is invalid.")

	resp, _ = h.send(t, http.MethodPost, "/users", map[string]string{
		"name": "Eddie", "email": "eddie@example.com", "password": "password1", "role": "editor",
	}, nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)

	var eddie models.User
	require.NoError(t, h.db.Where("email = ?", "eddie@example.com").First(&eddie).Error)
	resp, _ = h.send(t, http.MethodPut, fmt.Sprintf("/users/%d/role", eddie.ID), map[string]string{"role": "manager"}, nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.NoError(t, h.db.Preload("Role").First(&eddie, eddie.ID).Error)
	assert.Equal(t, "manager", eddie.Role.Name)

	resp, _ = h.send(t, http.MethodPut, fmt.Sprintf("/users/%d/role", admin.ID), map[string]string{"role": "viewer"}, jsonHeader)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	p := h.visit(t, "/users")
	assert.EqualValues(t, 2, p.Props["users"].(map[string]any)["total"])
	assert.Len(t, p.Props["roles"], 6)
}

func TestLogos(t *testing.T) {
	h := newTestApp(t)
	h.user(t, "eddie@example.com", "editor")
	h.login(t, "eddie@example.com")
	cu := models.Customer{Name: "Acme", Company: "Acme Corp", Email: "acme@example.com", Status: models.CustomerActive}
	require.NoError(t, h.db.Create(&cu).Error)

	png, err := os.ReadFile(testutil.WritePNG(t, t.TempDir(), "logo.png", 64, 32))
	require.NoError(t, err)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("logo", "logo.png")
	require.NoError(t, err)
	_, err = fw.Write(png)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, _ := h.do(t, http.MethodPost, fmt.Sprintf("/customers/%d/logo", cu.ID), &buf, http.Header{
		"Content-Type": {mw.FormDataContentType()},
		"X-Xsrf-Token": {h.xsrf(t)},
	})
	require.Equal(t, http.StatusFound, resp.StatusCode)

	var logo models.Logo
	require.NoError(t, h.db.Where("customer_id = ?", cu.ID).First(&logo).Error)
	assert.Equal(t, "Acme Corp", logo.Name)
	assert.Equal(t, "image/png", logo.ContentType)
	assert.FileExists(t, filepath.Join(h.cfg.Uploads.Base, filepath.FromSlash(logo.StorePath)))
	assert.NotEmpty(t, logo.ThumbPath)

	p := h.visit(t, "/logos")
	rows := p.Props["logos"].(map[string]any)["data"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "Acme", rows[0].(map[string]any)["customer"].(map[string]any)["name"])

	resp, body := h.do(t, http.MethodGet, fmt.Sprintf("/logos/%d/download", logo.ID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	assert.Equal(t, string(png), body)
	require.NoError(t, h.db.First(&logo, logo.ID).Error)
	assert.EqualValues(t, 1, logo.Downloads)

	require.NoError(t, os.Remove(filepath.Join(h.cfg.Uploads.Base, filepath.FromSlash(logo.StorePath))))
	resp, _ = h.do(t, http.MethodGet, fmt.Sprintf("/logos/%d/download", logo.ID), nil, jsonHeader)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPITokens(t *testing.T) {
	h := newTestApp(t)
	h.user(t, "vera@example.com", "viewer")
	require.NoError(t, h.db.Create(&models.Customer{Name: "Acme", Email: "acme@example.com", Status: models.CustomerActive}).Error)

	post := func(path string, payload any) (*http.Response, string) {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		return h.do(t, http.MethodPost, path, bytes.NewReader(b), http.Header{"Content-Type": {"application/json"}})
	}

	resp, _ := post("/api/token", map[string]string{"email": "vera@example.com", "password": "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := post("/api/token", map[string]string{"email": "vera@example.com", "password": testPassword})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var pair struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &pair))
	require.NotEmpty(t, pair.Token)
	require.NotEmpty(t, pair.RefreshToken)

	bearer := http.Header{"Authorization": {"Bearer " + pair.Token}}
	resp, body = h.do(t, http.MethodGet, "/api/user", nil, bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"email":"vera@example.com"`)

	resp, body = h.do(t, http.MethodGet, "/api/customers", nil, bearer)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"total":1`)

	resp, _ = h.do(t, http.MethodGet, "/api/stats", nil, bearer)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(t, http.MethodGet, "/api/user", nil, http.Header{"Authorization": {"Bearer garbage"}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = post("/api/token/refresh", map[string]string{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rotated struct {
		RefreshToken string `json:"refresh_token"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &rotated))
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	resp, _ = post("/api/token/refresh", map[string]string{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "a refresh token works once")

	resp, _ = post("/api/token/revoke", map[string]string{"refresh_token": rotated.RefreshToken})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = post("/api/token/refresh", map[string]string{"refresh_token": rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPIPreflight(t *testing.T) {
	h := newTestApp(t)

	resp, _ := h.do(t, http.MethodOptions, "/api/customers", nil, http.Header{
		"Origin":                         {"http://localhost"},
		"Access-Control-Request-Method":  {"GET"},
		"Access-Control-Request-Headers": {"Authorization"},
	})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, strings.ToLower(resp.Header.Get("Access-Control-Allow-Headers")), "authorization")

	resp, _ = h.do(t, http.MethodOptions, "/api/customers", nil, http.Header{
		"Origin":                        {"http://evil.test"},
		"Access-Control-Request-Method": {"GET"},
	})
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	// web routes have no preflight handler
	resp, _ = h.do(t, http.MethodOptions, "/customers", nil, jsonHeader)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInitDB_PartialMigration(t *testing.T) {
	cfg := testConfig(t)
	cfg.DB = config.DBConfig{
		Driver:      config.DriverSQLite,
		DSN:         "file:" + filepath.Join(t.TempDir(), "app.db") + "?_foreign_keys=on",
		AutoMigrate: true,
	}
	pre, err := database.Open(cfg.DB)
	require.NoError(t, err)
	require.NoError(t, pre.Exec("CREATE VIEW subscribers AS SELECT 1 AS id").Error)
	require.NoError(t, database.Close(pre))

	db, err := initDB(context.Background(), cfg, logger.Discard())
	require.NoError(t, err, "serve starts on a partially migrated schema")
	t.Cleanup(func() { _ = database.Close(db) })
	assert.True(t, db.Migrator().HasTable(&models.Customer{}))

	err = database.Migrate(context.Background(), db, logger.Discard())
	assert.ErrorContains(t, err, "*models.Subscriber", "migrate names what failed")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestApp(t)
	h.do(t, http.MethodGet, "/up", nil, nil)

	resp, body := h.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `ultrashots_http_requests_total{method="GET",route="/up",status="200"} 1`)
}

func TestPrioritize(t *testing.T) {
	names := func(list []middleware) []string {
		out := make([]string, len(list))
		for i, m := range list {
			out[i] = m.name
		}
		return out
	}
	list := []middleware{
		{name: "start_session"},
		{name: "share_errors"},
		{name: "encrypt_cookies"},
		{name: "add_queued_cookies"},
		{name: "validate_csrf"},
		{name: "cors"},
	}
	assert.Equal(t, []string{
		"encrypt_cookies", "add_queued_cookies", "start_session", "share_errors", "validate_csrf", "cors",
	}, names(prioritize(list)))

	list = []middleware{{name: "inertia"}, {name: "validate_csrf"}, {name: "preload_links"}, {name: "start_session"}}
	assert.Equal(t, []string{"inertia", "start_session", "preload_links", "validate_csrf"}, names(prioritize(list)),
		"unranked entries keep their slots")
}
