package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"ultrashots/pkg/accounts"
	"ultrashots/pkg/broadcast"
	"ultrashots/pkg/config"
	"ultrashots/pkg/exceptions"
	"ultrashots/pkg/inertia"
	"ultrashots/pkg/media"
	"ultrashots/pkg/metrics"
	"ultrashots/pkg/session"
)

// Deps are the services the HTTP application is built from. Optional fields are created
// from Config when nil.
type Deps struct {
	Config   *config.Config
	Log      *slog.Logger
	DB       *gorm.DB
	Sessions session.Store
	Manifest *inertia.Manifest
	Hub      *broadcast.Hub
	Metrics  *metrics.Metrics
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// App holds the wired services used by handlers.
type App struct {
	cfg        *config.Config
	log        *slog.Logger
	db         *gorm.DB
	accounts   *accounts.Service
	sessions   *session.Manager
	enc        *session.Encrypter
	inertia    *inertia.Inertia
	manifest   *inertia.Manifest
	media      *media.Store
	hub        *broadcast.Hub
	metrics    *metrics.Metrics
	throttle   *loginThrottle
	exceptions *exceptions.Handler
}

// middleware is a named entry of a middleware stack.
type middleware struct {
	name    string
	handler gin.HandlerFunc
}

// middlewarePriority is the order these middleware always run in, wherever a stack lists
// them. Cookie encryption must wrap everything that sets cookies.
var middlewarePriority = []string{
	"encrypt_cookies",
	"add_queued_cookies",
	"start_session",
	"share_errors",
	"validate_csrf",
	"auth",
}

// Configure builds the HTTP engine: global middleware, the web and api stacks, the
// broadcast channel, health and metrics endpoints and the exception mapping.
func Configure(d Deps) (*gin.Engine, error) {
	a, err := newApp(d)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(
		a.recovery(),
		a.requestLogger(),
		a.metrics.Middleware(),
		session.Hooks(),
		a.exceptions.Middleware(),
	)
	a.routes(r)
	return r, nil
}

func newApp(d Deps) (*App, error) {
	if d.Config == nil || d.DB == nil || d.Log == nil {
		return nil, fmt.Errorf("configure: config, database and logger are required")
	}
	cfg := d.Config

	key, err := cfg.App.KeyBytes()
	if err != nil {
		return nil, err
	}
	enc, err := session.NewEncrypter(key)
	if err != nil {
		return nil, err
	}

	if d.Sessions == nil {
		d.Sessions = session.NewMemoryStore()
	}
	if d.Manifest == nil {
		if d.Manifest, err = inertia.LoadManifest(cfg.Assets.Manifest, cfg.Assets.BaseURL, d.Log); err != nil {
			return nil, err
		}
	}
	if d.Hub == nil {
		d.Hub = broadcast.NewHub(d.Log)
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.BcryptCost == 0 {
		d.BcryptCost = bcrypt.DefaultCost
	}

	ine, err := inertia.New(cfg.App.Name, d.Manifest)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg: cfg,
		log: d.Log,
		db:  d.DB,
		accounts: accounts.NewService(d.DB,
			accounts.WithBcryptCost(d.BcryptCost),
			accounts.WithTokens(accounts.TokenConfig{
				Secret:     []byte(cfg.JWT.Secret),
				AccessTTL:  cfg.JWT.AccessTTL,
				RefreshTTL: cfg.JWT.RefreshTTL,
			})),
		sessions: session.NewManager(d.Sessions, cfg.Session, d.Log),
		enc:      enc,
		inertia:  ine,
		manifest: d.Manifest,
		media:    media.NewStore(cfg.Uploads.Base, cfg.Uploads.MaxSize),
		hub:      d.Hub,
		metrics:  d.Metrics,
		throttle: newLoginThrottle(5, time.Minute),
	}
	a.exceptions = a.exceptionHandler()
	ine.Share("appName", cfg.App.Name)
	ine.ShareFunc(a.sharedProps)
	registerValidation()
	return a, nil
}

// webMiddleware is the stack of page routes.
func (a *App) webMiddleware() []middleware {
	return []middleware{
		{"encrypt_cookies", session.EncryptCookies(a.enc)},
		{"add_queued_cookies", session.AddQueuedCookiesToResponse()},
		{"start_session", session.StartSession(a.sessions)},
		{"share_errors", session.ShareErrorsFromSession()},
		{"validate_csrf", session.ValidateCsrfToken(a.sessions, a.enc)},
		{"inertia", a.inertia.Middleware()},
		{"preload_links", inertia.AddLinkHeadersForPreloadedAssets(a.manifest)},
	}
}

// apiMiddleware replaces the default api stack. It is declared session first; the
// priority sort moves cookie encryption back to the outside.
func (a *App) apiMiddleware() []middleware {
	return []middleware{
		{"start_session", session.StartSession(a.sessions)},
		{"share_errors", session.ShareErrorsFromSession()},
		{"encrypt_cookies", session.EncryptCookies(a.enc)},
		{"add_queued_cookies", session.AddQueuedCookiesToResponse()},
		// token endpoints authenticate with credentials, not with the session
		{"validate_csrf", session.ValidateCsrfToken(a.sessions, a.enc, "/api/token*")},
		{"cors", a.cors()},
	}
}

// notFoundMiddleware is the web stack without CSRF, so unknown POST targets still 404.
func (a *App) notFoundMiddleware() []middleware {
	return slices.DeleteFunc(a.webMiddleware(), func(m middleware) bool { return m.name == "validate_csrf" })
}

func (a *App) cors() gin.HandlerFunc {
	cc := cors.DefaultConfig()
	if len(a.cfg.CORS.AllowedOrigins) > 0 {
		cc.AllowOrigins = a.cfg.CORS.AllowedOrigins
	} else {
		cc.AllowOrigins = []string{a.cfg.App.URL}
	}
	cc.AllowCredentials = true
	cc.AddAllowHeaders("Authorization", "X-CSRF-TOKEN", "X-XSRF-TOKEN", "X-Requested-With")
	return cors.New(cc)
}

// prioritize reorders the entries named in middlewarePriority among the slots they occupy;
// every other entry keeps its position.
func prioritize(list []middleware) []middleware {
	rank := func(name string) int { return slices.Index(middlewarePriority, name) }
	var slots []int
	var ranked []middleware
	for i, m := range list {
		if rank(m.name) >= 0 {
			slots = append(slots, i)
			ranked = append(ranked, m)
		}
	}
	slices.SortStableFunc(ranked, func(x, y middleware) int { return rank(x.name) - rank(y.name) })

	out := slices.Clone(list)
	for i, slot := range slots {
		out[slot] = ranked[i]
	}
	return out
}

func handlers(list []middleware) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, len(list))
	for i, m := range list {
		out[i] = m.handler
	}
	return out
}

// exceptionHandler renders 404s as the NotFound page and sends 419s back with a notice.
func (a *App) exceptionHandler() *exceptions.Handler {
	return exceptions.NewHandler(a.log).
		Render(http.StatusNotFound, func(c *gin.Context, err error) bool {
			if exceptions.WantsJSON(c.Request) {
				return false
			}
			a.inertia.RenderStatus(c, http.StatusNotFound, "NotFound", inertia.Props{"title": "Page Not Found", "status": http.StatusNotFound})
			return true
		}).
		Respond(func(c *gin.Context, status int, err error) bool {
			if status != 419 || exceptions.WantsJSON(c.Request) {
				return false
			}
			sess := session.From(c)
			if sess == nil {
				return false
			}
			sess.Flash(notifyKey, notice("danger", "The page expired, please try again."))
			c.Redirect(http.StatusFound, session.BackURL(c))
			return true
		})
}

// recovery logs panics with their stack and hands a 500 to the exception handler.
func (a *App) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("panic recovered",
					"panic", r,
					"stack", string(debug.Stack()),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
				)
				c.Abort()
				if !c.Writer.Written() {
					a.exceptions.Handle(c, http.StatusInternalServerError, fmt.Errorf("panic: %v", r))
				}
			}
		}()
		c.Next()
	}
}

// requestLogger emits a structured line for every request.
func (a *App) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}
