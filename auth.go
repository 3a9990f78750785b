package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"ultrashots/models"
	"ultrashots/pkg/accounts"
	"ultrashots/pkg/exceptions"
	"ultrashots/pkg/inertia"
	"ultrashots/pkg/session"
)

const (
	// authUserKey holds the id of the logged in user in the session.
	authUserKey    = "_auth.user_id"
	userContextKey = "auth.user"
	notifyKey      = "notify"
)

// ErrForbidden is returned when the user lacks a permission.
var ErrForbidden = errors.New("This action is unauthorized.")

func notice(kind, message string) gin.H {
	return gin.H{"type": kind, "message": message}
}

// notify flashes a toast for the next page.
func notify(c *gin.Context, kind, message string) {
	if sess := session.From(c); sess != nil {
		sess.Flash(notifyKey, notice(kind, message))
	}
}

// currentUser resolves the authenticated user once per request, from the api token
// middleware or from the session.
func (a *App) currentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(userContextKey); ok {
		u, _ := v.(*models.User)
		return u
	}
	var user *models.User
	if sess := session.From(c); sess != nil {
		if id, ok := sess.GetUint(authUserKey); ok {
			u, err := a.accounts.FindByID(c.Request.Context(), id)
			if err == nil {
				user = u
			} else {
				sess.Forget(authUserKey)
			}
		}
	}
	c.Set(userContextKey, user)
	return user
}

// authenticate sends guests to /login, remembering the page they asked for. Clients that
// expect JSON get a 401 instead.
func (a *App) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.currentUser(c) != nil {
			c.Next()
			return
		}
		if exceptions.WantsJSON(c.Request) {
			exceptions.Abort(c, http.StatusUnauthorized, exceptions.New(http.StatusUnauthorized, "Unauthenticated."))
			return
		}
		if sess := session.From(c); sess != nil && c.Request.Method == http.MethodGet && !session.IsAjax(c.Request) {
			sess.Put(session.IntendedURLKey, session.FullURL(c.Request))
		}
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
	}
}

// guest redirects authenticated users away from the login page.
func (a *App) guest() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.currentUser(c) != nil {
			c.Redirect(http.StatusFound, "/")
			c.Abort()
			return
		}
		c.Next()
	}
}

// apiAuthenticate accepts a bearer access token or an authenticated session.
func (a *App) apiAuthenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if raw, ok := strings.CutPrefix(header, "Bearer "); ok && raw != "" {
			claims, err := a.accounts.ParseAccessToken(raw)
			if err != nil {
				exceptions.Abort(c, http.StatusUnauthorized, exceptions.New(http.StatusUnauthorized, "invalid token"))
				return
			}
			id, err := claims.UserID()
			if err != nil {
				exceptions.Abort(c, http.StatusUnauthorized, exceptions.New(http.StatusUnauthorized, "invalid claims"))
				return
			}
			user, err := a.accounts.FindByID(c.Request.Context(), id)
			if err != nil {
				exceptions.Abort(c, http.StatusUnauthorized, exceptions.New(http.StatusUnauthorized, "user not found"))
				return
			}
			c.Set(userContextKey, user)
			c.Next()
			return
		}
		if a.currentUser(c) == nil {
			exceptions.Abort(c, http.StatusUnauthorized, exceptions.New(http.StatusUnauthorized, "Unauthenticated."))
			return
		}
		c.Next()
	}
}

// can requires the current user to hold permission.
func (a *App) can(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := a.currentUser(c)
		if u == nil || !u.Can(permission) {
			exceptions.Abort(c, http.StatusForbidden, ErrForbidden)
			return
		}
		c.Next()
	}
}

func (a *App) showLogin(c *gin.Context) {
	a.inertia.Render(c, "Auth/Login", inertia.Props{"title": "Log in"})
}

type loginForm struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required"`
}

func (a *App) login(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBind(&form); err != nil {
		a.invalid(c, validationErrors(err))
		return
	}
	user, err := a.accounts.Authenticate(c.Request.Context(), form.Email, form.Password)
	if err != nil {
		a.metrics.LoginAttempt("failed")
		a.invalid(c, map[string]string{"email": "These credentials do not match our records."})
		return
	}
	a.metrics.LoginAttempt("success")
	a.throttle.Clear(c.ClientIP())

	sess := session.From(c)
	sess.Regenerate()
	sess.Put(authUserKey, user.ID)
	target := "/"
	if v, ok := sess.Pull(session.IntendedURLKey).(string); ok && v != "" {
		target = v
	}
	a.log.Info("user logged in", "user_id", user.ID)
	inertia.Redirect(c, target)
}

func (a *App) logout(c *gin.Context) {
	if sess := session.From(c); sess != nil {
		sess.Invalidate()
	}
	inertia.Redirect(c, "/login")
}

// userProps is the shape of auth.user in page props.
func userProps(u *models.User) gin.H {
	if u == nil {
		return nil
	}
	return gin.H{
		"id":          u.ID,
		"name":        u.Name,
		"email":       u.Email,
		"role":        u.Role.Name,
		"role_label":  u.Role.Label(),
		"permissions": u.Role.PermissionNames(),
	}
}

// sharedProps are merged into every page.
func (a *App) sharedProps(c *gin.Context) inertia.Props {
	props := inertia.Props{
		"auth":   gin.H{"user": userProps(a.currentUser(c))},
		"errors": session.Errors(c),
		"flash":  gin.H{notifyKey: nil},
	}
	if sess := session.From(c); sess != nil {
		props["csrf_token"] = sess.Token()
		props["flash"] = gin.H{notifyKey: sess.Get(notifyKey)}
	}
	return props
}

// authorizeChannel lets users join the model channels they may view and their own
// private channel "users.{id}".
func (a *App) authorizeChannel(c *gin.Context) func(channel string) bool {
	user := a.currentUser(c)
	return func(channel string) bool {
		if user == nil {
			return false
		}
		switch channel {
		case "customers":
			return user.Can("customers.view")
		case "projects":
			return user.Can("projects.view")
		}
		if id, ok := strings.CutPrefix(channel, "users."); ok {
			return id == strconv.FormatUint(uint64(user.ID), 10)
		}
		return false
	}
}

// publish broadcasts a model event. Failures only mean nobody hears it.
func (a *App) publish(channel, event string, data any) {
	if err := a.hub.Publish(channel, event, data); err != nil {
		a.log.Warn("broadcast failed", "channel", channel, "event", event, "error", err)
		return
	}
	a.metrics.Broadcast(channel, event)
}

// loginThrottle limits login attempts per client IP.
type loginThrottle struct {
	mu       sync.Mutex
	limiters map[string]*throttleEntry
	limit    rate.Limit
	burst    int
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLoginThrottle(attempts int, per time.Duration) *loginThrottle {
	return &loginThrottle{
		limiters: make(map[string]*throttleEntry),
		limit:    rate.Limit(float64(attempts) / per.Seconds()),
		burst:    attempts,
	}
}

func (t *loginThrottle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	e, ok := t.limiters[key]
	if !ok {
		t.sweep(now)
		e = &throttleEntry{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.Allow()
}

// Clear forgets key after a successful login.
func (t *loginThrottle) Clear(key string) {
	t.mu.Lock()
	delete(t.limiters, key)
	t.mu.Unlock()
}

func (t *loginThrottle) sweep(now time.Time) {
	for k, e := range t.limiters {
		if now.Sub(e.lastSeen) > 10*time.Minute {
			delete(t.limiters, k)
		}
	}
}

func (a *App) throttleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.throttle.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		a.metrics.RateLimited(c.FullPath())
		a.metrics.LoginAttempt("throttled")
		c.Header("Retry-After", "60")
		msg := "Too many login attempts. Please try again in a minute."
		if exceptions.WantsJSON(c.Request) {
			exceptions.Abort(c, http.StatusTooManyRequests, exceptions.New(http.StatusTooManyRequests, msg))
			return
		}
		a.invalid(c, map[string]string{"email": msg})
		c.Abort()
	}
}

func isAccountsValidation(err error) bool {
	return errors.Is(err, accounts.ErrWeakPassword) || errors.Is(err, accounts.ErrUserExists) || errors.Is(err, accounts.ErrRoleNotFound)
}
