package session

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
)

// StartSession loads the session named by the session cookie and saves it, together with
// the cookie, before the response is written.
func StartSession(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := c.Cookie(m.cookie)
		sess := m.Load(c.Request.Context(), id)
		c.Set(contextKey, sess)

		BeforeWrite(c, func() {
			if c.Request.Method == http.MethodGet && c.FullPath() != "" && !IsAjax(c.Request) {
				sess.Put(previousURLKey, FullURL(c.Request))
			}
			if err := m.Save(c.Request.Context(), sess); err != nil {
				m.log.Error("session save failed", "error", err)
				return
			}
			http.SetCookie(c.Writer, m.cookieFor(sess))
		})
		c.Next()
	}
}

// IsAjax reports whether the request was sent by a script rather than a page load.
func IsAjax(r *http.Request) bool {
	return r.Header.Get("X-Requested-With") == "XMLHttpRequest"
}

// FullURL rebuilds the absolute request URL.
func FullURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// BackURL is where "go back" leads: the Referer when it points at this host, else the last
// page stored by StartSession, else "/".
func BackURL(c *gin.Context) string {
	if ref := c.Request.Referer(); ref != "" {
		if u, err := url.Parse(ref); err == nil && u.Host == c.Request.Host {
			return ref
		}
	}
	if sess := From(c); sess != nil {
		if prev := sess.PreviousURL(); prev != "" {
			return prev
		}
	}
	return "/"
}
