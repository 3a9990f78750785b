package session

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// XSRFCookie is readable by scripts, which echo it back in the X-XSRF-TOKEN header.
const XSRFCookie = "XSRF-TOKEN"

// TokenMismatchError is raised for state-changing requests without a valid CSRF token.
type TokenMismatchError struct{}

func (TokenMismatchError) Error() string { return "CSRF token mismatch." }

// StatusCode is the "page expired" status.
func (TokenMismatchError) StatusCode() int { return 419 }

var ErrTokenMismatch = TokenMismatchError{}

// ValidateCsrfToken rejects non-read requests whose token does not match the session token.
// Paths in except (a trailing "*" matches a prefix) are not checked. enc decrypts the
// X-XSRF-TOKEN header; pass nil when cookies are not encrypted.
func ValidateCsrfToken(m *Manager, enc *Encrypter, except ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := From(c)
		if sess == nil {
			panic("session: ValidateCsrfToken requires StartSession")
		}
		if isReading(c.Request) || excepted(c.Request.URL.Path, except) || tokensMatch(c, sess, enc) {
			BeforeWrite(c, func() {
				http.SetCookie(c.Writer, &http.Cookie{
					Name:     XSRFCookie,
					Value:    sess.Token(),
					Path:     "/",
					MaxAge:   int(m.lifetime.Seconds()),
					Secure:   m.secure,
					SameSite: http.SameSiteLaxMode,
				})
			})
			c.Next()
			return
		}
		_ = c.Error(ErrTokenMismatch)
		c.Abort()
	}
}

func isReading(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func excepted(path string, except []string) bool {
	for _, e := range except {
		if prefix, ok := strings.CutSuffix(e, "*"); ok {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		} else if path == e {
			return true
		}
	}
	return false
}

func tokensMatch(c *gin.Context, sess *Session, enc *Encrypter) bool {
	want := sess.GetString(tokenKey)
	if want == "" {
		return false
	}
	got := c.PostForm("_token")
	if got == "" {
		got = c.GetHeader("X-CSRF-TOKEN")
	}
	if got == "" {
		if header := c.GetHeader("X-XSRF-TOKEN"); header != "" {
			if enc == nil {
				got = header
			} else if plain, err := enc.Decrypt(header, XSRFCookie); err == nil {
				got = plain
			}
		}
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
