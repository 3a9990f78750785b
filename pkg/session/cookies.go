package session

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

const queuedCookiesKey = "session.queued_cookies"

// EncryptCookies decrypts incoming cookies and encrypts outgoing ones. Cookies named in
// except pass through untouched; incoming cookies that fail to decrypt are dropped.
func EncryptCookies(enc *Encrypter, except ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var kept []string
		for _, ck := range c.Request.Cookies() {
			if slices.Contains(except, ck.Name) {
				kept = append(kept, ck.String())
				continue
			}
			plain, err := enc.Decrypt(ck.Value, ck.Name)
			if err != nil {
				continue
			}
			kept = append(kept, (&http.Cookie{Name: ck.Name, Value: plain}).String())
		}
		if len(kept) > 0 {
			c.Request.Header.Set("Cookie", strings.Join(kept, "; "))
		} else {
			c.Request.Header.Del("Cookie")
		}

		BeforeWrite(c, func() {
			h := c.Writer.Header()
			lines := h.Values("Set-Cookie")
			if len(lines) == 0 {
				return
			}
			out := make([]string, 0, len(lines))
			for _, line := range lines {
				ck, err := http.ParseSetCookie(line)
				if err != nil || ck.Value == "" || ck.MaxAge < 0 || slices.Contains(except, ck.Name) {
					out = append(out, line)
					continue
				}
				sealed, err := enc.Encrypt(ck.Value, ck.Name)
				if err != nil {
					out = append(out, line)
					continue
				}
				ck.Value = sealed
				out = append(out, ck.String())
			}
			h["Set-Cookie"] = out
		})
		c.Next()
	}
}

// QueueCookie schedules ck for the response. Queued cookies are written by
// AddQueuedCookiesToResponse.
func QueueCookie(c *gin.Context, ck *http.Cookie) {
	var list []*http.Cookie
	if v, ok := c.Get(queuedCookiesKey); ok {
		list, _ = v.([]*http.Cookie)
	}
	c.Set(queuedCookiesKey, append(list, ck))
}

// ForgetCookie queues an expired cookie named name.
func ForgetCookie(c *gin.Context, name string) {
	QueueCookie(c, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
}

// AddQueuedCookiesToResponse writes queued cookies before the headers are sent.
func AddQueuedCookiesToResponse() gin.HandlerFunc {
	return func(c *gin.Context) {
		BeforeWrite(c, func() {
			v, ok := c.Get(queuedCookiesKey)
			if !ok {
				return
			}
			list, _ := v.([]*http.Cookie)
			for _, ck := range list {
				http.SetCookie(c.Writer, ck)
			}
		})
		c.Next()
	}
}
