// Package exceptions turns errors attached to a gin context into responses. Handlers call
// Abort instead of writing error bodies themselves; the Handler middleware then picks a
// status specific renderer, lets responders adjust the outcome and falls back to a default
// JSON or plain text body.
package exceptions

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HTTPError carries a status code through c.Errors.
type HTTPError struct {
	Status  int
	Message string
	Err     error
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return StatusText(e.Status)
}

func (e *HTTPError) Unwrap() error { return e.Err }

func (e *HTTPError) StatusCode() int { return e.Status }

// New builds an HTTPError with a client facing message.
func New(status int, message string) *HTTPError {
	return &HTTPError{Status: status, Message: message}
}

// Abort stops the chain and records err with status for the Handler. Nothing is written.
func Abort(c *gin.Context, status int, err error) {
	var he *HTTPError
	if !errors.As(err, &he) || he.Status != status {
		he = &HTTPError{Status: status, Err: err}
	}
	_ = c.Error(he)
	c.Abort()
}

// StatusText extends http.StatusText with 419.
func StatusText(status int) string {
	if status == 419 {
		return "Page Expired"
	}
	return http.StatusText(status)
}

// RenderFunc writes a response for a status. It returns false to fall through.
type RenderFunc func(c *gin.Context, err error) bool

// RespondFunc sees every error response before it is written and may replace it by
// writing itself, in which case it returns true.
type RespondFunc func(c *gin.Context, status int, err error) bool

// Handler maps errors to responses.
type Handler struct {
	log        *slog.Logger
	renderers  map[int][]RenderFunc
	responders []RespondFunc
}

func NewHandler(log *slog.Logger) *Handler {
	return &Handler{log: log, renderers: make(map[int][]RenderFunc)}
}

// Render registers fn for errors resolving to status.
func (h *Handler) Render(status int, fn RenderFunc) *Handler {
	h.renderers[status] = append(h.renderers[status], fn)
	return h
}

// Respond registers fn for every error response.
func (h *Handler) Respond(fn RespondFunc) *Handler {
	h.responders = append(h.responders, fn)
	return h
}

// Middleware handles errors left by the rest of the chain when nothing was written.
func (h *Handler) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err
		h.Handle(c, StatusOf(err), err)
	}
}

// Handle writes the response for err.
func (h *Handler) Handle(c *gin.Context, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", c.Request.Method, "path", c.Request.URL.Path, "status", status, "error", err)
	}
	for _, fn := range h.responders {
		if fn(c, status, err) {
			return
		}
	}
	for _, fn := range h.renderers[status] {
		if fn(c, err) {
			return
		}
	}
	Default(c, status, err)
}

// StatusOf resolves the status for err: HTTPError and any error with a StatusCode method
// carry their own, missing records are 404 and the rest 500.
func StatusOf(err error) int {
	var sc interface{ StatusCode() int }
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// Default writes {"message": ...} for clients that want JSON and plain text otherwise.
// Server errors never expose the underlying error.
func Default(c *gin.Context, status int, err error) {
	msg := StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	if WantsJSON(c.Request) {
		c.JSON(status, gin.H{"message": msg})
		return
	}
	c.String(status, msg)
}

// WantsJSON reports whether the client asked for JSON rather than a page. Inertia requests
// expect page objects and are not JSON clients in this sense.
func WantsJSON(r *http.Request) bool {
	if r.Header.Get("X-Inertia") != "" {
		return false
	}
	if strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "/json") || strings.Contains(accept, "+json")
}
