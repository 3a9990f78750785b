package exceptions

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"ultrashots/pkg/logger"
)

type expired struct{}

func (expired) Error() string   { return "expired" }
func (expired) StatusCode() int { return 419 }

func newEngine(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(h.Middleware())
	r.GET("/missing", func(c *gin.Context) {
		Abort(c, http.StatusNotFound, fmt.Errorf("load customer: %w", gorm.ErrRecordNotFound))
	})
	r.GET("/record", func(c *gin.Context) { _ = c.Error(gorm.ErrRecordNotFound) })
	r.GET("/forbidden", func(c *gin.Context) { Abort(c, http.StatusForbidden, New(http.StatusForbidden, "This action is unauthorized.")) })
	r.GET("/expired", func(c *gin.Context) { _ = c.Error(expired{}); c.Abort() })
	r.GET("/boom", func(c *gin.Context) { Abort(c, http.StatusInternalServerError, errors.New("db password leaked")) })
	r.GET("/written", func(c *gin.Context) {
		_ = c.Error(errors.New("ignored"))
		c.String(http.StatusAccepted, "done")
	})
	r.NoRoute(func(c *gin.Context) { Abort(c, http.StatusNotFound, nil) })
	return r
}

func get(r http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, 404, StatusOf(fmt.Errorf("wrap: %w", gorm.ErrRecordNotFound)))
	assert.Equal(t, 419, StatusOf(expired{}))
	assert.Equal(t, 403, StatusOf(fmt.Errorf("wrap: %w", New(403, "no"))))
	assert.Equal(t, 500, StatusOf(errors.New("x")))
}

func TestHandler_Defaults(t *testing.T) {
	r := newEngine(NewHandler(logger.Discard()))

	rec := get(r, "/forbidden", "Accept", "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"message":"This action is unauthorized."}`, rec.Body.String())

	rec = get(r, "/forbidden")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "This action is unauthorized.", rec.Body.String())

	rec = get(r, "/boom", "Accept", "application/json")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"Internal Server Error"}`, rec.Body.String())

	rec = get(r, "/record")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(r, "/written")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "done", rec.Body.String())
}

func TestHandler_RenderAndRespond(t *testing.T) {
	var seen []int
	h := NewHandler(logger.Discard()).
		Render(http.StatusNotFound, func(c *gin.Context, err error) bool {
			c.String(http.StatusNotFound, "NotFound page")
			return true
		}).
		Respond(func(c *gin.Context, status int, err error) bool {
			seen = append(seen, status)
			if status == 419 {
				c.Redirect(http.StatusFound, "/back")
				return true
			}
			return false
		})
	r := newEngine(h)

	for _, path := range []string{"/missing", "/record", "/nowhere"} {
		rec := get(r, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, "NotFound page", rec.Body.String(), path)
	}

	rec := get(r, "/expired")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/back", rec.Header().Get("Location"))

	assert.Equal(t, []int{404, 404, 404, 419}, seen)
}

func TestWantsJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
	assert.True(t, WantsJSON(req))

	req = httptest.NewRequest(http.MethodGet, "/customers", nil)
	assert.False(t, WantsJSON(req))
	req.Header.Set("Accept", "application/json")
	assert.True(t, WantsJSON(req))
	req.Header.Set("X-Inertia", "true")
	assert.False(t, WantsJSON(req))
}
