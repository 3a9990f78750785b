package session

import (
	"bufio"
	"net"

	"github.com/gin-gonic/gin"
)

// hookWriter runs registered hooks once, right before the first byte or header of the
// response goes out. WriteHeader only records the status in gin, so it does not fire.
type hookWriter struct {
	gin.ResponseWriter
	hooks []func()
	fired bool
}

func (w *hookWriter) fire() {
	if w.fired {
		return
	}
	w.fired = true
	for i := len(w.hooks) - 1; i >= 0; i-- {
		w.hooks[i]()
	}
}

func (w *hookWriter) WriteHeaderNow() {
	w.fire()
	w.ResponseWriter.WriteHeaderNow()
}

func (w *hookWriter) Write(b []byte) (int, error) {
	w.fire()
	return w.ResponseWriter.Write(b)
}

func (w *hookWriter) WriteString(s string) (int, error) {
	w.fire()
	return w.ResponseWriter.WriteString(s)
}

func (w *hookWriter) Flush() {
	w.fire()
	w.ResponseWriter.Flush()
}

func (w *hookWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.fire()
	return w.ResponseWriter.Hijack()
}

func writerOf(c *gin.Context) *hookWriter {
	if w, ok := c.Writer.(*hookWriter); ok {
		return w
	}
	w := &hookWriter{ResponseWriter: c.Writer}
	c.Writer = w
	return w
}

// BeforeWrite registers fn to run before the response headers are sent. Hooks run in
// reverse registration order, so middleware registered first sees the headers last.
func BeforeWrite(c *gin.Context, fn func()) {
	w := writerOf(c)
	w.hooks = append(w.hooks, fn)
}

// Hooks installs the hook writer and fires pending hooks when the handlers return without
// writing, e.g. after a redirect that only set a status. Register it before any middleware
// that calls BeforeWrite.
func Hooks() gin.HandlerFunc {
	return func(c *gin.Context) {
		w := writerOf(c)
		c.Next()
		w.fire()
	}
}
