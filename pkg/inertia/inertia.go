// Package inertia speaks the Inertia.js page protocol: full page loads get an HTML shell
// carrying the page object, Inertia visits get the page object as JSON.
package inertia

import (
	"embed"
	"encoding/json"
	"html/template"
	"maps"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ultrashots/pkg/session"
)

//go:embed templates/app.html
var templatesFS embed.FS

// Request and response headers of the protocol.
const (
	HeaderInertia          = "X-Inertia"
	HeaderVersion          = "X-Inertia-Version"
	HeaderLocation         = "X-Inertia-Location"
	HeaderPartialComponent = "X-Inertia-Partial-Component"
	HeaderPartialData      = "X-Inertia-Partial-Data"
	HeaderPartialExcept    = "X-Inertia-Partial-Except"
)

// Props are the page properties.
type Props map[string]any

// LazyProp is only evaluated when a partial reload asks for it by name.
type LazyProp func() any

// Page is the object handed to the client side router.
type Page struct {
	Component string `json:"component"`
	Props     Props  `json:"props"`
	URL       string `json:"url"`
	Version   string `json:"version"`
}

// Inertia renders pages.
type Inertia struct {
	appName  string
	manifest *Manifest
	root     *template.Template
	shared   Props
	sharedFn []func(c *gin.Context) Props
}

// New creates a renderer. manifest may be nil, in which case the asset version is empty.
func New(appName string, manifest *Manifest) (*Inertia, error) {
	root, err := template.ParseFS(templatesFS, "templates/app.html")
	if err != nil {
		return nil, err
	}
	return &Inertia{appName: appName, manifest: manifest, root: root, shared: Props{}}, nil
}

// Share adds a prop to every page.
func (i *Inertia) Share(key string, value any) { i.shared[key] = value }

// ShareFunc adds props computed per request. Later functions win on key conflicts.
func (i *Inertia) ShareFunc(fn func(c *gin.Context) Props) { i.sharedFn = append(i.sharedFn, fn) }

// Version is the current asset version.
func (i *Inertia) Version() string {
	if i.manifest == nil {
		return ""
	}
	return i.manifest.Version()
}

// IsInertia reports whether the request is an Inertia visit.
func IsInertia(c *gin.Context) bool { return c.GetHeader(HeaderInertia) == "true" }

// Middleware answers stale Inertia visits with 409 so the client reloads, and turns 302
// redirects after PUT, PATCH and DELETE into 303 so the browser follows them with GET.
func (i *Inertia) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Vary", HeaderInertia)
		if !IsInertia(c) {
			c.Next()
			return
		}
		if c.Request.Method == http.MethodGet && c.GetHeader(HeaderVersion) != i.Version() {
			if sess := session.From(c); sess != nil {
				sess.Reflash()
			}
			c.Header(HeaderLocation, session.FullURL(c.Request))
			c.AbortWithStatus(http.StatusConflict)
			return
		}
		session.BeforeWrite(c, func() {
			if c.Writer.Status() == http.StatusFound {
				switch c.Request.Method {
				case http.MethodPut, http.MethodPatch, http.MethodDelete:
					c.Writer.WriteHeader(http.StatusSeeOther)
				}
			}
		})
		c.Next()
	}
}

// Render responds with component and props.
func (i *Inertia) Render(c *gin.Context, component string, props Props) {
	i.RenderStatus(c, http.StatusOK, component, props)
}

// RenderStatus is Render with a custom status.
func (i *Inertia) RenderStatus(c *gin.Context, status int, component string, props Props) {
	page := i.page(c, component, props)
	if IsInertia(c) {
		c.Header(HeaderInertia, "true")
		c.JSON(status, page)
		return
	}

	raw, err := json.Marshal(page)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	var scripts, styles []string
	if i.manifest != nil {
		scripts, styles = i.manifest.Assets()
	}
	title := i.appName
	if t, ok := page.Props["title"].(string); ok && t != "" {
		title = t + " - " + i.appName
	}

	var sb strings.Builder
	if err := i.root.Execute(&sb, map[string]any{
		"Title":   title,
		"Page":    string(raw),
		"Scripts": scripts,
		"Styles":  styles,
	}); err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "text/html; charset=utf-8", []byte(sb.String()))
}

// Location sends the client to url with a full page visit.
func Location(c *gin.Context, url string) {
	if IsInertia(c) {
		c.Header(HeaderLocation, url)
		c.AbortWithStatus(http.StatusConflict)
		return
	}
	c.Redirect(http.StatusFound, url)
}

// Redirect issues the redirect an Inertia client expects after the request's method.
func Redirect(c *gin.Context, url string) {
	switch c.Request.Method {
	case http.MethodPut, http.MethodPatch, http.MethodDelete:
		c.Redirect(http.StatusSeeOther, url)
	default:
		c.Redirect(http.StatusFound, url)
	}
}

// Back redirects to the previous page.
func Back(c *gin.Context) { Redirect(c, session.BackURL(c)) }

func (i *Inertia) page(c *gin.Context, component string, props Props) Page {
	all := maps.Clone(i.shared)
	for _, fn := range i.sharedFn {
		maps.Copy(all, fn(c))
	}
	maps.Copy(all, props)

	partial := c.GetHeader(HeaderPartialComponent) == component
	only := splitHeader(c.GetHeader(HeaderPartialData))
	except := splitHeader(c.GetHeader(HeaderPartialExcept))

	out := make(Props, len(all))
	for k, v := range all {
		if partial {
			if len(only) > 0 && !only[k] && k != "errors" {
				continue
			}
			if except[k] {
				continue
			}
		}
		switch fn := v.(type) {
		case LazyProp:
			if !partial || !only[k] {
				continue
			}
			out[k] = fn()
		case func() any:
			out[k] = fn()
		default:
			out[k] = v
		}
	}
	return Page{Component: component, Props: out, URL: c.Request.URL.RequestURI(), Version: i.Version()}
}

func splitHeader(v string) map[string]bool {
	out := make(map[string]bool)
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out[p] = true
		}
	}
	return out
}
