package fakeapp

import (
	"bytes"
	"embed"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/flosch/pongo2/v6"
	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templateFS embed.FS

// embedLoader serves pongo2 templates from the embedded templates directory.
type embedLoader struct{}

func (embedLoader) Abs(_, name string) string {
	return path.Clean(name)
}

func (embedLoader) Get(name string) (io.Reader, error) {
	data, err := templateFS.ReadFile(path.Join("templates", name))
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// renderer compiles every page template once at startup.
type renderer struct {
	pages map[string]*pongo2.Template
}

var pageNames = []string{"index", "login", "totp", "dashboard", "admin", "denied", "notfound"}

func newRenderer() (*renderer, error) {
	set := pongo2.NewSet("fakeapp", embedLoader{})
	r := &renderer{pages: make(map[string]*pongo2.Template, len(pageNames))}
	for _, name := range pageNames {
		tpl, err := set.FromFile(name + ".html")
		if err != nil {
			return nil, fmt.Errorf("failed to compile template %s: %w", name, err)
		}
		r.pages[name] = tpl
	}
	return r, nil
}

func (r *renderer) HTML(c *gin.Context, code int, name string, data gin.H) {
	tpl, ok := r.pages[name]
	if !ok {
		c.String(http.StatusInternalServerError, "template not found: %s", name)
		return
	}
	ctx := pongo2.Context{}
	for k, v := range data {
		ctx[k] = v
	}
	if sess := sessionFrom(c); sess != nil {
		ctx["user"] = sess
	}

	var buf bytes.Buffer
	if err := tpl.ExecuteWriter(ctx, &buf); err != nil {
		c.String(http.StatusInternalServerError, "template execution error: %v", err)
		return
	}
	c.Data(code, "text/html; charset=utf-8", buf.Bytes())
}
