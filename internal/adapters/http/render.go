package web

import (
	"bytes"
	"html/template"
	"io/fs"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	"signup/internal/application/controller"
	"signup/internal/application/projections"
	"signup/internal/domain/banner"
	"signup/internal/domain/modal"
)

// LoginNoticeText tells anonymous visitors why roster controls are missing.
const LoginNoticeText = "Teachers must log in to register students"

// mdRenderer is a goldmark instance configured for safe HTML output.
// Raw HTML in markdown input is escaped (WithUnsafe is NOT set), preventing XSS.
var mdRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHTML.WithHardWraps(),
	),
)

// renderMarkdown converts an activity description to HTML.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

// pageData is the template model for the page and the catalog fragment.
type pageData struct {
	CSRFToken    string
	Catalog      projections.CatalogView
	CatalogError string
	Loading      bool
	Banner       banner.Message
	Modal        modal.State
	ModalMessage banner.Message
	LoginNotice  string
}

// newPageData maps a controller snapshot onto the template model.
// INVARIANT: Pure; equal snapshots give equal models
func newPageData(v controller.View, csrfToken string) pageData {
	d := pageData{
		CSRFToken:    csrfToken,
		Catalog:      projections.BuildCatalogView(v.Catalog, v.Session),
		CatalogError: v.CatalogError,
		Loading:      !v.CatalogLoaded,
		Banner:       v.Banner,
		Modal:        v.Modal,
		ModalMessage: v.ModalMessage,
	}
	if !v.Session.Authenticated {
		d.LoginNotice = LoginNoticeText
	}
	return d
}

// pageRenderer holds the parsed templates.
type pageRenderer struct {
	tpl *template.Template
}

func newPageRenderer(files fs.FS) (*pageRenderer, error) {
	funcMap := template.FuncMap{
		"renderMarkdown": renderMarkdown,
	}
	tpl, err := template.New("layout.html").Funcs(funcMap).ParseFS(files, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &pageRenderer{tpl: tpl}, nil
}

// render executes a named template into a buffer so a failing template
// never leaves a half-written page.
func (p *pageRenderer) render(w http.ResponseWriter, name string, data pageData) error {
	var buf bytes.Buffer
	if err := p.tpl.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, err := buf.WriteTo(w)
	return err
}

// reloadIn returns when the page should reload to show a scheduled
// dismissal. While a modal without its own close timer is open the reload is
// held back so typed input survives; the next render shows the banner gone.
func reloadIn(v controller.View) time.Duration {
	if v.Modal.IsOpen() {
		return v.ModalCloseIn
	}
	return v.DismissIn
}

// refreshSeconds rounds a pending dismissal up to whole seconds for the
// Refresh header, so the reload lands after the dismissal fired.
func refreshSeconds(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
