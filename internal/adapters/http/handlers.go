package web

import (
	"errors"
	"net/http"

	"github.com/gorilla/csrf"
	"go.uber.org/zap"

	"signup/internal/adapters/http/middleware"
	"signup/internal/application/controller"
)

// registerRoutes wires the visitor-facing routes. Every form post runs one
// controller operation and redirects back to the page (post/redirect/get).
func (a *app) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", a.handleIndex)
	mux.HandleFunc("GET /activities/view", a.handleCatalogFragment)

	mux.HandleFunc("POST /login/open", a.command("open_login", func(c *controller.Controller, r *http.Request) <-chan struct{} {
		return c.OpenLogin()
	}))
	mux.HandleFunc("POST /register/open", a.command("open_register", func(c *controller.Controller, r *http.Request) <-chan struct{} {
		return c.OpenRegister(r.FormValue("activity"))
	}))
	mux.HandleFunc("POST /modal/close", a.command("close_modal", func(c *controller.Controller, r *http.Request) <-chan struct{} {
		return c.CloseModal()
	}))
	mux.HandleFunc("POST /login", a.command("login", func(c *controller.Controller, r *http.Request) <-chan struct{} {
		return c.Login(r.FormValue("email"), r.FormValue("password"))
	}))
	mux.HandleFunc("POST /logout", a.command("logout", func(c *controller.Controller, r *http.Request) <-chan struct{} {
		return c.Logout()
	}))
	mux.HandleFunc("POST /register", a.command("register", func(c *controller.Controller, r *http.Request) <-chan struct{} {
		return c.Register(r.FormValue("activity"), r.FormValue("email"))
	}))
	mux.HandleFunc("POST /unregister", a.command("unregister", func(c *controller.Controller, r *http.Request) <-chan struct{} {
		return c.Unregister(r.FormValue("activity"), r.FormValue("email"))
	}))
}

// internalError logs the error and returns a generic 500 to the client.
func (a *app) internalError(w http.ResponseWriter, err error) {
	a.log.Error("internal_error", zap.Error(err))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// handleIndex renders the full page for the visitor's current view.
func (a *app) handleIndex(w http.ResponseWriter, r *http.Request) {
	a.renderView(w, r, "page")
}

// handleCatalogFragment renders only the activities list.
func (a *app) handleCatalogFragment(w http.ResponseWriter, r *http.Request) {
	a.renderView(w, r, "catalog")
}

func (a *app) renderView(w http.ResponseWriter, r *http.Request, name string) {
	v, ok := middleware.GetVisitorFromContext(r.Context())
	if !ok {
		a.internalError(w, errors.New("no visitor in request context"))
		return
	}
	ctx, cancel := a.waitContext(r)
	defer cancel()

	// A slow initial load renders the loading state rather than blocking.
	if err := v.Controller.Wait(ctx, v.Controller.Ready()); err != nil && !errors.Is(err, ctx.Err()) {
		a.internalError(w, err)
		return
	}
	view, err := v.Controller.Snapshot(ctx)
	if err != nil {
		a.internalError(w, err)
		return
	}

	if s := refreshSeconds(reloadIn(view)); s != "" {
		w.Header().Set("Refresh", s)
	}
	if err := a.pages.render(w, name, newPageData(view, csrf.Token(r))); err != nil {
		a.internalError(w, err)
	}
}

// command adapts a controller operation to a form post. The response waits
// for the operation (and any follow-up catalog fetch) so the redirected GET
// shows its outcome.
func (a *app) command(name string, op func(*controller.Controller, *http.Request) <-chan struct{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := middleware.GetVisitorFromContext(r.Context())
		if !ok {
			a.internalError(w, errors.New("no visitor in request context"))
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form submission", http.StatusBadRequest)
			return
		}

		ctx, cancel := a.waitContext(r)
		defer cancel()
		if err := v.Controller.Wait(ctx, op(v.Controller, r)); err != nil {
			a.log.Warn("command_wait_failed", zap.String("command", name), zap.String("visitor", v.ID), zap.Error(err))
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}
