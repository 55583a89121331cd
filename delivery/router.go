package delivery

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the console's HTTP surface on top of the app dependencies.
func NewRouter(deps AppDependencies) http.Handler {
	r := chi.NewRouter()

	h := &HTTPEndpoint{
		app: deps,
	}

	// --- Global Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- Static File Server ---
	fileServer := http.FileServer(http.FS(staticFiles()))
	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	r.Get("/error", h.errorHandler)

	r.Group(func(r chi.Router) {
		r.Use(h.signalMiddleware)
		r.Use(deps.ConsoleMiddleware)

		// --- Session Routes ---
		r.Get("/logout", h.logoutHandler)
		r.Post("/logout", h.logoutHandler)
		r.Get("/auth/provider", h.providerHandler)
		r.Get("/api/session", h.sessionHandler)
		r.Post("/api/login", h.apiLoginHandler)
		r.Post("/api/signup", h.apiSignupHandler)

		// --- Guarded Views ---
		r.Group(func(r chi.Router) {
			r.Use(h.guardMiddleware)
			r.Get("/login-page", h.loginHandler)
			r.Post("/login-page", h.loginSubmitHandler)
			r.Get("/admin", h.adminIndexHandler)
			r.Get("/admin/profile", h.profileHandler)
			r.Post("/admin/profile", h.profileSubmitHandler)
			r.Get("/admin/*", h.dashboardHandler)

			// Everything else the table allows is a placeholder view; the guard
			// answers 404 for paths outside the table.
			r.Get("/", h.homeHandler)
			r.Get("/*", h.homeHandler)
		})
	})

	return r
}
