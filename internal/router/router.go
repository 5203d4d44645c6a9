package router

import (
	"net/http"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/auth"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/handler"
	mw "github.com/Jonathanamir1/mixedbyyonatan/internal/middleware"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth       *handler.AuthHandler
	Submission *handler.SubmissionHandler
	Dashboard  *handler.DashboardHandler
	// Files is nil when assets are served by an external bucket.
	Files *handler.FilesHandler
}

func New(sessions auth.SessionVerifier, authLimit *mw.RateLimiter, h Handlers, log *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger(log))
	r.Use(mw.Recovery(log))
	r.Use(mw.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	if h.Files != nil {
		r.Get("/files/*", h.Files.Download)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Group(func(r chi.Router) {
			if authLimit != nil {
				r.Use(authLimit.Handler)
			}
			r.Post("/auth/signup", h.Auth.SignUp)
			r.Post("/auth/login", h.Auth.Login)
			r.Get("/auth/{provider}", h.Auth.FederatedStart)
			r.Get("/auth/{provider}/callback", h.Auth.FederatedCallback)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(sessions))

			r.Post("/auth/logout", h.Auth.Logout)
			r.Get("/auth/me", h.Auth.Me)
			r.Get("/session", h.Auth.Session)
			r.Get("/dashboard", h.Dashboard.Dashboard)
			r.Get("/submission", h.Submission.Get)
			r.Post("/submission", h.Submission.Create)
		})
	})

	return r
}
