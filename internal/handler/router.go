package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/murphlabs/murph/backend/internal/handler/auth"
	"github.com/murphlabs/murph/backend/internal/handler/listing"
	"github.com/murphlabs/murph/backend/internal/handler/review"
	"github.com/murphlabs/murph/backend/internal/handler/session"
	"github.com/murphlabs/murph/backend/internal/handler/wallet"
	middlewarePkg "github.com/murphlabs/murph/backend/internal/middleware"
	"github.com/murphlabs/murph/backend/pkg/utils"
)

// Routes bundles the handlers the router mounts under /api.
type Routes struct {
	Listings *listing.Handler
	Auth     *auth.Handler
	Sessions *session.Handler
	Reviews  *review.Handler
	Wallet   *wallet.Handler
}

// NewRouter wires HTTP routes to core services.
func NewRouter(routes Routes, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(middlewarePkg.Auth)

		if routes.Listings != nil {
			routes.Listings.RegisterRoutes(api)
		}
		if routes.Auth != nil {
			routes.Auth.RegisterRoutes(api)
		}
		if routes.Sessions != nil {
			routes.Sessions.RegisterRoutes(api)
		}
		if routes.Reviews != nil {
			routes.Reviews.RegisterRoutes(api)
		}
		if routes.Wallet != nil {
			routes.Wallet.RegisterRoutes(api)
		}
	})

	return r
}
