package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	authzhttp "github.com/opsledger/opsledger/internal/authz/http"
	"github.com/opsledger/opsledger/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger       *slog.Logger
	Config       *Config
	AuthzHandler *authzhttp.Handler
	Metrics      *observability.Metrics
}

// NewRouter constructs the chi.Router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/authz", func(r chi.Router) {
		r.Use(authzhttp.Authenticate(params.Logger))
		params.AuthzHandler.MountRoutes(r)
	})

	return r
}
