// Package httpapi assembles the chi router and its middleware chain.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"clipforge/internal/http/handlers"
	"clipforge/internal/infra"
	"clipforge/internal/middleware"
)

const rateWindow = time.Minute

// Options carries the router's cross-cutting configuration.
type Options struct {
	Config        *infra.Config
	Logger        infra.Logger
	CountryLookup middleware.CountryLookup
	// StaticDir serves filesystem object storage under /static when set.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	cfg := opts.Config
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(cfg.AllowedOrigins),
		middleware.I18N("en", opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)

	// The provider calls back here; it authenticates by task id, not JWT.
	r.Post("/v1/webhooks/provider", app.ProviderWebhook)

	r.Route("/v1/videos", func(r chi.Router) {
		r.Use(middleware.OptionalAuthJWT(cfg.JWTSecret))
		r.With(middleware.RateLimit(cfg.RateLimitPerMin, rateWindow)).Post("/", app.VideosSubmit)
		r.Get("/", app.VideosList)
		r.Get("/{id}", app.VideoStatus)
		r.Delete("/{id}", app.VideoDelete)
	})

	r.Route("/v1/uploads", func(r chi.Router) {
		r.Use(middleware.OptionalAuthJWT(cfg.JWTSecret))
		r.With(middleware.RateLimit(cfg.RateLimitPerMin, rateWindow)).Post("/", app.UploadCreate)
		r.Delete("/", app.UploadDelete)
	})

	r.Route("/v1/points", func(r chi.Router) {
		r.Use(middleware.AuthJWT(cfg.JWTSecret))
		r.Get("/", app.PointsAccount)
		r.Get("/transactions", app.PointsTransactions)
		r.Post("/promo", app.PointsRedeemPromo)
		r.Get("/referral", app.PointsReferralCode)
		r.Post("/referral", app.PointsApplyReferral)
		r.Post("/purchase", app.PointsPurchase)
	})

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fs.ServeHTTP)
	}

	return r
}
