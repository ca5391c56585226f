package httpapi

import (
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"mediatools/internal/http/handlers"
	"mediatools/internal/middleware"
)

// Options configures the middleware chain around the handlers.
type Options struct {
	JWTSecret       string
	JWTIssuer       string
	AdminToken      string
	AllowedOrigins  []string
	RateLimitPerMin int
	RateLimitBurst  int
	Country         middleware.CountryLookup

	// TrustedProxies may set the client address via X-Forwarded-For.
	TrustedProxies []netip.Prefix

	// FilesDir is served under FilesPrefix when non-empty.
	FilesDir    string
	FilesPrefix string
}

func NewRouter(app *handlers.App, logger zerolog.Logger, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP(opts.TrustedProxies),
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/plans", app.ListPlans)

	r.Group(func(r chi.Router) {
		r.Use(
			middleware.AuthOptional(opts.JWTSecret, opts.JWTIssuer),
			middleware.Identity(opts.Country),
		)

		r.Get("/v1/me/quota", app.MeQuota)
		r.Get("/v1/jobs/{id}", app.JobStatus)
		r.Get("/v1/media/info", app.MediaInfo)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(opts.RateLimitPerMin, opts.RateLimitBurst, 10*time.Minute))
			r.Post("/v1/downloads", app.Download)
			r.Post("/v1/convert", app.Convert)
			r.Route("/v1/tools", func(r chi.Router) {
				r.Post("/qr", app.QR)
				r.Post("/hash", app.Hash)
				r.Post("/palette", app.Palette)
			})
		})
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(middleware.AdminToken(opts.AdminToken))
		r.Get("/jobs/stats", app.JobStats)
	})

	if opts.FilesDir != "" {
		prefix := "/" + strings.Trim(opts.FilesPrefix, "/")
		if prefix == "/" {
			prefix = "/files"
		}
		fs := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(opts.FilesDir)))
		r.Get(prefix+"/*", fs.ServeHTTP)
	}

	return r
}
