// cmd/web/main.go
//
// recordapi – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (system-wide file → .env fallback).
//
//  2. Start the daily rotating logger (tees to console in a TTY).
//
//  3. Load and validate configuration (YAML + env overlays, Vault
//     secret resolution).
//
//  4. Open the document store (memory for development, MySQL for
//     production) and optionally the GeoLite2 database.
//
//  5. Build the chi router: in-flight gauge, security headers,
//     request-info enrichment, rate limiting, then one generic CRUD
//     controller per registered collection, plus /metrics and
//     /healthz.  Unmatched routes flow through the same error
//     normalizer as everything else.
//
//  6. Serve with hardened timeouts.
package main

import (
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanizio/recordapi/internal/apperr"
	"github.com/yanizio/recordapi/internal/collection"
	"github.com/yanizio/recordapi/internal/config"
	"github.com/yanizio/recordapi/internal/controller"
	"github.com/yanizio/recordapi/internal/envelope"
	"github.com/yanizio/recordapi/internal/logger"
	"github.com/yanizio/recordapi/internal/middleware"
	"github.com/yanizio/recordapi/internal/requestinfo"
	"github.com/yanizio/recordapi/internal/server"
	"github.com/yanizio/recordapi/internal/store"
	"github.com/yanizio/recordapi/internal/store/memstore"
	"github.com/yanizio/recordapi/internal/store/sqlstore"

	_ "github.com/yanizio/recordapi/components/company" // registered collections
)

const serverEnvPath = "/usr/local/etc/recordapi/global.env"

// loadEnv prefers the system-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logOut, err := logger.New(cfg.Paths.Root, runningInTTY(), cfg.Development())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}

	//
	// ── 1.  Document store ──────────────────────────────────────────────
	//
	openCollection, closeStore, err := openStore(cfg)
	if err != nil {
		logOut.Fatalw("open store", "driver", cfg.Store.Driver, "err", err)
	}
	defer closeStore()
	logOut.Infow("store online", "driver", cfg.Store.Driver)

	//
	// ── 2.  Optional GeoLite2 database ──────────────────────────────────
	//
	if cfg.Geo.DBPath != "" {
		if err := requestinfo.InitGeo(cfg.Geo.DBPath); err != nil {
			logOut.Warnw("geo database unavailable", "path", cfg.Geo.DBPath, "err", err)
		}
	}

	//
	// ── 3.  Router: middleware chain + registered collections ──────────
	//
	mode := apperr.ModeProduction
	if cfg.Development() {
		mode = apperr.ModeDevelopment
	}
	dispatcher := &controller.Dispatcher{Norm: &apperr.Normalizer{Mode: mode}}

	r := chi.NewRouter()
	r.Use(middleware.InFlight)
	r.Use(middleware.Security)
	r.Use(requestinfo.Enrich)
	limiter := middleware.NewLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	defer limiter.Stop()
	r.Use(limiter.Middleware(dispatcher))

	for _, b := range collection.All() {
		ctrl := controller.New(openCollection(b.Descriptor), b.Schema, b.Options...)
		r.Mount("/"+b.Descriptor.Collection, ctrl.Routes(dispatcher))
		logOut.Infow("collection mounted", "collection", b.Descriptor.Collection)
	}

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		envelope.WriteSuccess(w, http.StatusOK, "OK", nil)
	})
	r.NotFound(dispatcher.NotFound())
	r.MethodNotAllowed(dispatcher.NotFound())

	//
	// ── 4.  Serve ───────────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, r)
	logOut.Infow("listening", "addr", cfg.HTTP.ListenAddr, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil {
		logOut.Fatalw("http server", "err", err)
	}
}

// openStore builds the configured backend and returns a collection
// opener plus a shutdown func.
func openStore(cfg *config.Config) (func(*store.Descriptor) store.Collection, func(), error) {
	switch cfg.Store.Driver {
	case "mysql":
		dsn := cfg.Store.DSN
		if cfg.Store.DSNPassword != "" {
			// The DSN template carries one %s verb for the password.
			dsn = dsnWithPassword(cfg.Store.DSN, cfg.Store.DSNPassword)
		}
		db, err := sqlstore.Open(dsn)
		if err != nil {
			return nil, nil, err
		}
		st := sqlstore.New(db)
		return func(d *store.Descriptor) store.Collection { return st.Collection(d) },
			func() { _ = db.Close() }, nil
	default:
		st := memstore.New()
		return func(d *store.Descriptor) store.Collection { return st.Collection(d) },
			func() {}, nil
	}
}

func dsnWithPassword(template, password string) string {
	return strings.Replace(template, "%s", password, 1)
}
