package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"r53gate/internal/auth"
	"r53gate/internal/config"
	"r53gate/internal/database"
	"r53gate/internal/handler"
	"r53gate/internal/metrics"
	"r53gate/internal/middleware"
	"r53gate/internal/service"
	"r53gate/web"
)

const maxJSONBody = 1 << 20

// Services are the collaborators the router dispatches to.
type Services struct {
	Users     handler.UserStore
	Audit     handler.AuditStore
	Health    handler.Pinger
	Tokens    *auth.TokenService
	Directory handler.Directory // nil disables directory login
	DNS       handler.DNS
	Importer  handler.Importer
	Static    fs.FS
	Gatherer  prometheus.Gatherer
}

func NewRouter(cfg *config.Config, svc Services, logger *slog.Logger) http.Handler {
	authH := handler.NewAuthHandler(svc.Users, svc.Tokens, svc.Directory, svc.Audit, logger)
	dnsH := handler.NewDNSHandler(svc.DNS, svc.Audit, logger)
	bulkH := handler.NewBulkHandler(svc.DNS, svc.Importer, svc.Audit, cfg.Server.UploadDir, cfg.Import.MaxUploadBytes, logger)
	auditH := handler.NewAuditHandler(svc.Audit, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.AccessLog(logger))
	r.Use(metrics.Middleware)
	r.Use(chimw.Recoverer) // below AccessLog: recovered panics are logged as 500
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handler.Health(svc.Health, logger))
	if svc.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(svc.Gatherer))
	}

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.MaxBodySize(maxJSONBody))
		r.Post("/signup", authH.Signup)
		r.Post("/login", authH.Login)
	})

	r.Route("/dns", func(r chi.Router) {
		r.Use(auth.RequireAuth(svc.Tokens, logger))

		r.Get("/hosted-zones", dnsH.HostedZones)
		r.Get("/records", dnsH.Records)
		r.Get("/audit", auditH.List)
		r.Post("/bulk-upload", bulkH.Upload)

		r.Group(func(r chi.Router) {
			r.Use(middleware.MaxBodySize(maxJSONBody))
			r.Post("/record", dnsH.CreateRecord)
			r.Put("/record", dnsH.UpdateRecord)
			r.Delete("/record", dnsH.DeleteRecord)
		})
	})

	if svc.Static != nil {
		spa := web.SPAHandler(svc.Static)
		r.NotFound(func(w http.ResponseWriter, req *http.Request) {
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				http.NotFound(w, req)
				return
			}
			spa.ServeHTTP(w, req)
		})
	}

	return r
}

// Start opens the database, builds every service from cfg and serves HTTP
// until ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, version string, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Init(reg, version); err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}

	db, err := database.Open(ctx, cfg.Database.DSN, web.MigrationsFS(), logger)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret, err = db.EnsureTokenSecret(ctx)
		if err != nil {
			return fmt.Errorf("failed to load token secret: %w", err)
		}
	}
	tokens, err := auth.NewTokenService(secret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("failed to init token service: %w", err)
	}

	client, err := service.NewRoute53Client(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("failed to init DNS service: %w", err)
	}
	dns := service.NewDNSService(client, cfg.HostedZones)
	importer := service.NewImporter(dns, cfg.Import.Workers, logger.With("component", "import"))

	var directory handler.Directory
	if cfg.LDAP.Enabled {
		directory = auth.NewLDAPClient(cfg.LDAP)
		logger.Info("LDAP authentication enabled", "url", cfg.LDAP.URL, "allowed_groups", len(cfg.LDAP.AllowedGroups))
		if cfg.InsecureLDAP() {
			logger.Warn("LDAP credentials are sent in cleartext; use ldaps:// or starttls")
		}
	}

	static, err := web.StaticFS(cfg.Server.StaticDir)
	if err != nil {
		return fmt.Errorf("failed to open static dir: %w", err)
	}

	router := NewRouter(cfg, Services{
		Users:     db,
		Audit:     db,
		Health:    db,
		Tokens:    tokens,
		Directory: directory,
		DNS:       dns,
		Importer:  importer,
		Static:    static,
		Gatherer:  reg,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// In-flight requests drain before the database is closed.
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown incomplete", "error", err)
		}
	}()

	logger.Info("r53gate server starting", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-drained
	logger.Info("server stopped")
	return nil
}
