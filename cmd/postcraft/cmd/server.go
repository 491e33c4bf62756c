package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/postcraft-hq/postcraft/api"
	"github.com/postcraft-hq/postcraft/csrf"
	"github.com/postcraft-hq/postcraft/guard"
	"github.com/postcraft-hq/postcraft/internal/util"
	"github.com/postcraft-hq/postcraft/ratelimit"
	"github.com/postcraft-hq/postcraft/storage"
	bboltstorage "github.com/postcraft-hq/postcraft/storage/bbolt"
	"github.com/postcraft-hq/postcraft/storage/memory"
	"github.com/postcraft-hq/postcraft/storage/postgres"
)

var (
	port             int
	dataDir          string
	storageBackend   string
	postgresDSN      string
	redisURL         string
	csrfSecret       string
	corsOrigins      string
	corsCredentials  bool
	trustedProxies   string
	tlsCert          string
	tlsKey           string
	selfSignedTLS    bool
	alertWebhookURL  string
	alertWebhookAuth string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if len(csrfSecret) < csrf.MinSecretLength {
			return fmt.Errorf("--csrf-secret must be at least %d bytes (generate one with `postcraft csrf-secret`)", csrf.MinSecretLength)
		}
		protector, err := csrf.New([]byte(csrfSecret))
		if err != nil {
			return err
		}
		defer protector.Destroy()

		repo, closeRepo, err := openRepository(ctx, storageBackend, dataDir, postgresDSN)
		if err != nil {
			return err
		}
		defer closeRepo()

		counters, closeCounters, err := openCounterStore(ctx, redisURL)
		if err != nil {
			return err
		}
		defer closeCounters()

		proxies, err := guard.ParseTrustedProxies(trustedProxies)
		if err != nil {
			return fmt.Errorf("invalid --trusted-proxies: %w", err)
		}

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		opts := []api.Option{
			api.WithLogger(logger),
			api.WithRateLimiter(ratelimit.NewLimiter(counters, nil), proxies),
			api.WithGuardMetrics(guard.NewMetrics(reg)),
			api.WithAlertFunc(func(e api.AlertEvent) {
				logger.Warn("alert", "type", string(e.Type), "message", e.Message,
					"count", e.Count, "threshold", e.Threshold)
			}),
			api.WithCORS(corsPolicy(corsOrigins, corsCredentials)),
		}
		if alertWebhookURL != "" {
			opts = append(opts, api.WithAlertWebhook(alertWebhookURL, alertWebhookAuth))
		}
		a := api.New(repo, protector, opts...)
		defer a.Close()

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Use(guard.SecurityHeaders)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		r.Mount("/api/v1", a.Router())

		tlsConfig, err := serverTLSConfig()
		if err != nil {
			return err
		}

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			TLSConfig:         tlsConfig,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			var err error
			if tlsConfig != nil {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		fmt.Printf("Starting server on port %d (storage: %s, tls: %t)...\n", port, storageBackend, tlsConfig != nil)

		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// corsPolicy builds the deployment's CORS policy. An empty origin list
// allows no cross-origin callers but preflights are still answered.
func corsPolicy(origins string, credentials bool) *guard.CORSPolicy {
	policy := guard.DefaultCORSPolicy(guard.ParseOrigins(origins))
	policy.AllowCredentials = credentials
	return policy
}

// openRepository opens the configured storage backend. The returned close
// function is always non-nil.
func openRepository(ctx context.Context, backend, dir, dsn string) (storage.Repository, func(), error) {
	switch backend {
	case "memory":
		return memory.NewRepository(), func() {}, nil
	case "bbolt":
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(dir, "postcraft.db"), nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open storage: %w", err)
		}
		return repo, func() { repo.Close() }, nil
	case "postgres":
		if dsn == "" {
			return nil, nil, errors.New("--postgres-dsn is required for postgres storage")
		}
		// Opening applies pending migrations.
		repo, err := postgres.NewRepositoryFromDSN(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q (want memory, bbolt or postgres)", backend)
	}
}

// openCounterStore returns Redis-backed counters when url is set, else an
// in-process store swept in the background until ctx ends.
func openCounterStore(ctx context.Context, url string) (ratelimit.Store, func(), error) {
	if url == "" {
		store := ratelimit.NewMemoryStore()
		go store.RunSweeper(ctx, time.Minute)
		return store, func() {}, nil
	}
	client, err := ratelimit.NewRedisClientFromURL(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return ratelimit.NewRedisStore(client), func() { client.Close() }, nil
}

func serverTLSConfig() (*tls.Config, error) {
	switch {
	case tlsCert != "" && tlsKey != "":
		cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
	case selfSignedTLS:
		cert, err := util.GenerateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		fmt.Println("Using self-signed runtime generated certificate for TLS")
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
	default:
		return nil, nil
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
	f := serverCmd.Flags()
	f.IntVarP(&port, "port", "p", 8080, "Port to listen on")
	f.StringVar(&dataDir, "data-dir", "./data", "Directory for persistent data (bbolt storage)")
	f.StringVar(&storageBackend, "storage", "bbolt", "Storage backend: memory, bbolt or postgres")
	f.StringVar(&postgresDSN, "postgres-dsn", "", "PostgreSQL connection string")
	f.StringVar(&redisURL, "redis-url", "", "Redis URL for rate-limit counters (empty: in-memory)")
	f.StringVar(&csrfSecret, "csrf-secret", "", "Secret for CSRF tokens, at least 32 bytes")
	f.StringVar(&corsOrigins, "cors-origins", "", `Allowed CORS origins: "*", or a comma-separated list (empty: no cross-origin callers)`)
	f.BoolVar(&corsCredentials, "cors-credentials", false, "Allow credentialed CORS requests")
	f.StringVar(&trustedProxies, "trusted-proxies", "", "Comma-separated CIDRs whose forwarding headers are trusted")
	f.StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	f.StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
	f.BoolVar(&selfSignedTLS, "self-signed-tls", false, "Serve TLS with a generated self-signed certificate")
	f.StringVar(&alertWebhookURL, "alert-webhook-url", "", "URL that receives guard alert events")
	f.StringVar(&alertWebhookAuth, "alert-webhook-auth", "", `Header sent with alert webhooks, as "Name: Value"`)

	for name, env := range map[string]string{
		"port":               "POSTCRAFT_PORT",
		"data-dir":           "POSTCRAFT_DATA_DIR",
		"storage":            "POSTCRAFT_STORAGE",
		"postgres-dsn":       "POSTCRAFT_POSTGRES_DSN",
		"redis-url":          "POSTCRAFT_REDIS_URL",
		"csrf-secret":        "POSTCRAFT_CSRF_SECRET",
		"cors-origins":       "POSTCRAFT_CORS_ORIGINS",
		"cors-credentials":   "POSTCRAFT_CORS_CREDENTIALS",
		"trusted-proxies":    "POSTCRAFT_TRUSTED_PROXIES",
		"tls-cert":           "POSTCRAFT_TLS_CERT",
		"tls-key":            "POSTCRAFT_TLS_KEY",
		"self-signed-tls":    "POSTCRAFT_SELF_SIGNED_TLS",
		"alert-webhook-url":  "POSTCRAFT_ALERT_WEBHOOK_URL",
		"alert-webhook-auth": "POSTCRAFT_ALERT_WEBHOOK_AUTH",
	} {
		envFlag(f, name, env)
	}
}
