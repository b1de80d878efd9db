package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/fittogether/internal/api"
	"example.com/fittogether/internal/auth"
	"example.com/fittogether/internal/config"
	"example.com/fittogether/internal/domain"
	"example.com/fittogether/internal/identity"
	"example.com/fittogether/internal/migrations"
	"example.com/fittogether/internal/outbox"
	"example.com/fittogether/internal/persistence/memory"
	"example.com/fittogether/internal/persistence/postgres"
	httptransport "example.com/fittogether/internal/transport/http"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the outbox dispatcher",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func opsRoutes(r *http.Request) bool {
	return r.URL.Path == "/healthz" || r.URL.Path == "/metrics"
}

type stores interface {
	domain.Repository
	identity.Store
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store      stores
		dispatcher *outbox.Dispatcher
	)
	switch cfg.StorageDriver {
	case config.StorageMemory:
		log.Warn().Msg("using in-memory storage; data is lost on exit")
		store = memory.NewStore()
	case config.StoragePostgres:
		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.MigrateOnStart {
			if _, err := migrations.Migrate(ctx, pool); err != nil {
				return err
			}
		}
		store = postgres.NewStore(pool, postgres.WithRole(cfg.DBRole), postgres.WithEventsTopic(cfg.EventsTopic))

		if cfg.OutboxEnabled {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
			defer producer.Close()
			dispatcher = outbox.NewDispatcher(pool, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
			go dispatcher.Start(ctx)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	workouts := domain.NewService(store)
	notifier := identity.NewNotifier(log.Logger)
	unsubscribe := notifier.Subscribe(identity.ProvisionOnSignIn(workouts))
	defer unsubscribe()

	opts := []identity.Option{identity.WithSessionTTL(cfg.SessionTTL)}
	if cfg.OAuth.Enabled() {
		opts = append(opts, identity.WithOAuthProvider(identity.NewOAuthProvider(cfg.OAuth, nil)))
	}
	authCfg := auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}
	ident := identity.NewService(store, auth.NewIssuer(authCfg), notifier, opts...)

	cookies := sessions.NewCookieStore([]byte(cfg.CookieSecret))
	cookies.Options.Path = "/v1/auth/oauth"
	cookies.Options.HttpOnly = true

	mux := http.NewServeMux()
	api.NewHandler(workouts, ident, cookies).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	handler := httptransport.Chain(mux,
		httptransport.Recover(log.Logger),
		httptransport.RequestLogger(log.Logger),
		httptransport.CORS(cfg.CORSOrigin),
		httptransport.Metrics(mux),
		auth.NewMiddleware(authCfg, opsRoutes, ident).Wrap,
	)
	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("address", cfg.HTTPAddress).Str("storage", cfg.StorageDriver).Msg("fittogether listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	stop()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if dispatcher != nil {
		dispatcher.Wait()
	}
	return nil
}
