// Package main provides the entrypoint for the cardroute API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/cardroute/cardroute/internal/api"
	"github.com/cardroute/cardroute/internal/api/middleware"
	"github.com/cardroute/cardroute/internal/database"
	"github.com/cardroute/cardroute/internal/orchestration"
	"github.com/cardroute/cardroute/internal/psp"
	"github.com/cardroute/cardroute/internal/psp/adyen"
	"github.com/cardroute/cardroute/internal/psp/factory"
	"github.com/cardroute/cardroute/internal/psp/stripe"
	"github.com/cardroute/cardroute/internal/routing"
	"github.com/cardroute/cardroute/internal/session"
	"github.com/cardroute/cardroute/internal/telemetry"
	"github.com/cardroute/cardroute/internal/transport"
	"github.com/cardroute/cardroute/internal/vault"
	"github.com/cardroute/cardroute/internal/vault/basistheory"
	"github.com/cardroute/cardroute/internal/vault/local"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "cardroute-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting cardroute API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	providerMetrics, err := middleware.NewProviderMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Select the vault provider once at startup
	vaultProvider, err := buildVaultProvider(pool, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize vault provider")
	}
	log.Info().Str("provider", vaultProvider.Name()).Msg("vault provider initialized")

	// Routing rules come from the configuration store, cached on the hot
	// path
	routingStore := routing.NewCachedStore(routing.CachedStoreConfig{
		Inner:   routing.NewPostgresStore(pool),
		Metrics: providerMetrics,
		Logger:  log,
	})

	// Provider adapters
	adapters := factory.New(factory.Config{
		Credentials: providerCredentials(),
		Vault:       vaultProvider,
		Logger:      log,
	})

	// One runtime per process owns the breaker registry, health tracker,
	// engine, and failover transport
	runtime, err := orchestration.NewRuntime(orchestration.RuntimeConfig{
		Vault:     vaultProvider,
		Store:     routingStore,
		Adapters:  adapters,
		Endpoints: failoverEndpoints(),
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize orchestration runtime")
	}
	defer runtime.Close(context.Background())
	log.Info().Msg("orchestration runtime initialized")

	// Payment-session tokens for the confirm path
	sessionSigningKey := os.Getenv("SESSION_SIGNING_KEY")
	if sessionSigningKey == "" {
		sessionSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default session signing key - not secure for production")
	}
	sessions := session.NewService(session.Config{
		SigningKey: sessionSigningKey,
		Issuer:     "https://api.cardroute.io",
		Audience:   serviceName,
	})

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:         Version,
		BuildTime:       BuildTime,
		Logger:          log,
		ServiceName:     serviceName,
		Metrics:         metrics,
		ProviderMetrics: providerMetrics,
		Engine:          runtime.Engine(),
		Adapters:        adapters,
		Sessions:        sessions,
		Vault:           vaultProvider,
		Breakers:        runtime.Breakers(),
		Health:          runtime.Health(),
		Ready:           pool.Ping,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}

// buildVaultProvider selects the card vault from VAULT_PROVIDER: "local"
// (direct capture, default) or "basistheory" (proxying).
func buildVaultProvider(pool *pgxpool.Pool, log zerolog.Logger) (vault.Provider, error) {
	switch os.Getenv("VAULT_PROVIDER") {
	case "basistheory":
		return basistheory.NewProvider(basistheory.Config{
			APIKey:  os.Getenv("BASIS_THEORY_API_KEY"),
			BaseURL: os.Getenv("BASIS_THEORY_BASE_URL"),
			Logger:  log,
		})
	default:
		masterKey := os.Getenv("VAULT_MASTER_KEY")
		if masterKey == "" {
			masterKey = "local-dev-master-key-change-in-production"
			log.Warn().Msg("using default vault master key - not secure for production")
		}
		keyID := os.Getenv("VAULT_KEY_ID")
		if keyID == "" {
			keyID = "k1"
		}

		cipher, err := vault.NewCipher([]byte(masterKey), keyID)
		if err != nil {
			return nil, err
		}
		return local.NewProvider(local.ProviderConfig{
			Store:  local.NewPostgresStore(pool),
			Cipher: cipher,
			Logger: log,
		})
	}
}

// failoverEndpoints reads the ordered backend failover list from
// BACKEND_FAILOVER_URLS (comma separated, primary first). Empty means no
// failover transport.
func failoverEndpoints() []transport.FailoverEndpoint {
	raw := os.Getenv("BACKEND_FAILOVER_URLS")
	if raw == "" {
		return nil
	}

	var endpoints []transport.FailoverEndpoint
	for i, baseURL := range strings.Split(raw, ",") {
		baseURL = strings.TrimSpace(baseURL)
		if baseURL == "" {
			continue
		}
		name := "fallback"
		if i == 0 {
			name = "primary"
		} else if i > 1 {
			name = fmt.Sprintf("fallback_%d", i)
		}
		endpoints = append(endpoints, transport.FailoverEndpoint{Name: name, BaseURL: baseURL})
	}
	return endpoints
}

// providerCredentials reads PSP secrets from the environment. Providers
// without credentials are simply unavailable to the router.
func providerCredentials() map[string]psp.Credentials {
	creds := make(map[string]psp.Credentials)

	if key := os.Getenv("STRIPE_API_KEY"); key != "" {
		creds[stripe.Name] = psp.Credentials{
			APIKey:  key,
			BaseURL: os.Getenv("STRIPE_BASE_URL"),
		}
	}
	if key := os.Getenv("ADYEN_API_KEY"); key != "" {
		creds[adyen.Name] = psp.Credentials{
			APIKey:          key,
			MerchantAccount: os.Getenv("ADYEN_MERCHANT_ACCOUNT"),
			BaseURL:         os.Getenv("ADYEN_BASE_URL"),
		}
	}

	return creds
}
