package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/studyos/aigateway"
	"github.com/studyos/aigateway/config"
	"github.com/studyos/aigateway/health"
	"github.com/studyos/aigateway/keyring"
	"github.com/studyos/aigateway/monitoring"
	"github.com/studyos/aigateway/provider"
	"github.com/studyos/aigateway/provider/claude"
	"github.com/studyos/aigateway/provider/gemini"
	"github.com/studyos/aigateway/provider/local"
	openaiProvider "github.com/studyos/aigateway/provider/openai"
	"github.com/studyos/aigateway/router"
	"github.com/studyos/aigateway/server"
	"github.com/studyos/aigateway/utils"
)

func newRegistry(snapshot *aigateway.Snapshot, cfg *config.Config, sugar *zap.SugaredLogger) (*provider.Registry, error) {
	defaultAdapter, err := openaiProvider.NewAdapter("openai", openaiProvider.BaseUrlFor("openai"), sugar)
	if err != nil {
		return nil, err
	}
	registry := provider.NewRegistry(defaultAdapter)

	for _, prov := range snapshot.Providers {
		adapter, err := newAdapter(prov, cfg, sugar)
		if err != nil {
			sugar.Warnw("Failed to create adapter", "provider", prov.Id, "error", err)
			continue
		}
		registry.Register(prov.Id, adapter)
	}
	return registry, nil
}

func newAdapter(prov aigateway.Provider, cfg *config.Config, sugar *zap.SugaredLogger) (provider.Adapter, error) {
	switch prov.Id {
	case "gemini":
		return gemini.NewAdapter(sugar), nil
	case "anthropic", "claude":
		return claude.NewAdapter(sugar), nil
	case "ollama", "local":
		baseUrl := prov.BaseUrl
		if cfg.OllamaBaseUrl != "" {
			baseUrl = cfg.OllamaBaseUrl
		}
		return local.NewAdapter(baseUrl, sugar), nil
	default:
		baseUrl := prov.BaseUrl
		if baseUrl == "" {
			baseUrl = openaiProvider.BaseUrlFor(prov.Id)
		}
		if baseUrl == "" {
			return nil, fmt.Errorf("no base URL known for provider %s", prov.Id)
		}
		return openaiProvider.NewAdapter(prov.Id, baseUrl, sugar)
	}
}

func main() {
	logger := utils.Must(zap.NewProduction())
	defer logger.Sync()
	sugar := logger.Sugar()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath, sugar)
	if err != nil {
		sugar.Fatalw("Failed to load config", "error", err)
	}

	staleness, err := cfg.Staleness()
	if err != nil {
		sugar.Fatalw("Invalid snapshot staleness", "error", err)
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		sugar.Fatalw("Invalid request timeout", "error", err)
	}

	var store config.Store
	var sink health.Sink
	if cfg.ValkeyEndpoint != "" {
		valkeyClient, err := valkey.NewClient(valkey.ClientOption{
			InitAddress: []string{cfg.ValkeyEndpoint},
		})
		if err != nil {
			sugar.Fatalw("Failed to create Valkey client", "error", err)
		}
		defer valkeyClient.Close()
		store = config.NewValkeyStore(valkeyClient)
		sink = health.NewValkeySink(valkeyClient)
	} else {
		sugar.Warnw("No Valkey endpoint configured, using in-memory store")
		store = config.NewMemoryStore(config.DefaultSnapshot())
		sink = health.NewMemorySink()
	}

	realClock := clock.New()
	cache := config.NewSnapshotCache(store, staleness, realClock, sugar)

	snapshot := cache.Snapshot(context.Background())
	registry, err := newRegistry(snapshot, cfg, sugar)
	if err != nil {
		sugar.Fatalw("Failed to build provider registry", "error", err)
	}

	metrics := monitoring.NewMetrics()
	tracker := health.NewTracker(store, cache, sink, metrics, realClock, cfg.ModelFailureThreshold, sugar)
	rotator := keyring.NewRotator()
	taskRouter := router.NewRouter(cache, rotator, registry, tracker, metrics, cfg.KeyAttempts, timeout, sugar)

	gatewayServer := server.NewServer(taskRouter, metrics, cfg.GatewayApiKey, sugar)

	address := fmt.Sprintf(":%d", cfg.Port)
	httpServer := &http.Server{
		Addr:    address,
		Handler: gatewayServer.Handler(),
	}

	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownSignal
		sugar.Infow("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			sugar.Fatalw("Server forced to shutdown", "error", err)
		}
	}()

	sugar.Infow("Starting server", "address", address)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		sugar.Fatalw("Failed to start server", "error", err)
	}

	sugar.Infow("Server exited gracefully")
}
