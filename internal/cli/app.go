package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/bkonkle/cowork/internal/api"
	"github.com/bkonkle/cowork/internal/channel"
	"github.com/bkonkle/cowork/internal/config"
	"github.com/bkonkle/cowork/internal/connection"
	"github.com/bkonkle/cowork/internal/logging"
	"github.com/bkonkle/cowork/internal/metrics"
	"github.com/bkonkle/cowork/internal/store"
	"github.com/bkonkle/cowork/internal/tasksync"
)

// app bundles the components a command needs, built from configuration.
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	client  *api.Client
	conns   *connection.Manager
	store   *store.Store
	coord   *tasksync.Coordinator
}

// loadConfig loads the layered configuration with global flag overrides.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if apiURLFlag != "" {
		loader.SetOverride("api.base_url", apiURLFlag)
	}
	if tokenFlag != "" {
		loader.SetOverride("api.token", tokenFlag)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newClient builds the REST client only, for commands that never open a
// channel or touch local state.
func newClient() (*api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return buildClient(cfg, metrics.Default()), nil
}

func buildClient(cfg *config.Config, m *metrics.Metrics) *api.Client {
	client := api.NewClient(cfg.API.BaseURL, cfg.API.Token)
	client.Timeout = cfg.API.Timeout
	client.MaxAttempts = cfg.API.MaxAttempts
	client.RetryDelay = cfg.API.RetryDelay
	client.Logger = logging.NewComponentLogger("api")
	client.Metrics = m
	return client
}

// newApp builds the full client stack: REST gateway, connection manager,
// persistent task store and coordinator.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	m := metrics.Default()

	header := http.Header{}
	if cfg.API.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.API.Token)
	}
	factory, err := connection.NewFactory(connection.Options{
		BaseURL: cfg.WSBaseURL(),
		Global:  cfg.WS.Global,
		Channel: channel.Options{
			Header:            header,
			BaseDelay:         cfg.WS.ReconnectBaseDelay,
			MaxAttempts:       cfg.WS.MaxReconnectAttempts,
			DialTimeout:       cfg.WS.DialTimeout,
			KeepaliveInterval: cfg.WS.KeepaliveInterval,
			Logger:            logging.NewComponentLogger("channel"),
			Metrics:           m,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}

	opts := []store.Option{
		store.WithHistoryCap(cfg.Store.HistoryCap),
		store.WithLogger(logging.NewComponentLogger("store")),
	}
	if cfg.Store.Path != "" {
		opts = append(opts, store.WithPersistence(store.NewHistoryFile(cfg.Store.Path)))
	}
	st := store.New(opts...)
	if err := st.Restore(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to restore task history: %v\n", err)
	}

	client := buildClient(cfg, m)
	conns := connection.NewManager(factory, logging.NewComponentLogger("connections"))

	return &app{
		cfg:     cfg,
		metrics: m,
		client:  client,
		conns:   conns,
		store:   st,
		coord: tasksync.New(tasksync.Options{
			API:          client,
			Connections:  conns,
			Store:        st,
			PollInterval: cfg.Poll.Interval,
			Logger:       logging.NewComponentLogger("sync"),
		}),
	}, nil
}

// close stops polling and disconnects every channel.
func (a *app) close() {
	a.coord.Close()
}

// serveMetrics exposes the Prometheus collectors on addr until ctx is done.
// An empty addr disables the endpoint.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Warning: metrics endpoint failed: %v\n", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
