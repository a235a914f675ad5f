// Command gateway is the mcp-gateway entrypoint: it loads configuration,
// wires C1-C10 together, and serves the JSON-RPC surface described in
// SPEC_FULL.md §6, grounded on the teacher's cmd/mcp-gateway/main.go
// (cobra root + version/test subcommands, signal-based graceful shutdown;
// no PID file is written).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aci-labs/mcp-gateway/internal/access"
	"github.com/aci-labs/mcp-gateway/internal/catalog"
	"github.com/aci-labs/mcp-gateway/internal/config"
	"github.com/aci-labs/mcp-gateway/internal/credential"
	"github.com/aci-labs/mcp-gateway/internal/embedding"
	"github.com/aci-labs/mcp-gateway/internal/gateway"
	"github.com/aci-labs/mcp-gateway/internal/identitystore"
	"github.com/aci-labs/mcp-gateway/internal/router"
	"github.com/aci-labs/mcp-gateway/internal/session"
	"github.com/aci-labs/mcp-gateway/internal/syncer"
	"github.com/aci-labs/mcp-gateway/internal/transport"
	"github.com/aci-labs/mcp-gateway/internal/virtualmcp"
	"github.com/aci-labs/mcp-gateway/pkg/i18n"
	"github.com/aci-labs/mcp-gateway/pkg/logger"
	"github.com/aci-labs/mcp-gateway/pkg/metrics"
	"github.com/aci-labs/mcp-gateway/pkg/trace"
	"github.com/aci-labs/mcp-gateway/pkg/version"
)

const defaultConfigFile = "gateway.yaml"

var configPath string

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of mcp-gateway",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("mcp-gateway version %s\n", version.Get())
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test that the configuration file loads and parses cleanly",
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := config.Load(configPath); err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Configuration test is successful")
	},
}

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "mcp-gateway: a multi-tenant MCP Gateway",
	Long:  "mcp-gateway federates tool discovery and execution across upstream MCP servers behind synthetic SEARCH_TOOLS/EXECUTE_TOOL tools.",
	Run: func(cmd *cobra.Command, args []string) {
		run()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", defaultConfigFile, "path to configuration file, like /etc/aci-mcp-gateway/gateway.yaml")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(testCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// dialer builds a syncer.Dialer that opens an anonymous (credential-less)
// transport.Client for tool listing. Sync runs out-of-band against the
// server's tool catalog, not on behalf of any one tenant's connected
// account, so there is no single AuthConfig/ConnectedAccount pair to
// resolve here; see DESIGN.md.
func dialer() syncer.Dialer {
	return func(server *catalog.Server) (syncer.Lister, error) {
		client, err := transport.New(server, nil, "")
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", server.Name, err)
		}
		if err := client.Initialize(context.Background()); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("initialize %s: %w", server.Name, err)
		}
		return client, nil
	}
}

// runSyncLoop periodically syncs every configured server's tool catalog
// (C5) until ctx is cancelled.
func runSyncLoop(ctx context.Context, logger *zap.Logger, store catalog.Store, sync *syncer.Syncer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			servers, err := store.ListServers(ctx, nil)
			if err != nil {
				logger.Warn("list servers for sync failed", zap.Error(err))
				continue
			}
			for i := range servers {
				if servers[i].Kind != catalog.ServerUpstream {
					continue
				}
				if _, err := sync.Sync(ctx, &servers[i]); err != nil {
					logger.Warn("sync server failed", zap.String("server", servers[i].Name), zap.Error(err))
				}
			}
		}
	}
}

// runSessionSweepLoop periodically evicts expired sessions (C9) until ctx
// is cancelled.
func runSessionSweepLoop(ctx context.Context, logger *zap.Logger, sessions *session.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.Sweep(ctx)
			if err != nil {
				logger.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("swept expired sessions", zap.Int("count", n))
			}
		}
	}
}

func run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer lg.Sync()

	lg.Info("starting mcp-gateway", zap.String("version", version.Get()))

	if cfg.Trace.Enabled {
		shutdownTrace, err := trace.InitTracing(ctx, &trace.Config{
			ServiceName: cfg.Trace.ServiceName,
			Endpoint:    cfg.Trace.Endpoint,
			Protocol:    cfg.Trace.Protocol,
			Insecure:    cfg.Trace.Insecure,
			SamplerRate: cfg.Trace.SamplerRate,
			Environment: cfg.Trace.Environment,
			Headers:     cfg.Trace.Headers,
		}, lg)
		if err != nil {
			lg.Fatal("failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTrace(shutdownCtx); err != nil {
				lg.Warn("tracer shutdown failed", zap.Error(err))
			}
		}()
	}

	store, err := catalog.NewGormStore(lg, cfg.Database)
	if err != nil {
		lg.Fatal("failed to initialize catalog store", zap.Error(err))
	}

	// The config carries one Redis block (cfg.Session.Redis), not a separate
	// one per consumer. This client backs the credential refresh-dedup lock;
	// the redis-type session store below dials its own client from the same
	// block.
	var rdb *redis.Client
	if cfg.Session.Type == "redis" || cfg.Credential.RefreshDedup {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Username: cfg.Session.Redis.Username,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Fatal("failed to connect to redis", zap.Error(err))
		}
	}

	embedder := embedding.NewAdapter(cfg.Embedding, nil)
	cred := credential.NewManager(store, cfg.Credential, rdb)
	idstore := identitystore.NewInMemory()
	_ = access.NewController(store, idstore) // invoked by the admin API's configuration-mutation path, not on this gateway's request path

	var sessionStore session.Store = store
	if cfg.Session.Type == "redis" {
		redisStore, err := session.NewRedisStore(cfg.Session.Redis, cfg.Session.TTL)
		if err != nil {
			lg.Fatal("failed to initialize redis session store", zap.Error(err))
		}
		sessionStore = redisStore
	}
	sessions, err := session.NewManager(sessionStore, lg, cfg.Session, cfg.JWT)
	if err != nil {
		lg.Fatal("failed to initialize session manager", zap.Error(err))
	}
	virtual := virtualmcp.NewExecutor(virtualmcp.Registry{})
	tools := router.New(store, embedder, cred, sessions, virtual)

	sync := syncer.New(store, embedder, dialer(), lg)
	go runSyncLoop(ctx, lg, store, sync, 5*time.Minute)
	go runSessionSweepLoop(ctx, lg, sessions, time.Minute)

	m := metrics.New(cfg.Metrics)

	translator, err := i18n.New(cfg.I18n)
	if err != nil {
		lg.Fatal("failed to initialize i18n translator", zap.Error(err))
	}

	srv := gateway.NewServer(lg, cfg.Port, store, sessions, tools, virtual, m, translator)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
		close(serverErrCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		lg.Info("received shutdown signal, stopping gracefully")
		cancel()
	case err := <-serverErrCh:
		if err != nil {
			lg.Error("gateway server stopped unexpectedly", zap.Error(err))
		}
		cancel()
	}

	<-serverErrCh
	lg.Info("mcp-gateway stopped")
}
