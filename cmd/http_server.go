package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/orgtree/api"
	"github.com/frahmantamala/orgtree/internal"
	"github.com/frahmantamala/orgtree/internal/auth"
	"github.com/frahmantamala/orgtree/internal/cache"
	cacheRedis "github.com/frahmantamala/orgtree/internal/cache/redis"
	"github.com/frahmantamala/orgtree/internal/core/events"
	"github.com/frahmantamala/orgtree/internal/node"
	nodeMongo "github.com/frahmantamala/orgtree/internal/node/mongodb"
	nodePostgres "github.com/frahmantamala/orgtree/internal/node/postgres"
	"github.com/frahmantamala/orgtree/internal/token"
	"github.com/frahmantamala/orgtree/internal/transport/middleware"
	"github.com/frahmantamala/orgtree/internal/transport/rest"
	"github.com/frahmantamala/orgtree/internal/transport/swagger"
	"github.com/frahmantamala/orgtree/internal/user"
	userMongo "github.com/frahmantamala/orgtree/internal/user/mongodb"
	userPostgres "github.com/frahmantamala/orgtree/internal/user/postgres"
	"github.com/frahmantamala/orgtree/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

// storage is the document store chosen by database.driver.
type storage struct {
	Nodes node.Repository
	Users user.Repository
	Ping  rest.Pinger
	Close func(ctx context.Context) error
}

type Dependencies struct {
	Config      *internal.Config
	Logger      *slog.Logger
	Storage     *storage
	Redis       *goredis.Client
	Cache       cache.Store
	Bus         *events.EventBus
	Registry    *prometheus.Registry
	Tokens      *token.Service
	NodeService *node.Service
	UserService *user.Service
	AuthService *auth.Service
}

func startHTTPServer() {
	ctx := context.Background()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	lg := deps.Logger

	if _, err := swagger.Load(ctx, api.OpenAPI); err != nil {
		lg.Error("invalid OpenAPI document", "error", err)
		os.Exit(1)
	}

	router := chi.NewRouter()
	setupRoutes(router, deps)

	cfg := deps.Config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	lg.Info("Starting HTTP server", "address", addr, "protocol", cfg.Protocol, "driver", deps.Config.Database.Driver)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		BaseContext: func(net.Listener) context.Context {
			return logger.Into(context.Background(), lg)
		},
	}

	// Signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if cfg.Protocol == "https" {
			serverErrChan <- server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
			return
		}
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		lg.Info("Received signal, shutting down...", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", "error", err)
		}
		deps.close(shutdownCtx)
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}

	lg.Info("Server stopped")
}

func setupRoutes(router *chi.Mux, deps *Dependencies) {
	var metrics prometheus.Gatherer
	if deps.Config.Observability.Metrics.Enabled {
		metrics = deps.Registry
	}

	rest.RegisterAllRoutes(router, rest.Dependencies{
		Config:        deps.Config,
		Authenticator: deps.AuthService,
		AuthHandler:   auth.NewHandler(deps.AuthService),
		UserHandler:   user.NewHandler(deps.UserService, deps.AuthService),
		NodeHandler:   node.NewHandler(deps.NodeService),
		Health: rest.NewHealthHandler(map[string]rest.Pinger{
			deps.Config.Database.Driver: deps.Storage.Ping,
			"redis":                     deps.Cache.Ping,
		}),
		Metrics: metrics,
		OpenAPI: api.OpenAPI,
		Logger:  deps.Logger,
	})
}

// initializeDependencies opens the stores and wires every service. The
// permission evaluator reads straight from the repositories so the services
// that depend on it can be built afterwards.
func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	lg := logger.Init(config.Observability.Logging.Level, config.Observability.Logging.Format)

	store, err := openStorage(ctx, config.Database, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	redisClient := cacheRedis.NewClient(config.Cache)
	ledger := cacheRedis.NewStore(redisClient, config.Cache.OpTimeout)
	if err := ledger.Ping(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	middleware.RegisterMetrics(registry)
	token.RegisterMetrics(registry)

	tokens, err := token.NewService(ledger, config.Security, lg)
	if err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	bus := events.NewEventBus(lg)
	bus.SubscribeAll(events.AllEventTypes, newAuditHandler(lg))

	evaluator := auth.NewEvaluator(node.NewScopeLookup(store.Nodes), user.NewMembershipLookup(store.Users))
	nodeService := node.NewService(store.Nodes, evaluator, bus, config.Domain, lg)
	userService := user.NewService(store.Users, nodeService, evaluator, bus, config.Domain, config.Security.BCryptCost, lg)
	authService := auth.NewService(tokens, userService, config.Security.Admin, lg)

	return &Dependencies{
		Config:      config,
		Logger:      lg,
		Storage:     store,
		Redis:       redisClient,
		Cache:       ledger,
		Bus:         bus,
		Registry:    registry,
		Tokens:      tokens,
		NodeService: nodeService,
		UserService: userService,
		AuthService: authService,
	}, nil
}

func (d *Dependencies) close(ctx context.Context) {
	// let in-flight audit handlers finish before the process exits
	d.Bus.Wait()
	if err := d.Storage.Close(ctx); err != nil {
		d.Logger.Error("Database close error", "error", err)
	}
	if err := d.Redis.Close(); err != nil {
		d.Logger.Error("Redis close error", "error", err)
	}
}

func openStorage(ctx context.Context, cfg internal.DatabaseConfig, lg *slog.Logger) (*storage, error) {
	if cfg.Driver == internal.DriverMongo {
		return openMongo(ctx, cfg, lg)
	}
	return openPostgres(cfg)
}

func openPostgres(cfg internal.DatabaseConfig) (*storage, error) {
	db, err := initDB(cfg)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db.DB}), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	return &storage{
		Nodes: nodePostgres.NewNodeRepository(gdb),
		Users: userPostgres.NewUserRepository(gdb),
		Ping:  db.PingContext,
		Close: func(context.Context) error { return db.Close() },
	}, nil
}

// initDB initializes the database connection
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	const driver = "pgx"

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// verify connection; close underlying *sql.DB on failure
	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}

func openMongo(ctx context.Context, cfg internal.DatabaseConfig, lg *slog.Logger) (*storage, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(cfg.Source).
		SetMaxPoolSize(uint64(cfg.MaxOpenConns)).
		SetMaxConnIdleTime(cfg.ConnMaxIdleTime))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(cfg.MongoDatabase)
	nodes := nodeMongo.NewNodeRepository(db)
	users := userMongo.NewUserRepository(db)
	if err := nodes.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create node indexes: %w", err)
	}
	if err := users.EnsureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create user indexes: %w", err)
	}
	lg.Info("mongo indexes ensured", "database", cfg.MongoDatabase)

	return &storage{
		Nodes: nodes,
		Users: users,
		Ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
		Close: client.Disconnect,
	}, nil
}
