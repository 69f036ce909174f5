package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hospital/portal/internal/config"
	"github.com/hospital/portal/internal/domain/identity"
	"github.com/hospital/portal/internal/domain/scheduling"
	"github.com/hospital/portal/internal/platform/auth"
	"github.com/hospital/portal/internal/platform/db"
	"github.com/hospital/portal/internal/platform/lock"
	"github.com/hospital/portal/internal/platform/middleware"
	"github.com/hospital/portal/internal/platform/mongodb"
	"github.com/hospital/portal/internal/platform/uow"
	"github.com/hospital/portal/migrations"
)

// partyDirectory adapts the identity service to scheduling.Directory so the
// scheduling package does not import identity.
type partyDirectory struct {
	users *identity.Service
}

func (d partyDirectory) Parties(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*scheduling.Party, error) {
	users, err := d.users.Lookup(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*scheduling.Party, len(users))
	for id, u := range users {
		out[id] = &scheduling.Party{ID: u.ID, Name: u.Name, Email: u.Email, Specialization: u.Specialization}
	}
	return out, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "portal-server",
		Short: "Hospital appointment portal API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(indexesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// migrationFiles returns dir when set, otherwise the embedded migrations.
func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrationFiles(dir)), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run PostgreSQL migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closePool()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to the embedded set)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := context.Background()
			migrator, closePool, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closePool()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create MongoDB indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.MongoURL == "" {
				return fmt.Errorf("MONGO_URL is required to create indexes")
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			client, err := mongodb.Connect(ctx, cfg.MongoURL)
			if err != nil {
				return err
			}
			defer client.Disconnect(context.Background())

			if err := newMongoStores(client, cfg.MongoDatabase).ensureIndexes(ctx); err != nil {
				return err
			}
			fmt.Println("Indexes created.")
			return nil
		},
	}
}

// stores bundles the repositories and unit-of-work for one store driver.
type stores struct {
	users        identity.UserRepository
	availability scheduling.AvailabilityRepository
	appointments scheduling.AppointmentRepository
	tx           uow.Transactor
	health       echo.HandlerFunc
	close        func()
}

type mongoStores struct {
	users        *identity.MongoUserRepo
	availability *scheduling.MongoAvailabilityRepo
	appointments *scheduling.MongoAppointmentRepo
}

func newMongoStores(client *mongo.Client, database string) mongoStores {
	mdb := client.Database(database)
	return mongoStores{
		users:        identity.NewUserRepoMongo(mdb),
		availability: scheduling.NewAvailabilityRepoMongo(mdb),
		appointments: scheduling.NewAppointmentRepoMongo(mdb),
	}
}

func (m mongoStores) ensureIndexes(ctx context.Context) error {
	if err := m.users.EnsureIndexes(ctx); err != nil {
		return err
	}
	if err := m.availability.EnsureIndexes(ctx); err != nil {
		return err
	}
	return m.appointments.EnsureIndexes(ctx)
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURL)
		if err != nil {
			return nil, err
		}
		m := newMongoStores(client, cfg.MongoDatabase)
		if err := m.ensureIndexes(ctx); err != nil {
			client.Disconnect(context.Background())
			return nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongodb")
		tx := mongodb.NewTransactor(client, logger)
		return &stores{
			users:        m.users,
			availability: m.availability,
			appointments: m.appointments,
			tx:           tx,
			health:       mongodb.HealthHandler(client, cfg.MongoDatabase, tx),
			close:        func() { client.Disconnect(context.Background()) },
		}, nil

	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, poolOptions(cfg))
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to postgres")
		return &stores{
			users:        identity.NewUserRepoPG(pool),
			availability: scheduling.NewAvailabilityRepoPG(pool),
			appointments: scheduling.NewAppointmentRepoPG(pool),
			tx:           db.NewTransactor(pool),
			health:       db.HealthHandler(pool),
			close:        pool.Close,
		}, nil
	}
}

// coordination is the state shared across server instances: slot locks and
// revoked session tokens.
type coordination struct {
	locker      lock.Locker
	revocations auth.RevocationStore
	close       func()
}

func poolOptions(cfg *config.Config) db.PoolOptions {
	return db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns, AppName: "portal-server"}
}

// newCoordination uses Redis when REDIS_URL is set so several server
// instances share locks and logouts; otherwise everything stays in process.
func newCoordination(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (coordination, error) {
	if cfg.RedisURL == "" {
		logger.Info().Msg("using in-process slot locks")
		return coordination{
			locker:      lock.NewLocal(cfg.LockWait),
			revocations: auth.NewMemoryRevocations(),
			close:       func() {},
		}, nil
	}
	client, err := lock.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return coordination{}, err
	}
	logger.Info().Msg("using redis slot locks")
	return coordination{
		locker:      lock.NewRedis(client, cfg.LockTTL, cfg.LockWait, logger),
		revocations: auth.NewRedisRevocations(client),
		close:       func() { client.Close() },
	}, nil
}

// services is everything newServer mounts.
type services struct {
	identity   *identity.Service
	scheduling *scheduling.Service
	tokens     *auth.TokenIssuer
	dbHealth   echo.HandlerFunc
}

func newServer(cfg *config.Config, logger zerolog.Logger, svc services, done <-chan struct{}) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if svc.dbHealth != nil {
		e.GET("/health/db", svc.dbHealth)
	}

	api := e.Group("/api")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}, done))
	api.Use(auth.OptionalJWTMiddleware(svc.tokens))

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.AuthRateLimitRPS,
		BurstSize:         cfg.AuthRateLimitBurst,
	}, done))

	identity.NewHandler(svc.identity).RegisterRoutes(api, authGroup, auth.JWTMiddleware(svc.tokens))
	scheduling.NewHandler(svc.scheduling, cfg.AuthEnforce).RegisterRoutes(api)

	return e
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("failed to connect to store")
	}
	defer st.close()

	coord, err := newCoordination(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer coord.close()

	done := make(chan struct{})
	defer close(done)
	if mem, ok := coord.revocations.(*auth.MemoryRevocations); ok {
		go mem.CleanupLoop(done, 5*time.Minute)
	}

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL).WithRevocations(coord.revocations)
	identitySvc := identity.NewService(st.users, tokens, logger)
	schedulingSvc := scheduling.NewService(st.availability, st.appointments, st.tx, coord.locker, logger,
		scheduling.WithDirectory(partyDirectory{users: identitySvc}),
		scheduling.WithStrictTransitions(cfg.StrictStatusTransitions),
	)

	e := newServer(cfg, logger, services{
		identity:   identitySvc,
		scheduling: schedulingSvc,
		tokens:     tokens,
		dbHealth:   st.health,
	}, done)

	if cfg.AuthEnforce {
		logger.Info().Msg("authorization enforcement enabled")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
