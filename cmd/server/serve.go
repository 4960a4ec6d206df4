package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ayush/peces-catalog/internal/auth"
	"github.com/ayush/peces-catalog/internal/config"
	"github.com/ayush/peces-catalog/internal/middleware"
	"github.com/ayush/peces-catalog/internal/models"
	"github.com/ayush/peces-catalog/internal/species"
	"github.com/ayush/peces-catalog/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// ── MongoDB ──────────────────────────────────────────────
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return fmt.Errorf("mongo connect: %w", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.MongoDB)

	speciesStore := store.NewMongoSpeciesStore(mongoDB)
	if err := speciesStore.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("mongo species indexes: %w", err)
	}

	// ── Users ────────────────────────────────────────────────
	users, closeUsers, err := openUserStore(ctx, cfg, mongoDB)
	if err != nil {
		return err
	}
	defer closeUsers()

	// ── Redis ────────────────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return err
	}
	defer rdb.Close()
	sessions := auth.NewRedisSessionStore(rdb, cfg.SessionTTL)

	// ── Images ───────────────────────────────────────────────
	var images species.ImageStore
	var uploadDir string
	switch cfg.ImageBackend {
	case config.BackendMinio:
		images, err = store.NewMinioImageStore(ctx,
			cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey,
			cfg.MinioBucket, cfg.MinioUseSSL, cfg.MinioPublicURL,
		)
		if err != nil {
			return err
		}
	default:
		disk, err := store.NewDiskImageStore(cfg.UploadDir, "/uploads")
		if err != nil {
			return err
		}
		images, uploadDir = disk, disk.Dir()
	}

	// ── Authentication gate ─────────────────────────────────
	opts := auth.GateOptions{
		Users:              users,
		Hasher:             auth.NewMultiHasher(0),
		EncryptedTransport: cfg.LoginTransport == config.TransportEncrypted,
		RequireBotCheck:    cfg.RecaptchaEnabled,
		Logger:             logger.Named("gate"),
	}
	var decryptor auth.Decryptor
	if opts.EncryptedTransport {
		d, err := auth.NewRSADecryptorFromBase64(cfg.PrivateKey, auth.Padding(cfg.RSAPadding))
		if err != nil {
			return fmt.Errorf("private key: %w", err)
		}
		decryptor = d
		opts.Decryptor = d
	}
	if cfg.RecaptchaEnabled {
		opts.BotCheck = auth.NewRecaptchaVerifier(cfg.RecaptchaSecret, cfg.RecaptchaVerifyURL, cfg.RecaptchaMinScore)
	}
	gate, err := auth.NewGate(opts)
	if err != nil {
		return fmt.Errorf("auth gate: %w", err)
	}

	// ── Handlers ─────────────────────────────────────────────
	authHandler := auth.NewHandler(gate, sessions, decryptor, logger.Named("auth"))
	speciesHandler := species.NewHandler(speciesStore, images, logger.Named("species"))

	r := newRouter(cfg, authHandler, speciesHandler, sessions, uploadDir)

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Port),
			zap.String("login_transport", cfg.LoginTransport),
			zap.String("user_backend", cfg.UserBackend),
			zap.String("image_backend", cfg.ImageBackend),
			zap.Bool("recaptcha", cfg.RecaptchaEnabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// userStore is what both the gate and the useradd command need from the
// configured user backend.
type userStore interface {
	auth.UserStore
	CreateUser(ctx context.Context, u *models.User) error
}

func openUserStore(ctx context.Context, cfg *config.Config, mongoDB *mongo.Database) (userStore, func(), error) {
	if cfg.UserBackend == config.BackendPostgres {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		pg := store.NewPostgresUserStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		return pg, pool.Close, nil
	}

	users := store.NewMongoUserStore(mongoDB)
	if err := users.EnsureIndexes(ctx); err != nil {
		return nil, nil, fmt.Errorf("mongo user indexes: %w", err)
	}
	return users, func() {}, nil
}

func newRouter(cfg *config.Config, authHandler *auth.Handler, speciesHandler *species.Handler, sessions auth.SessionStore, uploadDir string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	requireAuth := middleware.RequireAuth(sessions)
	admin := middleware.RequireRole(models.RoleAdmin)
	editor := middleware.RequireRole(models.RoleAdmin, models.RoleAnalyst)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Auth routes (public)
	r.Post("/login", authHandler.Login)
	r.Post("/logout", authHandler.Logout)
	r.Get("/public-key", authHandler.PublicKey)
	r.With(requireAuth).Get("/me", authHandler.Me)

	// Species catalog
	r.Route("/especies", func(r chi.Router) {
		r.Get("/", speciesHandler.List)
		r.Get("/{id}", speciesHandler.Get)
		r.With(requireAuth, admin).Post("/", speciesHandler.Create)
		r.With(requireAuth, editor).Put("/{id}", speciesHandler.Update)
		r.With(requireAuth, admin).Patch("/{id}/enabled", speciesHandler.SetEnabled)
		r.With(requireAuth, admin).Delete("/{id}", speciesHandler.Delete)
	})
	r.With(requireAuth).Get("/api/especies", speciesHandler.ListAll)

	// Front end
	r.Get("/", servePage(cfg.PublicDir, "peces.html"))
	r.Get("/admin", servePage(cfg.PublicDir, "admin.html"))
	if uploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(uploadDir))))
	}
	r.Handle("/*", http.FileServer(http.Dir(cfg.PublicDir)))

	return r
}

func servePage(dir, name string) http.HandlerFunc {
	path := filepath.Join(dir, name)
	return func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, path)
	}
}
