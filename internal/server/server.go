// Package server contains HTTP and WebSocket handlers for the application's API endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "wavely/docs" // swagger docs
	"wavely/internal/anime"
	"wavely/internal/cache"
	"wavely/internal/config"
	"wavely/internal/database"
	"wavely/internal/featureflags"
	"wavely/internal/feed"
	"wavely/internal/identity"
	"wavely/internal/middleware"
	"wavely/internal/models"
	"wavely/internal/notifications"
	"wavely/internal/repository"
	"wavely/internal/service"
	"wavely/internal/storage"

	firebase "firebase.google.com/go/v4"
	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

// AnimeCatalog is the part of the anime client the API uses.
type AnimeCatalog interface {
	Search(ctx context.Context, query string, perPage int) ([]models.AnimeMetadata, error)
	Get(ctx context.Context, id int) (*models.AnimeMetadata, error)
}

// Deps are the collaborators a Server is built from. Nil repositories are
// created on DB.
type Deps struct {
	DB            *gorm.DB
	Redis         *redis.Client
	Waves         repository.WaveRepository
	Users         repository.UserRepository
	Follows       repository.FollowRepository
	Notifications repository.NotificationRepository
	Store         storage.ObjectStore
	Verifier      identity.Verifier
	Pusher        notifications.Pusher
	Anime         AnimeCatalog
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	mongo          *mongo.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	userRepo     repository.UserRepository
	limiter      *middleware.Limiter
	tokens       *identity.Tokens
	verifier     identity.Verifier
	featureFlags *featureflags.Manager
	store        storage.ObjectStore
	anime        AnimeCatalog

	notifier   *notifications.Notifier
	hub        *notifications.Hub
	dispatcher *notifications.Dispatcher

	waveService         *service.WaveService
	commentService      *service.CommentService
	userService         *service.UserService
	mediaService        *service.MediaService
	notificationService *service.NotificationService
}

// NewServer connects every backing service named by cfg and builds the server.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	deps := Deps{DB: db}
	if cfg.RedisURL != "" {
		if deps.Redis, err = cache.Connect(ctx, cfg.RedisURL); err != nil {
			middleware.Logger.Warn("redis unavailable, continuing without cache and realtime fan-out", "error", err)
		}
	}

	var mongoClient *mongo.Client
	if cfg.WaveStore == config.StoreMongo {
		if deps.Waves, mongoClient, err = repository.OpenWaveStore(ctx, cfg, db); err != nil {
			return nil, err
		}
	}

	var app *firebase.App
	if cfg.FirebaseEnabled() {
		app, err = identity.NewFirebaseApp(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("firebase init failed: %w", err)
		}
		if deps.Verifier, err = identity.NewFirebaseVerifier(ctx, app); err != nil {
			return nil, fmt.Errorf("firebase auth init failed: %w", err)
		}
		if deps.Pusher, err = notifications.NewFCMPusher(ctx, app); err != nil {
			return nil, fmt.Errorf("firebase messaging init failed: %w", err)
		}
	}

	if deps.Store, err = storage.New(ctx, cfg, app); err != nil {
		return nil, fmt.Errorf("object store init failed: %w", err)
	}
	deps.Anime = anime.NewClient(cfg.AnimeAPIURL, cfg.AnimeAPIRPS)

	s, err := NewServerWithDeps(cfg, deps)
	if err != nil {
		return nil, err
	}
	s.mongo = mongoClient
	return s, nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes DB and Redis itself.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.DB == nil && (deps.Waves == nil || deps.Users == nil || deps.Follows == nil || deps.Notifications == nil) {
		return nil, errors.New("a database or every repository is required")
	}
	if deps.Waves == nil {
		deps.Waves = repository.NewWaveRepository(deps.DB)
	}
	if deps.Users == nil {
		deps.Users = repository.NewUserRepository(deps.DB)
	}
	if deps.Follows == nil {
		deps.Follows = repository.NewFollowRepository(deps.DB)
	}
	if deps.Notifications == nil {
		deps.Notifications = repository.NewNotificationRepository(deps.DB)
	}
	if deps.Store == nil {
		deps.Store = storage.NewLocalStore(cfg.MediaDir, cfg.MediaPublicURL)
	}

	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("wavely-api"),
		limiter:        middleware.NewLimiter(deps.Redis, cfg.RateLimitEnabled()),
		userRepo:       deps.Users,
		tokens:         identity.NewTokens(cfg.JWTSecret, deps.Redis),
		verifier:       deps.Verifier,
		featureFlags:   featureflags.NewManager(cfg.FeatureFlags),
		store:          deps.Store,
		anime:          deps.Anime,
		hub:            notifications.NewHub(),
	}

	// Without Redis the local hub is the only delivery path.
	if deps.Redis != nil {
		s.notifier = notifications.NewNotifier(deps.Redis)
	}
	s.dispatcher = notifications.NewDispatcher(s.hub, s.notifier)

	var animeLookup service.AnimeLookup
	if deps.Anime != nil {
		animeLookup = deps.Anime
	}
	aggregator := feed.NewAggregator(deps.Users, cfg.DefaultAvatarURL)
	s.notificationService = service.NewNotificationService(deps.Notifications, s.dispatcher, deps.Pusher, s.featureFlags)
	s.waveService = service.NewWaveService(deps.Waves, deps.Follows, deps.Users, aggregator,
		s.notificationService, s.dispatcher, animeLookup, s.featureFlags, cfg.WriteMaxAttempts)
	s.commentService = service.NewCommentService(s.waveService, deps.Users, s.notificationService)
	s.userService = service.NewUserService(deps.Users, deps.Follows, s.notificationService)
	s.mediaService = service.NewMediaService(deps.Store, deps.Users, cfg)

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.TracingMiddleware())
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	app.Use(helmet.New(helmet.Config{
		// Uploaded media is embedded by the web client from another origin.
		CrossOriginResourcePolicy: "cross-origin",
	}))

	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Client-Ref, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	app.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if local, ok := s.store.(*storage.LocalStore); ok {
		app.Static("/media", local.Root(), fiber.Static{MaxAge: 86400})
	}

	api := app.Group("/api", ClientRef())
	api.Get("/swagger/*", swagger.HandlerDefault)

	auth := api.Group("/auth")
	auth.Post("/signup", s.limiter.Handler(middleware.SignupRule), s.Signup)
	auth.Post("/login", s.limiter.Handler(middleware.LoginRule), s.Login)
	auth.Post("/firebase", s.limiter.Handler(middleware.FirebaseRule), s.FirebaseLogin)
	auth.Get("/session", s.AuthRequired(), s.GetSession)
	auth.Post("/logout", s.AuthRequired(), s.Logout)

	// Registered ahead of the catch-all protected group so a ticket is
	// redeemed exactly once.
	ws := api.Group("/ws", s.AuthRequired())
	ws.Post("/ticket", s.limiter.Handler(middleware.WSTicketRule), s.IssueWSTicket)
	ws.Get("/feed", s.WebSocketFeedHandler())

	protected := api.Group("", s.AuthRequired())
	protected.Get("/feature-flags", s.GetFeatureFlags)

	waves := protected.Group("/waves")
	waves.Get("/", s.GetWaves)
	waves.Post("/", s.limiter.Handler(middleware.CreateWaveRule), s.CreateWave)
	// Specific /:id/:resource routes before the generic /:id route
	waves.Post("/:id/like", s.ToggleWaveLike)
	waves.Put("/:id/rating", s.RateWave)
	waves.Delete("/:id/rating", s.RemoveWaveRating)
	waves.Get("/:id/comments", s.GetComments)
	waves.Post("/:id/comments", s.limiter.Handler(middleware.CommentRule), s.CreateComment)
	waves.Post("/:id/comments/:commentId/replies", s.limiter.Handler(middleware.CommentRule), s.CreateReply)
	waves.Post("/:id/comments/:commentId/like", s.ToggleCommentLike)
	waves.Delete("/:id/comments/:commentId", s.DeleteComment)
	waves.Get("/:id", s.GetWave)
	waves.Delete("/:id", s.DeleteWave)

	users := protected.Group("/users")
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)
	users.Post("/me/avatar", s.limiter.Handler(middleware.ProfileImgRule), s.UploadAvatar)
	users.Post("/me/banner", s.limiter.Handler(middleware.ProfileImgRule), s.UploadBanner)
	users.Get("/by-username/:username", s.GetUserByUsername)
	users.Get("/:id/waves", s.GetUserWaves)
	users.Post("/:id/follow", s.FollowUser)
	users.Delete("/:id/follow", s.UnfollowUser)
	users.Get("/:id/followers", s.GetFollowers)
	users.Get("/:id/following", s.GetFollowing)
	users.Get("/:id", s.GetUserProfile)

	protected.Post("/media", s.limiter.Handler(middleware.UploadRule), s.UploadMedia)

	notes := protected.Group("/notifications")
	notes.Get("/", s.GetNotifications)
	notes.Post("/read-all", s.MarkAllNotificationsRead)
	notes.Post("/devices", s.RegisterDevice)
	notes.Post("/:id/read", s.MarkNotificationRead)

	protected.Get("/anime/search", s.limiter.Handler(middleware.AnimeSearchRule), s.SearchAnime)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if s.db == nil {
		dbStatus = "unavailable"
	} else if sqlDB, err := s.db.DB(); err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	checks := fiber.Map{"database": dbStatus}

	// Redis is optional: caching and rate limits fail open without it.
	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}
	checks["redis"] = redisStatus

	healthy := dbStatus == "healthy"
	if s.mongo != nil {
		mongoStatus := "healthy"
		if err := s.mongo.Ping(ctx, nil); err != nil {
			mongoStatus = "unhealthy"
			healthy = false
		}
		checks["mongo"] = mongoStatus
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": checks,
		"time":   time.Now(),
	})
}

// AuthRequired accepts a single-use ticket on websocket paths and a Bearer
// session token everywhere else.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := c.Locals("userID").(uint); ok {
			return c.Next()
		}
		ctx := c.UserContext()
		isWSPath := strings.HasPrefix(c.Path(), "/api/ws/") && c.Path() != "/api/ws/ticket"

		if isWSPath {
			userID, err := s.tokens.RedeemTicket(ctx, c.Query("ticket"))
			if err != nil {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					&models.AppError{Code: models.CodeNotAuthenticated, Message: "Invalid or expired WebSocket ticket"})
			}
			s.setUser(c, userID, nil)
			return c.Next()
		}

		tokenString := ""
		if scheme, token, ok := strings.Cut(c.Get("Authorization"), " "); ok && scheme == "Bearer" {
			tokenString = strings.TrimSpace(token)
		}
		if tokenString == "" {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				&models.AppError{Code: models.CodeNotAuthenticated, Message: "Authorization required"})
		}

		claims, err := s.tokens.Parse(ctx, tokenString)
		if err != nil {
			msg := "Invalid or expired token"
			if errors.Is(err, identity.ErrRevokedToken) {
				msg = "Token has been revoked"
			}
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				&models.AppError{Code: models.CodeNotAuthenticated, Message: msg})
		}

		s.setUser(c, claims.UserID, claims)
		return c.Next()
	}
}

func (s *Server) setUser(c *fiber.Ctx, userID uint, claims *identity.Claims) {
	c.Locals("userID", userID)
	if claims != nil {
		c.Locals("claims", claims)
	}
	c.SetUserContext(middleware.WithUserID(c.UserContext(), userID))
}

// App builds the Fiber app with middleware and routes on first use.
func (s *Server) App() *fiber.App {
	if s.app != nil {
		return s.app
	}
	app := fiber.New(fiber.Config{
		AppName:   "Wavely API",
		BodyLimit: (s.config.MediaMaxUploadMB + 1) * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err)
			return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	s.app = app
	return app
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	app := s.App()

	if s.notifier != nil {
		go func() {
			if err := s.hub.Subscribe(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("feed fan-out unavailable", "hub", s.hub.Name(), "error", err)
			}
		}()
	}

	middleware.Logger.Info("Server starting", "port", s.config.Port, "env", s.config.Env)
	return app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("http shutdown failed", "error", err)
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("hub shutdown failed", "hub", s.hub.Name(), "error", err)
	}

	if s.mongo != nil {
		if err := s.mongo.Disconnect(ctx); err != nil {
			middleware.Logger.Error("mongo disconnect failed", "error", err)
		}
	}

	if s.db != nil {
		if sqlDB, err := s.db.DB(); err == nil {
			if cerr := sqlDB.Close(); cerr != nil {
				middleware.Logger.Error("database close failed", "error", cerr)
			}
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("redis close failed", "error", rerr)
		}
	}

	middleware.Logger.Info("Server shutdown complete")
	return nil
}
