package server

import (
	"github.com/cristiansk8/TheTrickest-sub001/internal/auth"
	"github.com/cristiansk8/TheTrickest-sub001/internal/config"
	"github.com/cristiansk8/TheTrickest-sub001/internal/reputation"
	"github.com/cristiansk8/TheTrickest-sub001/internal/spot"
	"github.com/cristiansk8/TheTrickest-sub001/internal/stream"
	"github.com/cristiansk8/TheTrickest-sub001/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	optionalJWT := auth.OptionalJWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB))

	spots := s.App.Group("/spots")
	spot.RegisterRoutes(spots, spot.NewService(s.DB), jwtMiddleware, optionalJWT)
	validation.RegisterRoutes(spots, validation.NewService(s.DB, s.Stream, s.Redis), jwtMiddleware)

	reputation.RegisterRoutes(s.App.Group("/reputation"), reputation.NewService(s.DB))
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
