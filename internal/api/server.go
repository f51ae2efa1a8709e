package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/api/handlers"
	"github.com/aadhaar-drishti/backend/internal/bootstrap"
	"github.com/aadhaar-drishti/backend/internal/metrics"
	authmw "github.com/aadhaar-drishti/backend/internal/middleware/auth"
	"github.com/aadhaar-drishti/backend/internal/middleware/ratelimit"
	"github.com/aadhaar-drishti/backend/internal/middleware/security"
	"github.com/aadhaar-drishti/backend/internal/middleware/validation"
	"github.com/aadhaar-drishti/backend/pkg/config"
	"github.com/aadhaar-drishti/backend/pkg/logger"
)

// Server is the fiber app plus the background resources it owns.
type Server struct {
	App     *fiber.App
	limiter *ratelimit.RateLimiter
}

func NewServer(cfg *config.Config, svc *bootstrap.App) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "AADHAAR Drishti API",
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.IsDevelopment,
	}))
	app.Use(validation.Middleware(validation.Config{
		MessagePaths: []string{"/api/citizen/chatbot"},
		Logger:       logger.Named("validation"),
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.OTPRequestsPerMinute,
		Logger:               logger.Named("ratelimit"),
	})

	dataHandler := handlers.NewDataHandler(svc.Importer, svc.Engine)
	adminHandler := handlers.NewAdminHandler(svc.Reports, svc.Advisor)
	citizenHandler := handlers.NewCitizenHandler(svc.OTPs, svc.Citizens)
	chatHandler := handlers.NewChatWebSocketHandler(svc.Citizens)
	requireCitizen := authmw.RequireCitizen(svc.Tokens)

	health := func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "OK",
			"message": "AADHAAR Drishti API is running",
			"time":    time.Now().Unix(),
		})
	}
	app.Get("/health", health)
	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api")
	api.Get("/health", health)
	api.Get("/ready", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		if err := svc.Store.Ping(ctx); err != nil {
			logger.Warn("Readiness check failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
			})
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})

	admin := api.Group("/admin")
	admin.Get("/stats", adminHandler.Stats)
	admin.Get("/districts", adminHandler.Districts)
	admin.Get("/update-gaps", adminHandler.UpdateGaps)
	admin.Get("/migration-impact", adminHandler.MigrationImpact)
	admin.Get("/states", adminHandler.States)
	admin.Post("/recommendations", adminHandler.Recommendations)

	citizenRoutes := api.Group("/citizen")
	citizenRoutes.Post("/send-otp", limiter.Middleware(), citizenHandler.SendOTP)
	citizenRoutes.Post("/verify-otp", limiter.Middleware(), citizenHandler.VerifyOTP)
	citizenRoutes.Get("/status", requireCitizen, citizenHandler.Status)
	citizenRoutes.Post("/chatbot", requireCitizen, citizenHandler.Chatbot)
	citizenRoutes.Get("/chat/ws", requireCitizen, chatHandler.Upgrade, websocket.New(chatHandler.HandleConnection))

	data := api.Group("/data")
	data.Post("/import", dataHandler.Import)
	data.Post("/calculate-metrics", dataHandler.CalculateMetrics)

	return &Server{App: app, limiter: limiter}
}

func (s *Server) Listen(addr string) error {
	return s.App.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.App.ShutdownWithContext(ctx)
}

func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}

	logger.Error("Unhandled request error",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "Something went wrong!",
		"message": err.Error(),
	})
}
