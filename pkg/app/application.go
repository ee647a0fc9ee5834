package app

import (
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/ebookforge/ebookctl/internal/middleware"
	"github.com/ebookforge/ebookctl/pkg/config"
)

// Application assembles the ebookd development stub server.
type Application struct {
	Config *config.Config
	Engine *gin.Engine
	Logger *slog.Logger
}

func NewApplication(cfg *config.Config) (*Application, error) {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler).With("service", "ebookd", "env", cfg.Env)
	slog.SetDefault(logger)

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestIDMiddleware())
	engine.Use(middleware.CORSMiddleware())
	engine.Use(middleware.LoggerMiddleware(logger))
	engine.MaxMultipartMemory = int64(cfg.MaxUploadMB) << 20

	return &Application{Config: cfg, Engine: engine, Logger: logger}, nil
}
