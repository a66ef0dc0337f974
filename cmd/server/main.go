package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/certificate-issuance/internal/app"
	"github.com/iliyamo/certificate-issuance/internal/config"
	"github.com/iliyamo/certificate-issuance/internal/handler"
	"github.com/iliyamo/certificate-issuance/internal/logger"
	"github.com/iliyamo/certificate-issuance/internal/middleware"
	"github.com/iliyamo/certificate-issuance/internal/router"
)

func main() {
	config.LoadEnvFiles()
	cfg := config.Load()

	zl, err := logger.New(cfg.Env, cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("startup failed", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	rdb := config.NewRedisClient()
	if rdb == nil {
		zl.Warn("redis unavailable; verification cache and rate limit disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(zl.Named("http")))
	e.Use(echomw.BodyLimit(bodyLimit(cfg.MaxUploadBytes)))

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, zl.Named("ratelimit"))
	router.RegisterRoutes(e, a.DB)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, zl.Named("auth")))
	router.RegisterAdmin(e, cfg.JWTSecret,
		handler.NewCertificateHandler(a.Issuer, a.Uploads, a.Pipeline, zl.Named("certificates")),
		handler.NewTemplateHandler(a.Templates, zl.Named("templates")))
	router.RegisterPublic(e, handler.NewPublicHandler(a.Issuer, zl.Named("public")),
		[]echo.MiddlewareFunc{limiter},
		[]echo.MiddlewareFunc{
			limiter,
			middleware.VerifyWindow(config.LoadVerifyWindowConfig(), nil),
			middleware.NewRedisCache(config.LoadCacheConfig(), rdb, zl.Named("cache")),
		})

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}

// bodyLimit leaves headroom over the spreadsheet cap for multipart framing.
func bodyLimit(maxUpload int64) string {
	if maxUpload <= 0 {
		return "32M"
	}
	mb := maxUpload>>20 + 2
	return strconv.FormatInt(mb, 10) + "M"
}
