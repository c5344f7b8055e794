// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/yourusername/gatekeeper/internal/auth"
	"github.com/yourusername/gatekeeper/internal/config"
	"github.com/yourusername/gatekeeper/internal/logging"
	"github.com/yourusername/gatekeeper/internal/metrics"
	"github.com/yourusername/gatekeeper/internal/storage"
	"github.com/yourusername/gatekeeper/internal/web"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)
	if cfg.SessionSecretGenerated {
		logger.Warn("SESSION_SECRET is not set; using a random secret, sessions will not survive restarts")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), web.RequestLogger(logger))
	if err := web.LoadTemplates(router); err != nil {
		logger.Error("failed to load templates", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// セッションストアの設定（クッキー署名鍵は必須）
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   auth.SessionMaxAgeSeconds(),
		HttpOnly: true,
		Secure:   cfg.GinMode == gin.ReleaseMode,
		// リセットメールのリンクから来たときもクッキーを送る
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	// CORSミドルウェアの設定（カンマ区切りの文字列を配列に変換）
	if origins := splitOrigins(cfg.CORSAllowedOrigins); len(origins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
		router.Use(cors.New(corsConfig))
	}

	var m *metrics.Metrics
	router.GET("/health", handleHealth)
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		router.GET("/metrics", gin.WrapH(metrics.Handler(reg)))
	}

	mailer, err := setupMailer(cfg, m, logger)
	if err != nil {
		logger.Error("failed to set up mailer", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if mailer.queue != nil {
		router.GET("/mail-jobs/:id", mailJobStatusHandler(mailer.queue))
	}

	authManager := auth.NewManager(storage.NewDirectory(), mailer.sender, auth.Options{
		BaseURL:  cfg.BaseURL,
		MailFrom: cfg.MailFrom,
		Hasher:   auth.NewBcryptHasher(auth.PasswordCost),
		Logger:   logger,
		Metrics:  m,
	})
	auth.NewHandler(authManager, logger).Routes(router)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           web.MethodOverride(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr), slog.String("mode", cfg.GinMode))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	if err := mailer.shutdown(shutdownCtx); err != nil {
		logger.Error("mailer shutdown failed", slog.String("error", err.Error()))
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "gatekeeper",
		"version": "0.1.0",
	})
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
