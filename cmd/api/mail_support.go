package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/gatekeeper/internal/config"
	"github.com/yourusername/gatekeeper/internal/jobs"
	"github.com/yourusername/gatekeeper/internal/mail"
	"github.com/yourusername/gatekeeper/internal/metrics"
)

// mailSetup は起動時に組み立てたメール送信経路です。
type mailSetup struct {
	sender   mail.Sender
	queue    *jobs.Manager // MAIL_QUEUE_REDIS_URL 未設定なら nil
	shutdown func(ctx context.Context) error
}

// setupMailer は設定に応じて送信経路を組み立てます。
// SMTP 未設定ならログ出力のみ、Redis URL があれば asynq 経由の非同期配送になります。
func setupMailer(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (*mailSetup, error) {
	var delivery mail.Sender
	if cfg.SMTPConfigured() {
		delivery = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPass,
		}, logger)
	} else {
		logger.Warn("SMTP is not configured; emails will be written to the log")
		delivery = mail.NewLogSender(logger)
	}

	if strings.TrimSpace(cfg.MailQueueRedisURL) == "" {
		return &mailSetup{
			sender:   delivery,
			shutdown: func(context.Context) error { return nil },
		}, nil
	}

	opt, err := redis.ParseURL(cfg.MailQueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse MAIL_QUEUE_REDIS_URL: %w", err)
	}
	redisClient := redis.NewClient(opt)

	ttlMinutes := cfg.MailJobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	store := jobs.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute)
	manager, err := jobs.NewManager(cfg, delivery, store, m, logger)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}
	manager.StartWorkers()
	logger.Info("mail queue enabled", slog.Int("job_ttl_minutes", ttlMinutes))

	return &mailSetup{
		sender: manager,
		queue:  manager,
		shutdown: func(ctx context.Context) error {
			err := manager.Shutdown(ctx)
			if cerr := redisClient.Close(); err == nil {
				err = cerr
			}
			return err
		},
	}, nil
}

type mailJobReader interface {
	GetRecord(ctx context.Context, jobID string) (*jobs.Record, error)
}

// mailJobStatusHandler は配送ジョブの状態を返します。宛先アドレスは返しません。
func mailJobStatusHandler(reader mailJobReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "job id is required",
			})
			return
		}

		record, err := reader.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "failed to load mail job",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "mail job not found",
			})
			return
		}

		payload := gin.H{
			"jobId":     record.JobID,
			"kind":      record.Kind,
			"status":    record.Status,
			"attempts":  record.Attempts,
			"updatedAt": record.UpdatedAt,
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}
		c.JSON(http.StatusOK, payload)
	}
}
