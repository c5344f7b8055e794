// Package jobs はメールの非同期配送ジョブを提供します。
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/yourusername/gatekeeper/internal/metrics"
)

func (m *Manager) handleMailTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// 再試行しても解釈できないのでスキップさせる
		return fmt.Errorf("decode mail payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}

	msg, err := m.store.LoadMessage(ctx, payload.JobID)
	if err != nil {
		return fmt.Errorf("load mail message: %w", err)
	}
	if msg == nil {
		// 本文の TTL が切れたメールは送らない（リセットリンクも失効している）
		m.markFailed(ctx, payload.JobID, &ErrorInfo{Code: "MESSAGE_EXPIRED", Message: "mail body expired before delivery"})
		m.logger.Warn("mail job expired before delivery", slog.String("job_id", payload.JobID))
		return fmt.Errorf("mail job %s expired: %w", payload.JobID, asynq.SkipRetry)
	}

	if err := m.store.MarkSending(ctx, payload.JobID); err != nil {
		m.logger.Warn("failed to mark mail job sending",
			slog.String("job_id", payload.JobID),
			slog.String("error", err.Error()),
		)
	}

	if err := m.delivery.Send(ctx, *msg); err != nil {
		m.metrics.ObserveMail(string(msg.Kind), "failure")
		m.markFailed(ctx, payload.JobID, &ErrorInfo{Code: "SEND_FAILED", Message: err.Error()})
		m.logger.Error("mail delivery failed",
			slog.String("job_id", payload.JobID),
			slog.String("kind", string(msg.Kind)),
			slog.String("error", err.Error()),
		)
		return err
	}

	m.metrics.ObserveMail(string(msg.Kind), metrics.ResultSuccess)
	if err := m.store.DeleteMessage(ctx, payload.JobID); err != nil {
		m.logger.Warn("failed to delete delivered mail body",
			slog.String("job_id", payload.JobID),
			slog.String("error", err.Error()),
		)
	}
	m.logger.Info("mail job delivered",
		slog.String("job_id", payload.JobID),
		slog.String("kind", string(msg.Kind)),
	)
	return m.store.MarkSent(ctx, payload.JobID)
}

func (m *Manager) markFailed(ctx context.Context, jobID string, info *ErrorInfo) {
	if err := m.store.MarkFailed(ctx, jobID, info); err != nil {
		m.logger.Warn("failed to mark mail job failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
