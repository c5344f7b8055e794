package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/yourusername/gatekeeper/internal/config"
	"github.com/yourusername/gatekeeper/internal/mail"
	"github.com/yourusername/gatekeeper/internal/metrics"
)

const (
	taskTypeMail = "mail:send"
	queueMail    = "mail"
	maxRetry     = 3
	taskTimeout  = 30 * time.Second
)

// taskEnqueuer は *asynq.Client のうち Manager が使う部分です。
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Manager はメール配送ジョブの投入と状態管理を担います。
// mail.Sender を実装するので、同期送信の代わりに差し替えて使えます。
type Manager struct {
	client   taskEnqueuer
	server   *asynq.Server
	mux      *asynq.ServeMux
	store    *Store
	delivery mail.Sender
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// TaskPayload はメール配送ジョブのペイロードです。
// 本文（リセットトークンを含む）は Store 側に TTL 付きで置き、タスクには載せません。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// NewManager は Manager を初期化します。delivery はワーカーが実際の送信に使う Sender です。
// m が nil の場合、配送結果のメトリクスは記録しません。
func NewManager(cfg *config.Config, delivery mail.Sender, store *Store, m *metrics.Metrics, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if delivery == nil {
		return nil, errors.New("delivery sender is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(cfg.MailQueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueMail: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client:   client,
		server:   server,
		mux:      mux,
		store:    store,
		delivery: delivery,
		metrics:  m,
		logger:   logger,
	}
	mux.HandleFunc(taskTypeMail, manager.handleMailTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error("asynq server stopped with error", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	return m.client.Close()
}

// Send はメールを配送キューに投入します。投入に失敗した場合のみエラーを返します。
func (m *Manager) Send(ctx context.Context, msg mail.Message) error {
	_, err := m.Enqueue(ctx, msg)
	return err
}

// Queued は Send が投入のみで完了することを示します。
func (m *Manager) Queued() bool {
	return true
}

// Enqueue はメールをキューに投入し、配送ジョブIDを返します。
func (m *Manager) Enqueue(ctx context.Context, msg mail.Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	jobID := uuid.NewString()
	record := &Record{
		JobID:  jobID,
		Kind:   string(msg.Kind),
		To:     msg.To,
		Status: StatusQueued,
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}
	if err := m.store.SaveMessage(ctx, jobID, msg); err != nil {
		_ = m.store.MarkFailed(ctx, jobID, &ErrorInfo{Code: "ENQUEUE_FAILED", Message: err.Error()})
		return "", err
	}

	body, err := json.Marshal(&TaskPayload{JobID: jobID})
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeMail, body, asynq.Queue(queueMail))
	if _, err := m.client.EnqueueContext(ctx, task,
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(taskTimeout),
		asynq.TaskID(jobID),
	); err != nil {
		_ = m.store.MarkFailed(ctx, jobID, &ErrorInfo{Code: "ENQUEUE_FAILED", Message: err.Error()})
		_ = m.store.DeleteMessage(ctx, jobID)
		return "", err
	}

	m.logger.InfoContext(ctx, "mail job queued",
		slog.String("job_id", jobID),
		slog.String("kind", string(msg.Kind)),
	)
	return jobID, nil
}

// GetRecord は配送ジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}
