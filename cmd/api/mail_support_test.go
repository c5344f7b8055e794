package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/gatekeeper/internal/config"
	"github.com/yourusername/gatekeeper/internal/jobs"
	"github.com/yourusername/gatekeeper/internal/logging"
	"github.com/yourusername/gatekeeper/internal/mail"
)

type stubJobReader struct {
	record *jobs.Record
	err    error
}

func (s stubJobReader) GetRecord(ctx context.Context, jobID string) (*jobs.Record, error) {
	return s.record, s.err
}

func serveJobStatus(reader mailJobReader, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/mail-jobs/:id", mailJobStatusHandler(reader))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestMailJobStatusHandler(t *testing.T) {
	rec := serveJobStatus(stubJobReader{record: &jobs.Record{
		JobID:    "job-1",
		Kind:     string(mail.KindPasswordReset),
		To:       "a@x.com",
		Status:   jobs.StatusFailed,
		Attempts: 3,
		Error:    &jobs.ErrorInfo{Code: "SEND_FAILED", Message: "smtp down"},
	}}, "/mail-jobs/job-1")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "job-1", body["jobId"])
	assert.Equal(t, "failed", body["status"])
	assert.EqualValues(t, 3, body["attempts"])
	assert.NotContains(t, body, "to")
	assert.NotContains(t, rec.Body.String(), "a@x.com")
}

func TestMailJobStatusHandlerErrors(t *testing.T) {
	rec := serveJobStatus(stubJobReader{}, "/mail-jobs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serveJobStatus(stubJobReader{err: errors.New("redis down")}, "/mail-jobs/job-1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSetupMailerWithoutQueue(t *testing.T) {
	cfg := &config.Config{MailFrom: "noreply@example.com"}

	setup, err := setupMailer(cfg, nil, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, setup.queue)
	assert.IsType(t, &mail.LogSender{}, setup.sender)
	assert.NoError(t, setup.shutdown(context.Background()))

	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPPort = 587
	setup, err = setupMailer(cfg, nil, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &mail.SMTPSender{}, setup.sender)
}

func TestSetupMailerRejectsBadRedisURL(t *testing.T) {
	cfg := &config.Config{MailQueueRedisURL: "://not-a-url"}

	_, err := setupMailer(cfg, nil, logging.Discard())
	assert.Error(t, err)
}

func TestSplitOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, splitOrigins(" http://a.test, ,http://b.test "))
	assert.Empty(t, splitOrigins(""))
}
