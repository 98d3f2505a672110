package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwizi/notify-bridge/internal/config"
	"github.com/dwizi/notify-bridge/internal/connectors/spool"
	"github.com/dwizi/notify-bridge/internal/heartbeat"
	"github.com/dwizi/notify-bridge/internal/notification"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dataDir := t.TempDir()
	return config.Config{
		HTTPAddr:             "127.0.0.1:0",
		DataDir:              dataDir,
		DBPath:               filepath.Join(dataDir, "notify-bridge", "ledger.sqlite"),
		LogLevel:             "info",
		HeartbeatIntervalSec: 30,
		HeartbeatStaleSec:    300,
		PollCron:             "@every 1m",
		Timezone:             "UTC",
		FailureBackoffMin:    60,
		FailureBackoffMax:    1800,
		IMAPPort:             993,
		IMAPMailbox:          "INBOX",
		SpoolSettleMS:        500,
		VKTeamsPoll:          30,
		VKTeamsTimeout:       10,
		ChatLogQueueSize:     64,
		ChatLogRetrySec:      10,
	}
}

func TestNewWithoutSourcesServesInfo(t *testing.T) {
	runtime, err := New(testConfig(t), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = runtime.Close() })
	assert.Nil(t, runtime.chatlog)
	assert.Empty(t, runtime.sources)

	recorder := httptest.NewRecorder()
	runtime.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/info", nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	var info struct {
		Name    string   `json:"name"`
		Version string   `json:"version"`
		Sources []string `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &info))
	assert.Equal(t, "notify-bridge", info.Name)
	assert.Equal(t, Version, info.Version)
	assert.Empty(t, info.Sources)
}

func TestNewRejectsUnknownTimezone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Timezone = "Mars/Olympus"
	_, err := New(cfg, nil)
	require.Error(t, err)
}

func TestPollNowFilesUnrecognizedSpoolMail(t *testing.T) {
	cfg := testConfig(t)
	cfg.SpoolDir = t.TempDir()
	cfg.SpoolScheduledPoll = true
	raw := "From: someone@example.com\r\nSubject: hello\r\nMessage-ID: <m1@example.com>\r\n\r\nnot a notification\r\n"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SpoolDir, "m1.eml"), []byte(raw), 0o600))

	runtime, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = runtime.Close() })
	require.Len(t, runtime.sources, 1)

	require.NoError(t, runtime.PollNow(context.Background()))
	_, err = os.Stat(filepath.Join(cfg.SpoolDir, spool.ProcessedDir, "m1.eml"))
	require.NoError(t, err)

	items, err := runtime.store.ListIngestions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "rejected", items[0].Outcome)
	assert.Equal(t, "<m1@example.com>", items[0].MessageID)
	assert.Empty(t, items[0].Kind)
}

func TestPollNowForwardsErrorLogsToAdminChats(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []string
	)
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/messages/sendText") {
			mu.Lock()
			sent = append(sent, r.URL.Query().Get("chatId")+" "+r.URL.Query().Get("text"))
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"msgId":"100"}`))
	}))
	t.Cleanup(api.Close)

	cfg := testConfig(t)
	cfg.VKTeamsToken = "token"
	cfg.VKTeamsAPI = api.URL
	cfg.AdminChatIDsCSV = "admins@chat.agent"
	cfg.SpoolDir = t.TempDir()
	cfg.SpoolScheduledPoll = true
	cfg.IncidentSender = notification.DefaultIncidentSender
	cfg.IncidentSubjectMarker = notification.DefaultIncidentSubjectMarker
	raw := "From: " + notification.DefaultIncidentSender + "\r\n" +
		"Subject: Инцидент [INC1] назначено на вашу группу [2-ая линия]\r\n" +
		"Message-ID: <inc-1@example.com>\r\n\r\nзаявка во вложении\r\n"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.SpoolDir, "inc.eml"), []byte(raw), 0o600))

	runtime, err := New(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = runtime.Close() })
	require.NotNil(t, runtime.chatlog)

	require.NoError(t, runtime.PollNow(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, sent)
	assert.True(t, strings.HasPrefix(sent[0], "admins@chat.agent "))
	assert.Contains(t, sent[0], "notification parse failed")

	items, err := runtime.store.ListIngestions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "parse_failed", items[0].Outcome)
	assert.Equal(t, "incident", items[0].Kind)
}

func TestChatLogWrapsLoggerWhenGatewayConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.VKTeamsToken = "token"
	cfg.AdminChatIDsCSV = "admins@chat.agent"

	runtime, err := New(cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = runtime.Close() })
	require.NotNil(t, runtime.chatlog)
	assert.Same(t, runtime.chatlog, runtime.logger.Handler())
}

func TestRunMonitoredReportsStates(t *testing.T) {
	registry := heartbeat.NewRegistry()

	err := runMonitored(context.Background(), registry, "worker", 0, func(context.Context) error {
		return errors.New("boom")
	})
	require.Error(t, err)
	snapshot := registry.Snapshot(0)
	require.Len(t, snapshot.Components, 1)
	assert.Equal(t, heartbeat.StateDegraded, snapshot.Components[0].State)
	assert.Equal(t, "boom", snapshot.Components[0].Error)

	require.NoError(t, runMonitored(context.Background(), registry, "worker", 0, func(context.Context) error {
		return nil
	}))
	assert.Equal(t, heartbeat.StateStopped, registry.Snapshot(0).Components[0].State)
}

func TestNewLogger(t *testing.T) {
	var buffer bytes.Buffer
	logger := NewLogger("warn", "text", &buffer)
	logger.Info("hidden")
	logger.Warn("shown", "component", "test")
	assert.NotContains(t, buffer.String(), "hidden")
	assert.Contains(t, buffer.String(), "msg=shown")

	buffer.Reset()
	NewLogger("debug", "json", &buffer).Debug("visible")
	assert.Contains(t, buffer.String(), `"msg":"visible"`)
	assert.Equal(t, slog.LevelInfo, parseLevel("loud"))
}
