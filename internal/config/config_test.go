package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwizi/notify-bridge/internal/notification"
)

var allVariables = []string{
	"ENV", "HTTP_ADDR", "DATA_DIR", "DB_PATH", "LOG_LEVEL", "LOG_FORMAT",
	"HEARTBEAT_INTERVAL_SECONDS", "HEARTBEAT_STALE_SECONDS",
	"POLL_CRON", "TIMEZONE", "FAILURE_BACKOFF_MIN_SECONDS", "FAILURE_BACKOFF_MAX_SECONDS",
	"IMAP_HOST", "IMAP_PORT", "IMAP_USERNAME", "IMAP_PASSWORD", "IMAP_MAILBOX", "IMAP_TLS_SKIP_VERIFY",
	"SPOOL_DIR", "SPOOL_SETTLE_MS", "SPOOL_SCHEDULED_POLL",
	"VKTEAMS_TOKEN", "VKTEAMS_API_BASE", "VKTEAMS_POLL_SECONDS", "VKTEAMS_TIMEOUT_SECONDS",
	"INCIDENT_CHAT_ID", "MONITORING_CHAT_ID", "ADMIN_CHAT_IDS",
	"INCIDENT_SENDER", "INCIDENT_SUBJECT_MARKER", "MONITORING_SENDER", "MONITORING_SUBJECT_MARKER",
	"CHATLOG_QUEUE_SIZE", "CHATLOG_RETRY_SECONDS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range allVariables {
		t.Setenv(envPrefix+name, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg := FromEnv()
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "/data", cfg.DataDir)
	assert.Equal(t, filepath.Join("/data", "notify-bridge", "ledger.sqlite"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "@every 1m", cfg.PollCron)
	assert.Equal(t, 993, cfg.IMAPPort)
	assert.Equal(t, "INBOX", cfg.IMAPMailbox)
	assert.False(t, cfg.IMAPEnabled())
	assert.True(t, cfg.SpoolScheduledPoll)
	assert.Equal(t, "https://api.internal.myteam.mail.ru/bot/v1", cfg.VKTeamsAPI)
	assert.Equal(t, 30, cfg.VKTeamsPoll)
	assert.Equal(t, notification.DefaultIncidentSender, cfg.IncidentSender)
	assert.Equal(t, notification.DefaultIncidentSubjectMarker, cfg.IncidentSubjectMarker)
	assert.Empty(t, cfg.AdminChatIDs())
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOTIFY_BRIDGE_DATA_DIR", "/srv/bridge")
	t.Setenv("NOTIFY_BRIDGE_LOG_LEVEL", "DEBUG")
	t.Setenv("NOTIFY_BRIDGE_IMAP_HOST", " imap.example.com ")
	t.Setenv("NOTIFY_BRIDGE_IMAP_USERNAME", "bridge@example.com")
	t.Setenv("NOTIFY_BRIDGE_IMAP_PASSWORD", "secret")
	t.Setenv("NOTIFY_BRIDGE_IMAP_PORT", "143")
	t.Setenv("NOTIFY_BRIDGE_IMAP_TLS_SKIP_VERIFY", "yes")
	t.Setenv("NOTIFY_BRIDGE_SPOOL_SCHEDULED_POLL", "off")
	t.Setenv("NOTIFY_BRIDGE_ADMIN_CHAT_IDS", "admin1@chat.agent, ,admin2@chat.agent")
	t.Setenv("NOTIFY_BRIDGE_MONITORING_SUBJECT_MARKER", " PROBLEM ")

	cfg := FromEnv()
	assert.Equal(t, filepath.Join("/srv/bridge", "notify-bridge", "ledger.sqlite"), cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "imap.example.com", cfg.IMAPHost)
	assert.Equal(t, 143, cfg.IMAPPort)
	assert.True(t, cfg.IMAPTLSSkipVerify)
	assert.True(t, cfg.IMAPEnabled())
	assert.False(t, cfg.SpoolScheduledPoll)
	assert.Equal(t, []string{"admin1@chat.agent", "admin2@chat.agent"}, cfg.AdminChatIDs())
	assert.Equal(t, " PROBLEM ", cfg.MonitoringSubjectMarker)

	kind, ok := cfg.Classifier().Classify(notification.DefaultMonitoringSender, "Zabbix PROBLEM on app01")
	assert.True(t, ok)
	assert.Equal(t, notification.KindMonitoring, kind)
}

func TestIntOrDefaultRejectsInvalidValues(t *testing.T) {
	t.Setenv("NOTIFY_BRIDGE_TEST_INT", "abc")
	assert.Equal(t, 7, intOrDefault("NOTIFY_BRIDGE_TEST_INT", 7))
	t.Setenv("NOTIFY_BRIDGE_TEST_INT", "0")
	assert.Equal(t, 7, intOrDefault("NOTIFY_BRIDGE_TEST_INT", 7))
	t.Setenv("NOTIFY_BRIDGE_TEST_INT", "12")
	assert.Equal(t, 12, intOrDefault("NOTIFY_BRIDGE_TEST_INT", 7))
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bridge.env")
	require.NoError(t, os.WriteFile(path, []byte("NOTIFY_BRIDGE_INCIDENT_CHAT_ID=incidents@chat.agent\nNOTIFY_BRIDGE_HTTP_ADDR=:9999\n"), 0o600))
	t.Setenv("NOTIFY_BRIDGE_HTTP_ADDR", ":7070")
	t.Cleanup(func() { _ = os.Unsetenv("NOTIFY_BRIDGE_INCIDENT_CHAT_ID") })
	require.NoError(t, os.Unsetenv("NOTIFY_BRIDGE_INCIDENT_CHAT_ID"))

	require.NoError(t, LoadDotEnv(path))
	cfg := FromEnv()
	assert.Equal(t, "incidents@chat.agent", cfg.IncidentChatID)
	assert.Equal(t, ":7070", cfg.HTTPAddr)
}

func TestLoadDotEnvMissingFiles(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, LoadDotEnv(""))
	require.Error(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
