package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/dwizi/notify-bridge/internal/notification"
)

const envPrefix = "NOTIFY_BRIDGE_"

type Config struct {
	Environment string
	HTTPAddr    string
	DataDir     string
	DBPath      string
	LogLevel    string
	LogFormat   string

	HeartbeatIntervalSec int
	HeartbeatStaleSec    int

	PollCron          string
	Timezone          string
	FailureBackoffMin int
	FailureBackoffMax int

	IMAPHost          string
	IMAPPort          int
	IMAPUsername      string
	IMAPPassword      string
	IMAPMailbox       string
	IMAPTLSSkipVerify bool

	SpoolDir           string
	SpoolSettleMS      int
	SpoolScheduledPoll bool

	VKTeamsToken   string
	VKTeamsAPI     string
	VKTeamsPoll    int
	VKTeamsTimeout int

	IncidentChatID   string
	MonitoringChatID string
	AdminChatIDsCSV  string

	IncidentSender          string
	IncidentSubjectMarker   string
	MonitoringSender        string
	MonitoringSubjectMarker string

	ChatLogQueueSize int
	ChatLogRetrySec  int
}

// LoadDotEnv reads path (or ./.env when empty) into the process environment.
// Variables already set win. A missing default file is not an error.
func LoadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func FromEnv() Config {
	dataDir := stringOrDefault(envPrefix+"DATA_DIR", "/data")
	dbPath := stringOrDefault(envPrefix+"DB_PATH", filepath.Join(dataDir, "notify-bridge", "ledger.sqlite"))

	return Config{
		Environment: stringOrDefault(envPrefix+"ENV", "development"),
		HTTPAddr:    stringOrDefault(envPrefix+"HTTP_ADDR", ":8080"),
		DataDir:     dataDir,
		DBPath:      dbPath,
		LogLevel:    strings.ToLower(stringOrDefault(envPrefix+"LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(stringOrDefault(envPrefix+"LOG_FORMAT", "json")),

		HeartbeatIntervalSec: intOrDefault(envPrefix+"HEARTBEAT_INTERVAL_SECONDS", 30),
		HeartbeatStaleSec:    intOrDefault(envPrefix+"HEARTBEAT_STALE_SECONDS", 300),

		PollCron:          stringOrDefault(envPrefix+"POLL_CRON", "@every 1m"),
		Timezone:          stringOrDefault(envPrefix+"TIMEZONE", "UTC"),
		FailureBackoffMin: intOrDefault(envPrefix+"FAILURE_BACKOFF_MIN_SECONDS", 60),
		FailureBackoffMax: intOrDefault(envPrefix+"FAILURE_BACKOFF_MAX_SECONDS", 1800),

		IMAPHost:          strings.TrimSpace(os.Getenv(envPrefix + "IMAP_HOST")),
		IMAPPort:          intOrDefault(envPrefix+"IMAP_PORT", 993),
		IMAPUsername:      strings.TrimSpace(os.Getenv(envPrefix + "IMAP_USERNAME")),
		IMAPPassword:      os.Getenv(envPrefix + "IMAP_PASSWORD"),
		IMAPMailbox:       stringOrDefault(envPrefix+"IMAP_MAILBOX", "INBOX"),
		IMAPTLSSkipVerify: boolOrDefault(envPrefix+"IMAP_TLS_SKIP_VERIFY", false),

		SpoolDir:           strings.TrimSpace(os.Getenv(envPrefix + "SPOOL_DIR")),
		SpoolSettleMS:      intOrDefault(envPrefix+"SPOOL_SETTLE_MS", 500),
		SpoolScheduledPoll: boolOrDefault(envPrefix+"SPOOL_SCHEDULED_POLL", true),

		VKTeamsToken:   strings.TrimSpace(os.Getenv(envPrefix + "VKTEAMS_TOKEN")),
		VKTeamsAPI:     stringOrDefault(envPrefix+"VKTEAMS_API_BASE", "https://api.internal.myteam.mail.ru/bot/v1"),
		VKTeamsPoll:    intOrDefault(envPrefix+"VKTEAMS_POLL_SECONDS", 30),
		VKTeamsTimeout: intOrDefault(envPrefix+"VKTEAMS_TIMEOUT_SECONDS", 10),

		IncidentChatID:   strings.TrimSpace(os.Getenv(envPrefix + "INCIDENT_CHAT_ID")),
		MonitoringChatID: strings.TrimSpace(os.Getenv(envPrefix + "MONITORING_CHAT_ID")),
		AdminChatIDsCSV:  strings.TrimSpace(os.Getenv(envPrefix + "ADMIN_CHAT_IDS")),

		IncidentSender:          stringOrDefault(envPrefix+"INCIDENT_SENDER", notification.DefaultIncidentSender),
		IncidentSubjectMarker:   rawOrDefault(envPrefix+"INCIDENT_SUBJECT_MARKER", notification.DefaultIncidentSubjectMarker),
		MonitoringSender:        stringOrDefault(envPrefix+"MONITORING_SENDER", notification.DefaultMonitoringSender),
		MonitoringSubjectMarker: rawOrDefault(envPrefix+"MONITORING_SUBJECT_MARKER", notification.DefaultMonitoringSubjectMarker),

		ChatLogQueueSize: intOrDefault(envPrefix+"CHATLOG_QUEUE_SIZE", 64),
		ChatLogRetrySec:  intOrDefault(envPrefix+"CHATLOG_RETRY_SECONDS", 10),
	}
}

// AdminChatIDs splits the comma separated admin chat list.
func (c Config) AdminChatIDs() []string {
	return splitCSV(c.AdminChatIDsCSV)
}

func (c Config) IMAPEnabled() bool {
	return c.IMAPHost != "" && c.IMAPUsername != "" && c.IMAPPassword != ""
}

func (c Config) Classifier() *notification.Classifier {
	return notification.NewClassifier(
		notification.Rule{Sender: c.IncidentSender, SubjectMarker: c.IncidentSubjectMarker},
		notification.Rule{Sender: c.MonitoringSender, SubjectMarker: c.MonitoringSubjectMarker},
	)
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

// rawOrDefault keeps surrounding spaces; subject markers depend on them.
func rawOrDefault(name, fallback string) string {
	value := os.Getenv(name)
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func splitCSV(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
