package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwizi/notify-bridge/internal/app"
	"github.com/dwizi/notify-bridge/internal/store"
)

const incidentBody = "Исполнение [INC0012345], [Высокий] назначено на вашу группу.\n" +
	"Дата регистрации: [12.03.2024 10:15:00]\n" +
	"Статус SLA: [В норме]\n" +
	"Пользователь: [Иванов Иван Иванович]\n" +
	"Организация: [ООО Ромашка]\n" +
	"Описание: [Не работает VK Teams]\n" +
	"Подробное описание:\n" +
	"[Пользователь не может войти.]\n" +
	"\n" +
	"Ссылка: Заявка <https://itsm.example.com/incident?id=INC0012345>\n"

const monitoringMail = "From: Monitoring <no-reply.monitoring@example.com>\r\n" +
	"Subject: Problem: app01.srv.example.com\r\n" +
	"Message-ID: <mon-1@example.com>\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Зафиксировано событие на объекте: app01.srv.example.com (10.1.2.3)\r\n" +
	"Критичность: Warning\r\n" +
	"Сообщение: Disk is almost full\r\n" +
	"Время регистрации: 12.03.2024 10:15:00\r\n" +
	"Время нотификации: 12.03.2024 10:16:30\r\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())
	root := NewRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, app.Version, strings.TrimSpace(out))
}

func TestPreviewBareIncidentBody(t *testing.T) {
	path := writeFile(t, "incident.txt", incidentBody)

	out, err := execute(t, "preview", "--kind", "incident", "--plain", path)
	require.NoError(t, err)
	assert.Contains(t, out, "kind: incident")
	assert.Contains(t, out, "<b>#INC0012345   #OPEN</b>")
	assert.Contains(t, out, "[🔗 Инцидент в ITSM] open-link https://itsm.example.com/incident?id=INC0012345")
	assert.Contains(t, out, "[Отметить закрытой] callback close")
}

func TestPreviewBareBodyNeedsKind(t *testing.T) {
	path := writeFile(t, "incident.txt", incidentBody)

	_, err := execute(t, "preview", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--kind")
}

func TestPreviewClassifiesMailAsJSON(t *testing.T) {
	path := writeFile(t, "alert.eml", monitoringMail)

	out, err := execute(t, "preview", "--json", path)
	require.NoError(t, err)
	var payload previewOutput
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, "monitoring", payload.Kind)
	assert.True(t, strings.HasPrefix(payload.Text, "🟨 <b>app01.srv.example.com</b>"))
	assert.Empty(t, payload.Keyboard)
}

func TestPreviewRejectsUnknownKind(t *testing.T) {
	path := writeFile(t, "incident.txt", incidentBody)

	_, err := execute(t, "preview", "--kind", "weather", path)
	require.Error(t, err)
}

func TestLedgerCommandListsIngestions(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.sqlite")
	t.Setenv("NOTIFY_BRIDGE_DB_PATH", dbPath)
	sqlStore, err := store.New(dbPath)
	require.NoError(t, err)
	require.NoError(t, sqlStore.AutoMigrate(context.Background()))
	require.NoError(t, sqlStore.MarkMessageIngested(context.Background(), store.MarkIngestionInput{
		SourceKey: "imap:bridge@example.com:inbox",
		UID:       42,
		MessageID: "<m42@example.com>",
		Outcome:   "parse_failed",
	}))
	require.NoError(t, sqlStore.Close())

	out, err := execute(t, "ledger", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "MESSAGE-ID")
	assert.Contains(t, out, "<m42@example.com>")
	assert.Contains(t, out, "parse_failed")
	assert.Contains(t, out, "42")
}

func TestLedgerCommandEmpty(t *testing.T) {
	t.Setenv("NOTIFY_BRIDGE_DB_PATH", filepath.Join(t.TempDir(), "ledger.sqlite"))

	out, err := execute(t, "ledger", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "ledger is empty")
}

func TestMessageFromInputKeepsHeaders(t *testing.T) {
	msg := messageFromInput([]byte(monitoringMail))
	assert.Equal(t, "no-reply.monitoring@example.com", msg.SenderAddress)
	assert.Equal(t, "<mon-1@example.com>", msg.MessageID)

	bare := messageFromInput([]byte("Ссылка: value\r\nsecond line"))
	assert.Empty(t, bare.From)
	assert.Equal(t, "Ссылка: value\nsecond line", bare.Body)
}
