package notification

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwizi/notify-bridge/internal/bridgeerr"
)

const incidentLink = "https://itsm.example.com/incident?id=INC0012345"

func incidentMail(user, org, description string) string {
	parts := []string{
		"Инцидент [INC0012345] назначено на вашу группу [2-ая линия]",
		"",
		"Исполнение [INC0012345], [Высокий] назначено на вашу группу.",
		"Дата регистрации: [12.03.2024 10:15:00]",
		"Статус SLA: [В норме]",
		"Пользователь: [" + user + "]",
	}
	if org != "" {
		parts = append(parts, "Организация: ["+org+"]")
	}
	parts = append(parts,
		"Описание: [Не работает VK Teams]",
		"Подробное описание:",
		"["+description+"]",
		"",
		"Ссылка: Заявка <"+incidentLink+">",
		"",
	)
	return strings.Join(parts, "\r\n")
}

const plainDescription = "Пользователь не может войти.\r\n\r\nОшибка авторизации."

const forwardedDescription = ForwardedPrefix + "\r\n" +
	"\r\n" +
	"Заказчик: АО Ромашка Петров Петр Петрович\r\n" +
	"Дата обращения: 11.03.2024 09:00, канал: телефон\r\n" +
	"Рабочее место, тип клиента и ОС: Windows 10 desktop, версия 24.1\r\n" +
	"Описание проблемы: Не приходят уведомления\r\n" +
	"в групповых чатах\r\n" +
	"\r\n" +
	"С уважением,\r\n" +
	"Служба поддержки"

func TestParseIncidentPersonalName(t *testing.T) {
	incident, err := ParseIncident(incidentMail("Иванов Иван Иванович", "ООО Ромашка", plainDescription))
	require.NoError(t, err)

	assert.Equal(t, "INC0012345", incident.ID)
	assert.Equal(t, "Высокий", incident.Priority)
	assert.Equal(t, "В норме", incident.SLA)
	assert.Equal(t, "12.03.2024 10:15:00", incident.CreatedAt)
	assert.Equal(t, "Иванов", incident.LastName)
	assert.Equal(t, "Иван", incident.FirstName)
	assert.Equal(t, "Иванович", incident.Patronymic)
	assert.Equal(t, "ООО Ромашка", incident.OrgUnit)
	assert.Equal(t, "Не работает VK Teams", incident.Subject)
	assert.Equal(t, plainDescription, incident.Description)
	assert.Equal(t, incidentLink, incident.Link)
	assert.Equal(t, StatusOpen, incident.Status)
	assert.Empty(t, incident.Editor)
	assert.Nil(t, incident.Forwarded)
}

func TestParseIncidentJobTitle(t *testing.T) {
	for _, title := range []string{"Администратор", "Ведущий инженер отдела продаж"} {
		t.Run(title, func(t *testing.T) {
			incident, err := ParseIncident(incidentMail(title, "ООО Ромашка", plainDescription))
			require.NoError(t, err)
			assert.Equal(t, title, incident.LastName)
			assert.Empty(t, incident.FirstName)
			assert.Empty(t, incident.Patronymic)
		})
	}
}

func TestParseIncidentMissingSectionFails(t *testing.T) {
	text := incidentMail("Иванов Иван Иванович", "", plainDescription)
	incident, err := ParseIncident(text)
	require.Error(t, err)
	assert.Nil(t, incident)
	assert.True(t, errors.Is(err, bridgeerr.ErrParseFailure))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, KindIncident, parseErr.Kind)
	assert.Equal(t, text, parseErr.Text)
}

func TestParseIncidentUnrelatedText(t *testing.T) {
	_, err := ParseIncident("Добрый день! Просто письмо без заявки.")
	assert.ErrorIs(t, err, bridgeerr.ErrParseFailure)
}

func TestParseIncidentForwardedDescription(t *testing.T) {
	incident, err := ParseIncident(incidentMail("Иванов Иван Иванович", "ООО Ромашка", forwardedDescription))
	require.NoError(t, err)
	require.NotNil(t, incident.Forwarded)
	assert.False(t, incident.ForwardedUnparsed())

	forwarded := incident.Forwarded
	assert.Equal(t, "АО Ромашка", forwarded.OrgUnit)
	assert.Equal(t, "Петров Петр Петрович", forwarded.FullName())
	assert.Equal(t, "11.03.2024 09:00", forwarded.CreatedAt)
	assert.Equal(t, "Windows 10 desktop", forwarded.Device)
	assert.Equal(t, "Не приходят уведомления\nв групповых чатах", forwarded.Description)

	assert.Equal(t, "Иванов", incident.LastName)
	assert.Equal(t, "ООО Ромашка", incident.OrgUnit)
	assert.Equal(t, incidentLink, incident.Link)
}

func TestParseIncidentMalformedForwardedIsKeptRaw(t *testing.T) {
	description := ForwardedPrefix + "\r\nЧто-то пошло не так"
	incident, err := ParseIncident(incidentMail("Иванов Иван Иванович", "ООО Ромашка", description))
	require.NoError(t, err)
	assert.Nil(t, incident.Forwarded)
	assert.True(t, incident.ForwardedUnparsed())
	assert.Equal(t, description, incident.Description)
	assert.Equal(t, "ООО Ромашка", incident.OrgUnit)
}

func TestParseForwardedRequiresSignature(t *testing.T) {
	text := "Заказчик: АО Ромашка Петров Петр Петрович\n" +
		"Дата обращения: 11.03.2024 09:00, канал: телефон\n" +
		"Рабочее место, тип клиента и ОС: Windows 10, версия 24.1\n" +
		"Описание проблемы: Не приходят уведомления"
	_, err := ParseForwarded(text)
	assert.ErrorIs(t, err, bridgeerr.ErrForwardedParse)
}

func TestStatusApply(t *testing.T) {
	cases := []struct {
		from   Status
		action string
		want   Status
	}{
		{StatusOpen, ActionClose, StatusClosed},
		{StatusClosed, ActionOpen, StatusOpen},
		{StatusClosed, ActionClose, StatusClosed},
		{StatusOpen, ActionOpen, StatusOpen},
	}
	for _, tc := range cases {
		got, err := tc.from.Apply(tc.action)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s --%s-->", tc.from, tc.action)
	}

	_, err := StatusOpen.Apply("delete")
	assert.ErrorIs(t, err, bridgeerr.ErrContractViolation)
	_, err = Status("PENDING").Apply(ActionClose)
	assert.ErrorIs(t, err, bridgeerr.ErrContractViolation)
	_, err = ParseStatus("PENDING")
	assert.ErrorIs(t, err, bridgeerr.ErrContractViolation)
}
