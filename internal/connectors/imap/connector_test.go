package imap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwizi/notify-bridge/internal/bridge"
	"github.com/dwizi/notify-bridge/internal/mailmsg"
	"github.com/dwizi/notify-bridge/internal/notification"
	"github.com/dwizi/notify-bridge/internal/store"
)

type fakeLedger struct {
	ingested map[uint32]bool
	marked   []store.MarkIngestionInput
}

func (f *fakeLedger) IsMessageIngested(ctx context.Context, sourceKey string, uid uint32, messageID string) (bool, error) {
	return f.ingested[uid], nil
}

func (f *fakeLedger) MarkMessageIngested(ctx context.Context, input store.MarkIngestionInput) error {
	if f.ingested == nil {
		f.ingested = map[uint32]bool{}
	}
	f.ingested[input.UID] = true
	f.marked = append(f.marked, input)
	return nil
}

type fakeHandler struct {
	handled  []uint32
	outcomes map[uint32]bridge.Outcome
	failures map[uint32]error
}

func (f *fakeHandler) HandleMail(ctx context.Context, msg mailmsg.Message) (bridge.Result, error) {
	f.handled = append(f.handled, msg.UID)
	if err := f.failures[msg.UID]; err != nil {
		return bridge.Result{}, err
	}
	if outcome, ok := f.outcomes[msg.UID]; ok {
		return bridge.Result{Outcome: outcome}, nil
	}
	return bridge.Result{Kind: notification.KindMonitoring, Outcome: bridge.OutcomeDelivered}, nil
}

func newTestConnector(ledger *fakeLedger, handler *fakeHandler, unread []mailmsg.Message) (*Connector, *[]uint32) {
	connector := New(Config{
		Host:     "imap.example.com",
		Username: "bridge@example.com",
		Password: "secret",
	}, ledger, handler, nil)
	seen := []uint32{}
	connector.fetchUnread = func(ctx context.Context) ([]mailmsg.Message, error) {
		return unread, nil
	}
	connector.markSeen = func(ctx context.Context, uids []uint32) error {
		seen = append(seen, uids...)
		return nil
	}
	return connector, &seen
}

func TestPollOnceHandlesOldestFirstAndMarksSeen(t *testing.T) {
	ledger := &fakeLedger{}
	handler := &fakeHandler{outcomes: map[uint32]bridge.Outcome{8: bridge.OutcomeRejected}}
	connector, seen := newTestConnector(ledger, handler, []mailmsg.Message{
		{UID: 9, MessageID: "<b@example.com>"},
		{UID: 7, MessageID: "<a@example.com>"},
		{UID: 8, MessageID: "<c@example.com>"},
	})

	require.NoError(t, connector.PollOnce(context.Background()))
	assert.Equal(t, []uint32{7, 8, 9}, handler.handled)
	assert.Equal(t, []uint32{7, 8, 9}, *seen)
	require.Len(t, ledger.marked, 3)
	assert.Equal(t, "imap:bridge@example.com:INBOX", ledger.marked[0].SourceKey)
	assert.Equal(t, "<a@example.com>", ledger.marked[0].MessageID)
	assert.Equal(t, "monitoring", ledger.marked[0].Kind)
	assert.Equal(t, string(bridge.OutcomeRejected), ledger.marked[1].Outcome)
	assert.Empty(t, ledger.marked[1].Kind)
}

func TestPollOnceSkipsAlreadyIngestedButMarksSeen(t *testing.T) {
	ledger := &fakeLedger{ingested: map[uint32]bool{5: true}}
	handler := &fakeHandler{}
	connector, seen := newTestConnector(ledger, handler, []mailmsg.Message{{UID: 5}, {UID: 6}})

	require.NoError(t, connector.PollOnce(context.Background()))
	assert.Equal(t, []uint32{6}, handler.handled)
	assert.Equal(t, []uint32{5, 6}, *seen)
	assert.Len(t, ledger.marked, 1)
}

func TestPollOnceLeavesFailedDeliveryUnread(t *testing.T) {
	ledger := &fakeLedger{}
	sendErr := errors.New("vk teams unavailable")
	handler := &fakeHandler{failures: map[uint32]error{2: sendErr}}
	connector, seen := newTestConnector(ledger, handler, []mailmsg.Message{{UID: 1}, {UID: 2}, {UID: 3}})

	err := connector.PollOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sendErr)
	assert.Contains(t, err.Error(), "1 of 3")
	assert.Equal(t, []uint32{1, 2, 3}, handler.handled)
	assert.Equal(t, []uint32{1, 3}, *seen)
	assert.False(t, ledger.ingested[2])
}

func TestPollOnceReturnsFetchError(t *testing.T) {
	connector, seen := newTestConnector(&fakeLedger{}, &fakeHandler{}, nil)
	connector.fetchUnread = func(ctx context.Context) ([]mailmsg.Message, error) {
		return nil, errors.New("imap dial: refused")
	}

	err := connector.PollOnce(context.Background())
	require.EqualError(t, err, "imap dial: refused")
	assert.Empty(t, *seen)
}

func TestPollOnceDisabledWithoutCredentials(t *testing.T) {
	connector := New(Config{Host: "imap.example.com"}, nil, &fakeHandler{}, nil)
	connector.fetchUnread = func(ctx context.Context) ([]mailmsg.Message, error) {
		t.Fatal("fetch must not run while disabled")
		return nil, nil
	}
	assert.False(t, connector.Enabled())
	require.NoError(t, connector.PollOnce(context.Background()))
}

func TestNewAppliesDefaults(t *testing.T) {
	connector := New(Config{Host: " imap.example.com ", Username: "u", Password: "p"}, nil, &fakeHandler{}, nil)
	assert.Equal(t, 993, connector.port)
	assert.Equal(t, "INBOX", connector.mailbox)
	assert.Equal(t, "imap.example.com", connector.host)
	assert.Equal(t, "imap", connector.Name())
}

func TestMessageFromFetchPrefersEnvelope(t *testing.T) {
	raw := []byte("From: Raw Sender <raw@example.com>\r\n" +
		"Subject: raw subject\r\n" +
		"Message-ID: <raw@example.com>\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"hello body\r\n")
	date := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	fetched := &imap.Message{
		Uid: 42,
		Envelope: &imap.Envelope{
			Subject:   "envelope subject",
			Date:      date,
			MessageId: "<env@example.com>",
			From: []*imap.Address{{
				PersonalName: "Service Desk",
				MailboxName:  "SD",
				HostName:     "Example.com",
			}},
		},
	}

	item := messageFromFetch(fetched, raw)
	assert.Equal(t, uint32(42), item.UID)
	assert.Equal(t, "envelope subject", item.Subject)
	assert.Equal(t, date, item.Date)
	assert.Equal(t, "<env@example.com>", item.MessageID)
	assert.Equal(t, "Service Desk <SD@Example.com>", item.From)
	assert.Equal(t, "sd@example.com", item.SenderAddress)
	assert.Contains(t, item.Body, "hello body")
}

func TestMessageFromFetchFallsBackToHeaders(t *testing.T) {
	raw := []byte("From: Raw Sender <Raw@Example.com>\r\n" +
		"Subject: raw subject\r\n" +
		"\r\n" +
		"body\r\n")

	item := messageFromFetch(&imap.Message{Uid: 3}, raw)
	assert.Equal(t, "raw subject", item.Subject)
	assert.Equal(t, "raw@example.com", item.SenderAddress)
}
