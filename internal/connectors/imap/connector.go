package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/dwizi/notify-bridge/internal/bridge"
	"github.com/dwizi/notify-bridge/internal/connectors"
	"github.com/dwizi/notify-bridge/internal/mailmsg"
	"github.com/dwizi/notify-bridge/internal/store"
)

func init() {
	imap.CharsetReader = mailmsg.CharsetReader
}

type Config struct {
	Host          string
	Port          int
	Username      string
	Password      string
	Mailbox       string
	TLSSkipVerify bool
}

type Connector struct {
	host          string
	port          int
	username      string
	password      string
	mailbox       string
	tlsSkipVerify bool
	ledger        connectors.Ledger
	handler       connectors.MailHandler
	logger        *slog.Logger
	fetchUnread   func(ctx context.Context) ([]mailmsg.Message, error)
	markSeen      func(ctx context.Context, uids []uint32) error
}

func New(cfg Config, ledger connectors.Ledger, handler connectors.MailHandler, logger *slog.Logger) *Connector {
	if cfg.Port < 1 {
		cfg.Port = 993
	}
	if strings.TrimSpace(cfg.Mailbox) == "" {
		cfg.Mailbox = "INBOX"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Connector{
		host:          strings.TrimSpace(cfg.Host),
		port:          cfg.Port,
		username:      strings.TrimSpace(cfg.Username),
		password:      cfg.Password,
		mailbox:       strings.TrimSpace(cfg.Mailbox),
		tlsSkipVerify: cfg.TLSSkipVerify,
		ledger:        ledger,
		handler:       handler,
		logger:        logger,
	}
	c.fetchUnread = c.fetchUnreadFromIMAP
	c.markSeen = c.markSeenInIMAP
	return c
}

func (c *Connector) Name() string {
	return "imap"
}

func (c *Connector) Enabled() bool {
	return c.host != "" && c.username != "" && c.password != "" && c.handler != nil
}

// PollOnce handles unread mail oldest first. Every message with a final outcome is
// marked seen; messages whose delivery failed stay unread for the next poll.
func (c *Connector) PollOnce(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	incoming, err := c.fetchUnread(ctx)
	if err != nil {
		return err
	}
	if len(incoming) == 0 {
		c.logger.Debug("no unread mail", "mailbox", c.mailbox)
		return nil
	}
	sort.SliceStable(incoming, func(left, right int) bool {
		return incoming[left].UID < incoming[right].UID
	})

	processedUIDs := make([]uint32, 0, len(incoming))
	var firstErr error
	failed := 0
	for _, item := range incoming {
		if ctx.Err() != nil {
			break
		}
		if c.ledger != nil {
			alreadyIngested, lookupErr := c.ledger.IsMessageIngested(ctx, c.sourceKey(), item.UID, item.MessageID)
			if lookupErr != nil {
				c.logger.Error("mail dedupe lookup failed", "error", lookupErr, "uid", item.UID)
				continue
			}
			if alreadyIngested {
				processedUIDs = append(processedUIDs, item.UID)
				continue
			}
		}
		result, handleErr := c.handler.HandleMail(ctx, item)
		if handleErr != nil {
			failed++
			if firstErr == nil {
				firstErr = handleErr
			}
			c.logger.Error("mail delivery failed, left unread", "error", handleErr, "uid", item.UID, "subject", item.Subject)
			continue
		}
		c.recordOutcome(ctx, item, result)
		processedUIDs = append(processedUIDs, item.UID)
	}

	if len(processedUIDs) > 0 {
		if err := c.markSeen(ctx, processedUIDs); err != nil {
			c.logger.Error("imap mark seen failed", "error", err)
		}
	}
	if firstErr != nil {
		return fmt.Errorf("%d of %d messages not delivered: %w", failed, len(incoming), firstErr)
	}
	return nil
}

func (c *Connector) recordOutcome(ctx context.Context, item mailmsg.Message, result bridge.Result) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.MarkMessageIngested(ctx, store.MarkIngestionInput{
		SourceKey: c.sourceKey(),
		UID:       item.UID,
		MessageID: item.MessageID,
		Kind:      string(result.Kind),
		Outcome:   string(result.Outcome),
	}); err != nil {
		c.logger.Error("mail ledger write failed", "error", err, "uid", item.UID)
	}
}

func (c *Connector) fetchUnreadFromIMAP(ctx context.Context) ([]mailmsg.Message, error) {
	clientInstance, err := c.openClient(ctx)
	if err != nil {
		return nil, err
	}
	defer clientInstance.Logout()
	return c.fetchUnreadWithClient(clientInstance)
}

func (c *Connector) markSeenInIMAP(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	clientInstance, err := c.openClient(ctx)
	if err != nil {
		return err
	}
	defer clientInstance.Logout()

	if _, err := clientInstance.Select(c.mailbox, false); err != nil {
		return fmt.Errorf("imap select mailbox: %w", err)
	}
	set := new(imap.SeqSet)
	set.AddNum(uids...)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := clientInstance.UidStore(set, item, []interface{}{imap.SeenFlag}, nil); err != nil {
		return fmt.Errorf("imap mark seen: %w", err)
	}
	return nil
}

func (c *Connector) openClient(ctx context.Context) (*client.Client, error) {
	address := c.host + ":" + strconv.Itoa(c.port)
	tlsConfig := &tls.Config{
		ServerName:         c.host,
		InsecureSkipVerify: c.tlsSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	clientInstance, err := client.DialTLS(address, tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("imap dial: %w", err)
	}
	select {
	case <-ctx.Done():
		clientInstance.Logout()
		return nil, ctx.Err()
	default:
	}
	if err := clientInstance.Login(c.username, c.password); err != nil {
		clientInstance.Logout()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return clientInstance, nil
}

// fetchUnreadWithClient does not set \Seen: the body is fetched with BODY.PEEK.
func (c *Connector) fetchUnreadWithClient(clientInstance *client.Client) ([]mailmsg.Message, error) {
	if _, err := clientInstance.Select(c.mailbox, false); err != nil {
		return nil, fmt.Errorf("imap select mailbox: %w", err)
	}
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := clientInstance.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search unread: %w", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	set := new(imap.SeqSet)
	set.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchEnvelope,
		section.FetchItem(),
	}
	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- clientInstance.UidFetch(set, items, messages)
	}()

	results := make([]mailmsg.Message, 0, len(uids))
	for fetched := range messages {
		bodyReader := fetched.GetBody(section)
		if bodyReader == nil {
			continue
		}
		raw, readErr := io.ReadAll(io.LimitReader(bodyReader, 2<<20))
		if readErr != nil {
			c.logger.Warn("imap body read failed", "error", readErr, "uid", fetched.Uid)
			continue
		}
		results = append(results, messageFromFetch(fetched, raw))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch unread: %w", err)
	}
	return results, nil
}

// messageFromFetch prefers envelope metadata and falls back to the raw headers.
func messageFromFetch(fetched *imap.Message, raw []byte) mailmsg.Message {
	item, err := mailmsg.Parse(raw)
	if err != nil {
		item = mailmsg.Message{Body: mailmsg.DecodeBody(raw)}
	}
	item.UID = fetched.Uid
	if envelope := fetched.Envelope; envelope != nil {
		if subject := strings.TrimSpace(envelope.Subject); subject != "" {
			item.Subject = subject
		}
		if !envelope.Date.IsZero() {
			item.Date = envelope.Date
		}
		if messageID := strings.TrimSpace(envelope.MessageId); messageID != "" {
			item.MessageID = messageID
		}
		if len(envelope.From) > 0 {
			item.From = formatAddresses(envelope.From)
			if sender := envelope.From[0]; sender != nil {
				item.SenderAddress = strings.ToLower(sender.Address())
			}
		}
	}
	if item.SenderAddress == "" {
		item.SenderAddress = mailmsg.Address(item.From)
	}
	return item
}

func formatAddresses(items []*imap.Address) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		address := strings.TrimSpace(item.Address())
		if name := strings.TrimSpace(item.PersonalName); name != "" {
			parts = append(parts, name+" <"+address+">")
			continue
		}
		parts = append(parts, address)
	}
	return strings.Join(parts, ", ")
}

func (c *Connector) sourceKey() string {
	return "imap:" + c.username + ":" + c.mailbox
}
