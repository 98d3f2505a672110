package chatlog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dwizi/notify-bridge/internal/notification"
)

const (
	defaultQueueSize     = 64
	defaultRetryTimeout  = 10 * time.Second
	defaultRetryInterval = time.Second
	maxMessageRunes      = 3500
)

// Sender delivers one HTML message to a chat.
type Sender interface {
	SendText(ctx context.Context, chatID string, rendered notification.Rendered) (string, error)
}

type Recorder interface {
	ChatLogDropped()
}

type Config struct {
	Chats         []string
	Level         slog.Level
	QueueSize     int
	RetryTimeout  time.Duration
	RetryInterval time.Duration
}

type entry struct {
	text string
}

// shared is the delivery state common to a handler and every clone made by
// WithAttrs or WithGroup.
type shared struct {
	sender        Sender
	recorder      Recorder
	chats         []string
	queue         chan entry
	retryTimeout  time.Duration
	retryInterval time.Duration
	logger        *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

// Handler passes every record to the wrapped handler and additionally forwards
// records at or above the configured level to the admin chats. Forwarding is
// asynchronous: when the queue is full the chat copy is dropped.
type Handler struct {
	next      slog.Handler
	level     slog.Level
	state     *shared
	component string
	prefix    string
	attrs     []string
}

func New(next slog.Handler, sender Sender, recorder Recorder, cfg Config) *Handler {
	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	retryTimeout := cfg.RetryTimeout
	if retryTimeout <= 0 {
		retryTimeout = defaultRetryTimeout
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = defaultRetryInterval
	}
	level := cfg.Level
	if level < slog.LevelError {
		level = slog.LevelError
	}
	chats := make([]string, 0, len(cfg.Chats))
	for _, chat := range cfg.Chats {
		if chat = strings.TrimSpace(chat); chat != "" {
			chats = append(chats, chat)
		}
	}
	return &Handler{
		next:  next,
		level: level,
		state: &shared{
			sender:        sender,
			recorder:      recorder,
			chats:         chats,
			queue:         make(chan entry, queueSize),
			retryTimeout:  retryTimeout,
			retryInterval: retryInterval,
			logger:        slog.New(next).With("component", "chatlog"),
			done:          make(chan struct{}),
		},
	}
}

// Forwarding reports whether records are copied to any chat.
func (h *Handler) Forwarding() bool {
	return h.state.sender != nil && len(h.state.chats) > 0
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level) || (h.Forwarding() && level >= h.level)
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	if h.next.Enabled(ctx, record.Level) {
		err = h.next.Handle(ctx, record)
	}
	if h.Forwarding() && record.Level >= h.level {
		h.enqueue(h.format(record))
	}
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := h.clone()
	clone.next = h.next.WithAttrs(attrs)
	for _, attr := range attrs {
		if h.prefix == "" && attr.Key == "component" {
			clone.component = attr.Value.String()
			continue
		}
		clone.attrs = append(clone.attrs, formatAttr(h.prefix, attr))
	}
	return clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := h.clone()
	clone.next = h.next.WithGroup(name)
	clone.prefix = h.prefix + name + "."
	return clone
}

func (h *Handler) clone() *Handler {
	return &Handler{
		next:      h.next,
		level:     h.level,
		state:     h.state,
		component: h.component,
		prefix:    h.prefix,
		attrs:     append([]string(nil), h.attrs...),
	}
}

// format renders `<b>component:LEVEL</b> - <code>message attrs</code>`.
func (h *Handler) format(record slog.Record) string {
	component := h.component
	parts := []string{record.Message}
	parts = append(parts, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		if h.prefix == "" && attr.Key == "component" {
			component = attr.Value.String()
			return true
		}
		parts = append(parts, formatAttr(h.prefix, attr))
		return true
	})
	if strings.TrimSpace(component) == "" {
		component = "root"
	}
	body := strings.Join(parts, " ")
	if runes := []rune(body); len(runes) > maxMessageRunes {
		body = string(runes[:maxMessageRunes]) + "…"
	}
	return fmt.Sprintf("<b>%s:%s</b> - <code>%s</code>",
		notification.EscapeMarkup(component),
		record.Level.String(),
		notification.EscapeMarkup(body),
	)
}

func formatAttr(prefix string, attr slog.Attr) string {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		items := make([]string, 0, len(attr.Value.Group()))
		for _, member := range attr.Value.Group() {
			items = append(items, formatAttr(prefix+attr.Key+".", member))
		}
		return strings.Join(items, " ")
	}
	return prefix + attr.Key + "=" + attr.Value.String()
}

func (h *Handler) enqueue(text string) {
	select {
	case <-h.state.done:
		h.dropped()
		return
	default:
	}
	select {
	case h.state.queue <- entry{text: text}:
	default:
		h.dropped()
	}
}

func (h *Handler) dropped() {
	if h.state.recorder != nil {
		h.state.recorder.ChatLogDropped()
	}
}

// Run delivers queued records until ctx is done. Pending records are flushed
// with a short grace period on shutdown.
func (h *Handler) Run(ctx context.Context) error {
	if !h.Forwarding() {
		<-ctx.Done()
		return nil
	}
	defer h.state.closeOnce.Do(func() { close(h.state.done) })
	for {
		select {
		case <-ctx.Done():
			h.flush()
			return nil
		case item := <-h.state.queue:
			h.deliver(ctx, item)
		}
	}
}

func (h *Handler) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), h.state.retryInterval)
	defer cancel()
	for {
		select {
		case item := <-h.state.queue:
			h.deliver(ctx, item)
		default:
			return
		}
	}
}

// deliver retries each chat until retryTimeout has passed.
func (h *Handler) deliver(ctx context.Context, item entry) {
	rendered := notification.Rendered{Text: item.text}
	for _, chatID := range h.state.chats {
		deadline := time.Now().Add(h.state.retryTimeout)
		for {
			sendCtx, cancel := context.WithDeadline(ctx, deadline)
			_, err := h.state.sender.SendText(sendCtx, chatID, rendered)
			cancel()
			if err == nil {
				break
			}
			h.state.logger.Warn("chat log delivery failed", "chat_id", chatID, "error", err)
			if ctx.Err() != nil || !time.Now().Add(h.state.retryInterval).Before(deadline) {
				h.dropped()
				break
			}
			select {
			case <-ctx.Done():
			case <-time.After(h.state.retryInterval):
			}
		}
	}
}
