package vkteams

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dwizi/notify-bridge/internal/bridge"
	"github.com/dwizi/notify-bridge/internal/heartbeat"
)

const callbackFailedNotice = "Не удалось обновить сообщение"

type CallbackHandler interface {
	HandleCallback(ctx context.Context, input bridge.CallbackInput) error
}

// Connector long-polls the event stream and turns button presses into callbacks.
type Connector struct {
	client      *Client
	handler     CallbackHandler
	pollSeconds int
	retryDelay  time.Duration
	lastEventID int64
	reporter    heartbeat.Reporter
	logger      *slog.Logger
}

func NewConnector(client *Client, handler CallbackHandler, pollSeconds int, logger *slog.Logger) *Connector {
	if pollSeconds < 1 {
		pollSeconds = 25
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Connector{
		client:      client,
		handler:     handler,
		pollSeconds: pollSeconds,
		retryDelay:  1500 * time.Millisecond,
		logger:      logger,
	}
}

func (c *Connector) Name() string {
	return "vkteams"
}

func (c *Connector) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	c.reporter = reporter
}

func (c *Connector) Start(ctx context.Context) error {
	if !c.client.Enabled() {
		c.logger.Info("connector disabled, token missing")
		c.report(func(r heartbeat.Reporter) { r.Disabled(c.Name(), "token missing") })
		<-ctx.Done()
		return nil
	}
	if c.handler == nil {
		c.logger.Info("connector disabled, callback handler missing")
		c.report(func(r heartbeat.Reporter) { r.Disabled(c.Name(), "callback handler missing") })
		<-ctx.Done()
		return nil
	}

	c.report(func(r heartbeat.Reporter) { r.Starting(c.Name(), "started") })
	if bot, err := c.client.Self(ctx); err == nil {
		c.logger.Info("connector started", "bot_nick", bot.Nick, "bot_id", bot.UserID)
	} else {
		c.logger.Warn("vkteams bot identity lookup failed", "error", err)
	}

	for {
		if ctx.Err() != nil {
			c.report(func(r heartbeat.Reporter) { r.Stopped(c.Name(), "stopped") })
			c.logger.Info("connector stopped")
			return nil
		}
		err := c.pollOnce(ctx)
		if err == nil {
			c.report(func(r heartbeat.Reporter) { r.Beat(c.Name(), "events polled") })
			continue
		}
		if ctx.Err() != nil {
			continue
		}
		c.logger.Error("vkteams poll failed", "error", err)
		c.report(func(r heartbeat.Reporter) { r.Degrade(c.Name(), "poll failed", err) })
		select {
		case <-ctx.Done():
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *Connector) pollOnce(ctx context.Context) error {
	events, err := c.client.Events(ctx, c.lastEventID, c.pollSeconds)
	if err != nil {
		return err
	}
	for _, event := range events {
		if event.EventID > c.lastEventID {
			c.lastEventID = event.EventID
		}
		if event.Type != eventCallbackQuery {
			continue
		}
		if err := c.handleCallback(ctx, event); err != nil {
			c.logger.Error("handle callback failed", "error", err, "event_id", event.EventID)
		}
	}
	return nil
}

func (c *Connector) handleCallback(ctx context.Context, event Event) error {
	var payload callbackPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("decode callback payload: %w", err)
	}
	handleErr := c.handler.HandleCallback(ctx, bridge.CallbackInput{
		ChatID:    payload.Message.Chat.ChatID,
		MessageID: payload.Message.MsgID,
		Text:      payload.Message.Text,
		Link:      payload.Message.link(),
		Action:    payload.CallbackData,
		ActorID:   payload.From.displayID(),
	})
	notice := ""
	if handleErr != nil {
		notice = callbackFailedNotice
	}
	if payload.QueryID != "" {
		if err := c.client.AnswerCallback(ctx, payload.QueryID, notice); err != nil {
			c.logger.Warn("answer callback failed", "error", err, "query_id", payload.QueryID)
		}
	}
	return handleErr
}

func (c *Connector) report(fn func(heartbeat.Reporter)) {
	if c.reporter != nil {
		fn(c.reporter)
	}
}
