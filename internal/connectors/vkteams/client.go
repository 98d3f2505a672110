package vkteams

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dwizi/notify-bridge/internal/bridgeerr"
	"github.com/dwizi/notify-bridge/internal/notification"
)

const defaultAPIBase = "https://api.internal.myteam.mail.ru/bot/v1"

type Recorder interface {
	ObserveGatewayCall(method string, err error, elapsed time.Duration)
}

// Client calls the VK Teams Bot API. Every method is a GET with query parameters.
type Client struct {
	token      string
	apiBase    string
	httpClient *http.Client
	recorder   Recorder
	logger     *slog.Logger
}

func NewClient(token, apiBase string, timeout time.Duration, recorder Recorder, logger *slog.Logger) *Client {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = defaultAPIBase
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		token:      strings.TrimSpace(token),
		apiBase:    strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		httpClient: &http.Client{Timeout: timeout},
		recorder:   recorder,
		logger:     logger,
	}
}

func (c *Client) Enabled() bool {
	return c != nil && c.token != ""
}

type apiStatus struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

type BotInfo struct {
	UserID    string `json:"userId"`
	Nick      string `json:"nick"`
	FirstName string `json:"firstName"`
}

func (c *Client) Self(ctx context.Context) (BotInfo, error) {
	var payload struct {
		apiStatus
		BotInfo
	}
	if err := c.call(ctx, "self/get", url.Values{}, &payload); err != nil {
		return BotInfo{}, err
	}
	return payload.BotInfo, nil
}

// SendText posts an HTML message with its keyboard and returns the new message id.
func (c *Client) SendText(ctx context.Context, chatID string, rendered notification.Rendered) (string, error) {
	params, err := textParams(chatID, rendered)
	if err != nil {
		return "", err
	}
	var payload struct {
		apiStatus
		MsgID string `json:"msgId"`
	}
	if err := c.call(ctx, "messages/sendText", params, &payload); err != nil {
		return "", err
	}
	return payload.MsgID, nil
}

func (c *Client) EditText(ctx context.Context, chatID, messageID string, rendered notification.Rendered) error {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return fmt.Errorf("message id is required")
	}
	params, err := textParams(chatID, rendered)
	if err != nil {
		return err
	}
	params.Set("msgId", messageID)
	var payload apiStatus
	return c.call(ctx, "messages/editText", params, &payload)
}

// AnswerCallback acknowledges a button press; text is shown to the presser when set.
func (c *Client) AnswerCallback(ctx context.Context, queryID, text string) error {
	params := url.Values{}
	params.Set("queryId", strings.TrimSpace(queryID))
	if text = strings.TrimSpace(text); text != "" {
		params.Set("text", text)
	}
	var payload apiStatus
	return c.call(ctx, "messages/answerCallbackQuery", params, &payload)
}

// Events long-polls for events newer than lastEventID.
func (c *Client) Events(ctx context.Context, lastEventID int64, pollSeconds int) ([]Event, error) {
	params := url.Values{}
	params.Set("lastEventId", strconv.FormatInt(lastEventID, 10))
	params.Set("pollTime", strconv.Itoa(pollSeconds))
	var payload struct {
		apiStatus
		Events []Event `json:"events"`
	}
	if err := c.call(ctx, "events/get", params, &payload); err != nil {
		return nil, err
	}
	return payload.Events, nil
}

func textParams(chatID string, rendered notification.Rendered) (url.Values, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, fmt.Errorf("chat id is required")
	}
	params := url.Values{}
	params.Set("chatId", chatID)
	params.Set("parseMode", "HTML")
	params.Set("text", rendered.Text)
	if len(rendered.Keyboard) > 0 {
		markup, err := EncodeKeyboard(rendered.Keyboard)
		if err != nil {
			return nil, err
		}
		params.Set("inlineKeyboardMarkup", markup)
	}
	return params, nil
}

// statusReader lets call check "ok" on any response shape that embeds apiStatus.
type statusReader interface {
	status() apiStatus
}

func (s apiStatus) status() apiStatus {
	return s
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out statusReader) (err error) {
	if !c.Enabled() {
		return bridgeerr.ErrGatewayDisabled
	}
	started := time.Now()
	defer func() {
		if c.recorder != nil {
			c.recorder.ObserveGatewayCall(method, err, time.Since(started))
		}
	}()

	params.Set("token", c.token)
	endpoint := c.apiBase + "/" + method + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vkteams %s: %w", method, redactToken(err, c.token))
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read vkteams %s: %w", method, err)
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("vkteams %s: status %d: %s", method, res.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode vkteams %s: %w", method, err)
	}
	if status := out.status(); !status.OK {
		description := strings.TrimSpace(status.Description)
		if description == "" {
			description = "request failed"
		}
		return fmt.Errorf("vkteams %s: %s", method, description)
	}
	c.logger.Debug("vkteams call completed", "method", method, "duration", time.Since(started).String())
	return nil
}

// redactToken keeps the bot token out of logged transport errors, which embed the URL.
func redactToken(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "***"))
}
