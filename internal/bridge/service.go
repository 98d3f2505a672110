package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dwizi/notify-bridge/internal/bridgeerr"
	"github.com/dwizi/notify-bridge/internal/mailmsg"
	"github.com/dwizi/notify-bridge/internal/notification"
)

type Outcome string

const (
	OutcomeDelivered   Outcome = "delivered"
	OutcomeRejected    Outcome = "rejected"
	OutcomeParseFailed Outcome = "parse_failed"
)

// Result is what the ledger records for a handled message. Kind is empty for rejected mail.
type Result struct {
	Kind    notification.Kind
	Outcome Outcome
}

// Gateway delivers rendered notifications to a chat.
type Gateway interface {
	SendText(ctx context.Context, chatID string, rendered notification.Rendered) (string, error)
	EditText(ctx context.Context, chatID, messageID string, rendered notification.Rendered) error
}

type Recorder interface {
	ObserveMail(kind, outcome string)
	ObserveCallback(action, result string)
}

// CallbackInput is a button press on a previously delivered incident message.
type CallbackInput struct {
	ChatID    string
	MessageID string
	Text      string
	Link      string
	Action    string
	ActorID   string
}

type Chats struct {
	Incident   string
	Monitoring string
}

type Service struct {
	mu          sync.Mutex
	classifier  *notification.Classifier
	renderer    *notification.Renderer
	coordinator *notification.Coordinator
	gateway     Gateway
	chats       map[notification.Kind]string
	recorder    Recorder
	logger      *slog.Logger
}

func New(classifier *notification.Classifier, renderer *notification.Renderer, gateway Gateway, chats Chats, recorder Recorder, logger *slog.Logger) *Service {
	if classifier == nil {
		classifier = notification.DefaultClassifier()
	}
	if renderer == nil {
		renderer = notification.NewRenderer(nil)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		classifier:  classifier,
		renderer:    renderer,
		coordinator: notification.NewCoordinator(renderer),
		gateway:     gateway,
		chats: map[notification.Kind]string{
			notification.KindIncident:   strings.TrimSpace(chats.Incident),
			notification.KindMonitoring: strings.TrimSpace(chats.Monitoring),
		},
		recorder: recorder,
		logger:   logger,
	}
}

// Classify returns ErrNotRecognized when no rule accepts the message.
func (s *Service) Classify(msg mailmsg.Message) (notification.Kind, error) {
	sender := msg.SenderAddress
	if sender == "" {
		sender = mailmsg.Address(msg.From)
	}
	kind, ok := s.classifier.Classify(sender, msg.Subject)
	if !ok {
		return "", bridgeerr.ErrNotRecognized
	}
	return kind, nil
}

// Preview is the result of classifying and rendering a message without delivering it.
type Preview struct {
	Kind     notification.Kind
	Record   notification.Record
	Rendered notification.Rendered
}

// Preview renders msg as it would be delivered. A non-empty kind bypasses the classifier.
func (s *Service) Preview(msg mailmsg.Message, kind notification.Kind) (Preview, error) {
	if kind == "" {
		classified, err := s.Classify(msg)
		if err != nil {
			return Preview{}, err
		}
		kind = classified
	}
	record, err := notification.Parse(kind, msg.Body)
	if err != nil {
		return Preview{Kind: kind}, err
	}
	return Preview{Kind: kind, Record: record, Rendered: s.renderer.Render(record)}, nil
}

// HandleMail classifies, parses, renders and delivers one message. A returned error
// means delivery did not happen and the message may be retried; rejected and
// unparseable mail is final and reported through the outcome.
func (s *Service) HandleMail(ctx context.Context, msg mailmsg.Message) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.With("uid", msg.UID, "message_id", msg.MessageID)
	kind, err := s.Classify(msg)
	if err != nil {
		logger.Info("mail not recognized", "from", msg.From, "subject", msg.Subject)
		s.observeMail("", OutcomeRejected)
		return Result{Outcome: OutcomeRejected}, nil
	}
	logger = logger.With("kind", string(kind))

	record, err := notification.Parse(kind, msg.Body)
	if err != nil {
		if errors.Is(err, bridgeerr.ErrParseFailure) {
			logger.Error("notification parse failed", "error", err, "text", msg.Body)
			s.observeMail(kind, OutcomeParseFailed)
			return Result{Kind: kind, Outcome: OutcomeParseFailed}, nil
		}
		return Result{}, err
	}
	if incident, ok := record.(*notification.Incident); ok && incident.ForwardedUnparsed() {
		logger.Warn("forwarded incident kept as text", "error", bridgeerr.ErrForwardedParse, "incident_id", incident.ID)
	}

	chatID := s.chats[kind]
	if chatID == "" {
		return Result{}, fmt.Errorf("no chat configured for %s: %w", kind, bridgeerr.ErrGatewayDisabled)
	}
	if s.gateway == nil {
		return Result{}, bridgeerr.ErrGatewayDisabled
	}
	rendered := s.renderer.Render(record)
	messageID, err := s.gateway.SendText(ctx, chatID, rendered)
	if err != nil {
		return Result{}, fmt.Errorf("deliver %s: %w", kind, err)
	}
	s.observeMail(kind, OutcomeDelivered)
	logger.Info("notification delivered", "chat_id", chatID, "chat_message_id", messageID)
	return Result{Kind: kind, Outcome: OutcomeDelivered}, nil
}

// HandleCallback rewrites the pressed message. On any error the message is left as it was.
func (s *Service) HandleCallback(ctx context.Context, input CallbackInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.With("chat_id", input.ChatID, "chat_message_id", input.MessageID, "action", input.Action)
	rendered, err := s.coordinator.ApplyCallback(input.Text, input.Link, input.Action, input.ActorID)
	if err != nil {
		logger.Error("callback rejected", "error", err, "text", input.Text)
		s.observeCallback(input.Action, "rejected")
		return err
	}
	if s.gateway == nil {
		s.observeCallback(input.Action, "failed")
		return bridgeerr.ErrGatewayDisabled
	}
	if err := s.gateway.EditText(ctx, input.ChatID, input.MessageID, rendered); err != nil {
		logger.Error("callback edit failed", "error", err)
		s.observeCallback(input.Action, "failed")
		return fmt.Errorf("edit message: %w", err)
	}
	s.observeCallback(input.Action, "edited")
	logger.Info("incident status changed", "actor_id", input.ActorID)
	return nil
}

func (s *Service) observeMail(kind notification.Kind, outcome Outcome) {
	if s.recorder != nil {
		s.recorder.ObserveMail(string(kind), string(outcome))
	}
}

func (s *Service) observeCallback(action, result string) {
	if s.recorder != nil {
		s.recorder.ObserveCallback(action, result)
	}
}
