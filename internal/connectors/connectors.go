package connectors

import (
	"context"

	"github.com/dwizi/notify-bridge/internal/bridge"
	"github.com/dwizi/notify-bridge/internal/mailmsg"
	"github.com/dwizi/notify-bridge/internal/store"
)

type Connector interface {
	Name() string
	Start(ctx context.Context) error
}

// MailSource is polled by the scheduler.
type MailSource interface {
	Name() string
	Enabled() bool
	PollOnce(ctx context.Context) error
}

type MailHandler interface {
	HandleMail(ctx context.Context, msg mailmsg.Message) (bridge.Result, error)
}

// Ledger remembers handled messages so a restart does not deliver them twice.
type Ledger interface {
	IsMessageIngested(ctx context.Context, sourceKey string, uid uint32, messageID string) (bool, error)
	MarkMessageIngested(ctx context.Context, input store.MarkIngestionInput) error
}
