package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dwizi/notify-bridge/internal/bridge"
	"github.com/dwizi/notify-bridge/internal/mailmsg"
	"github.com/dwizi/notify-bridge/internal/notification"
	"github.com/dwizi/notify-bridge/internal/store"
)

type Previewer interface {
	Preview(msg mailmsg.Message, kind notification.Kind) (bridge.Preview, error)
}

type IngestionLister interface {
	ListIngestions(ctx context.Context, limit int) ([]store.Ingestion, error)
}

type Config struct {
	Name    string
	Version string
	Logger  *slog.Logger
}

// Server exposes parsing, rendering and the callback round trip as MCP tools.
// Nothing it does reaches the chat.
type Server struct {
	mcp         *sdkmcp.Server
	previewer   Previewer
	coordinator *notification.Coordinator
	ingestions  IngestionLister
	logger      *slog.Logger
}

func New(cfg Config, previewer Previewer, coordinator *notification.Coordinator, ingestions IngestionLister) (*Server, error) {
	if previewer == nil {
		return nil, fmt.Errorf("previewer is required")
	}
	if coordinator == nil {
		coordinator = notification.NewCoordinator(notification.NewRenderer(nil))
	}
	if cfg.Name == "" {
		cfg.Name = "notify-bridge"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		mcp: sdkmcp.NewServer(&sdkmcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		previewer:   previewer,
		coordinator: coordinator,
		ingestions:  ingestions,
		logger:      cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on stdin/stdout until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &sdkmcp.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server run failed: %w", err)
	}
	return nil
}

// Connect serves one session over transport; used with in-memory transports.
func (s *Server) Connect(ctx context.Context, transport sdkmcp.Transport) (*sdkmcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}
