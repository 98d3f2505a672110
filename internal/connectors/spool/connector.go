package spool

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dwizi/notify-bridge/internal/connectors"
	"github.com/dwizi/notify-bridge/internal/heartbeat"
	"github.com/dwizi/notify-bridge/internal/mailmsg"
	"github.com/dwizi/notify-bridge/internal/store"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"

	defaultSettle = 500 * time.Millisecond
	maxFileBytes  = 2 << 20
)

type Config struct {
	Dir    string
	Settle time.Duration
}

// Connector reads mail saved as .eml or .txt files from a directory. Handled
// files move to processed/, unreadable ones to failed/. A file whose delivery
// failed stays where it is and is retried by the next poll.
type Connector struct {
	dir      string
	settle   time.Duration
	ledger   connectors.Ledger
	handler  connectors.MailHandler
	logger   *slog.Logger
	reporter heartbeat.Reporter
	now      func() time.Time

	pollMu sync.Mutex
}

func New(cfg Config, ledger connectors.Ledger, handler connectors.MailHandler, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	settle := cfg.Settle
	if settle <= 0 {
		settle = defaultSettle
	}
	dir := strings.TrimSpace(cfg.Dir)
	if dir != "" {
		dir = filepath.Clean(dir)
	}
	return &Connector{
		dir:     dir,
		settle:  settle,
		ledger:  ledger,
		handler: handler,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (c *Connector) Name() string {
	return "spool"
}

func (c *Connector) Enabled() bool {
	return c.dir != "" && c.handler != nil
}

func (c *Connector) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	c.reporter = reporter
}

// Start watches the spool directory and polls shortly after files settle.
func (c *Connector) Start(ctx context.Context) error {
	if !c.Enabled() {
		c.report(func(r heartbeat.Reporter) { r.Disabled(c.Name(), "no spool directory configured") })
		c.logger.Info("spool watcher disabled, no directory configured")
		<-ctx.Done()
		return nil
	}
	if err := c.ensureDirs(); err != nil {
		return err
	}
	fileWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fileWatcher.Close()
	if err := fileWatcher.Add(c.dir); err != nil {
		return fmt.Errorf("watch spool dir %s: %w", c.dir, err)
	}

	c.report(func(r heartbeat.Reporter) { r.Beat(c.Name(), "watching") })
	c.logger.Info("spool watcher started", "dir", c.dir)
	c.pollAndReport(ctx)

	settleTimer := time.NewTimer(c.settle)
	if !settleTimer.Stop() {
		<-settleTimer.C
	}
	for {
		select {
		case <-ctx.Done():
			settleTimer.Stop()
			c.report(func(r heartbeat.Reporter) { r.Stopped(c.Name(), "stopped") })
			c.logger.Info("spool watcher stopped")
			return nil
		case event, ok := <-fileWatcher.Events:
			if !ok {
				return nil
			}
			if isMailEvent(event) {
				settleTimer.Reset(c.settle)
			}
		case watchErr, ok := <-fileWatcher.Errors:
			if !ok {
				return nil
			}
			if watchErr != nil {
				c.logger.Error("spool watcher error", "error", watchErr)
			}
		case <-settleTimer.C:
			c.pollAndReport(ctx)
		}
	}
}

func (c *Connector) pollAndReport(ctx context.Context) {
	if err := c.PollOnce(ctx); err != nil {
		c.logger.Error("spool poll failed", "error", err)
		c.report(func(r heartbeat.Reporter) { r.Degrade(c.Name(), "poll failed", err) })
		return
	}
	c.report(func(r heartbeat.Reporter) { r.Beat(c.Name(), "watching") })
}

// PollOnce handles every mail file currently in the spool, oldest first.
func (c *Connector) PollOnce(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	if err := c.ensureDirs(); err != nil {
		return err
	}
	files, err := c.pendingFiles()
	if err != nil {
		return err
	}
	var firstErr error
	failed := 0
	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		if err := c.processFile(ctx, path); err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			c.logger.Error("spool mail delivery failed, left in place", "error", err, "file", filepath.Base(path))
		}
	}
	if firstErr != nil {
		return fmt.Errorf("%d of %d spool files not delivered: %w", failed, len(files), firstErr)
	}
	return nil
}

func (c *Connector) processFile(ctx context.Context, path string) error {
	name := filepath.Base(path)
	raw, err := readLimited(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		c.logger.Error("spool file unreadable", "error", err, "file", name)
		return c.moveTo(path, FailedDir)
	}
	msg, err := mailmsg.Parse(raw)
	if err != nil {
		c.logger.Error("spool file is not a mail message", "error", err, "file", name)
		return c.moveTo(path, FailedDir)
	}
	messageID := msg.MessageID
	if messageID == "" {
		messageID = fallbackMessageID(name, raw)
	}
	msg.MessageID = messageID

	if c.ledger != nil {
		alreadyIngested, lookupErr := c.ledger.IsMessageIngested(ctx, c.sourceKey(), 0, messageID)
		if lookupErr != nil {
			return fmt.Errorf("dedupe lookup %s: %w", name, lookupErr)
		}
		if alreadyIngested {
			c.logger.Debug("spool file already ingested", "file", name, "message_id", messageID)
			return c.moveTo(path, ProcessedDir)
		}
	}

	result, err := c.handler.HandleMail(ctx, msg)
	if err != nil {
		return err
	}
	if c.ledger != nil {
		if markErr := c.ledger.MarkMessageIngested(ctx, store.MarkIngestionInput{
			SourceKey: c.sourceKey(),
			MessageID: messageID,
			Kind:      string(result.Kind),
			Outcome:   string(result.Outcome),
		}); markErr != nil {
			c.logger.Error("mail ledger write failed", "error", markErr, "file", name)
		}
	}
	return c.moveTo(path, ProcessedDir)
}

// fallbackMessageID keys mail without a Message-ID header by name and content,
// so a spool file name reused for a different mail is not mistaken for a duplicate.
func fallbackMessageID(name string, raw []byte) string {
	sum := sha256.Sum256(raw)
	return "file:" + name + ":" + hex.EncodeToString(sum[:])
}

func (c *Connector) pendingFiles() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read spool dir: %w", err)
	}
	type pending struct {
		path    string
		modTime time.Time
	}
	items := make([]pending, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isMailFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, pending{path: filepath.Join(c.dir, entry.Name()), modTime: info.ModTime()})
	}
	sort.SliceStable(items, func(left, right int) bool {
		if items[left].modTime.Equal(items[right].modTime) {
			return items[left].path < items[right].path
		}
		return items[left].modTime.Before(items[right].modTime)
	})
	paths := make([]string, 0, len(items))
	for _, item := range items {
		paths = append(paths, item.path)
	}
	return paths, nil
}

// moveTo never overwrites: a name clash gets a timestamp prefix.
func (c *Connector) moveTo(path, subdir string) error {
	name := filepath.Base(path)
	target := filepath.Join(c.dir, subdir, name)
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(c.dir, subdir, c.now().Format("20060102T150405.000000000")+"-"+name)
	}
	if err := os.Rename(path, target); err != nil {
		return fmt.Errorf("move %s to %s: %w", name, subdir, err)
	}
	return nil
}

func (c *Connector) ensureDirs() error {
	for _, subdir := range []string{ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(c.dir, subdir), 0o755); err != nil {
			return fmt.Errorf("create spool dir: %w", err)
		}
	}
	return nil
}

func (c *Connector) sourceKey() string {
	return "spool:" + c.dir
}

func (c *Connector) report(fn func(heartbeat.Reporter)) {
	if c.reporter != nil {
		fn(c.reporter)
	}
}

func isMailEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	return isMailFile(event.Name)
}

func isMailFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".eml", ".txt":
		return true
	default:
		return false
	}
}

func readLimited(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxFileBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxFileBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", maxFileBytes)
	}
	return data, nil
}
