package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwizi/notify-bridge/internal/heartbeat"
)

const livenessInterval = 20 * time.Second

func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("notify-bridge runtime starting",
		"addr", r.cfg.HTTPAddr,
		"version", Version,
		"scheduled_sources", len(r.sources),
		"chatlog", r.chatlog != nil,
	)

	group, groupCtx := errgroup.WithContext(ctx)
	defer r.startChatLog()()
	// Idle components only beat when they have work, so keep them fresh.
	schedulerBeat := time.Duration(0)
	if len(r.sources) > 0 {
		schedulerBeat = livenessInterval
	}
	group.Go(func() error {
		return runMonitored(groupCtx, r.heartbeat, "scheduler", schedulerBeat, func(runCtx context.Context) error {
			return r.scheduler.Start(runCtx)
		})
	})
	for _, conn := range r.connectors {
		connector := conn
		beatInterval := time.Duration(0)
		if idle, ok := connector.(interface{ Enabled() bool }); ok && idle.Enabled() {
			beatInterval = livenessInterval
		}
		group.Go(func() error {
			componentName := strings.ToLower(strings.TrimSpace(connector.Name()))
			return runMonitored(groupCtx, r.heartbeat, componentName, beatInterval, func(runCtx context.Context) error {
				return connector.Start(runCtx)
			})
		})
	}
	group.Go(func() error {
		return runMonitored(groupCtx, r.heartbeat, "api", livenessInterval, func(runCtx context.Context) error {
			err := r.httpServer.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	})
	group.Go(func() error {
		return r.heartbeatMonitor.Start(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	err := group.Wait()
	if err != nil {
		r.logger.Error("runtime stopped with error", "error", err)
	}
	return err
}

// PollNow runs every scheduled mail source once, outside the cron schedule. It is
// meant for one-shot use: the chat log handler is flushed and closed on return.
func (r *Runtime) PollNow(ctx context.Context) error {
	defer r.startChatLog()()
	var errs []error
	for _, source := range r.sources {
		if err := r.scheduler.RunNow(ctx, "poll-"+source.Name()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// startChatLog runs the chat log handler on a background context so records logged
// during shutdown still flush. The returned func stops it and waits for the flush.
func (r *Runtime) startChatLog() func() {
	if r.chatlog == nil {
		return func() {}
	}
	chatlogCtx, stopChatlog := context.WithCancel(context.Background())
	chatlogDone := make(chan struct{})
	go func() {
		defer close(chatlogDone)
		_ = r.chatlog.Run(chatlogCtx)
	}()
	return func() {
		stopChatlog()
		<-chatlogDone
	}
}

// Handler is the HTTP API served by Run.
func (r *Runtime) Handler() http.Handler {
	return r.httpServer.Handler
}

func (r *Runtime) Close() error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}

func runMonitored(
	ctx context.Context,
	reporter heartbeat.Reporter,
	component string,
	beatInterval time.Duration,
	run func(context.Context) error,
) error {
	if run == nil {
		return nil
	}
	if reporter != nil {
		reporter.Starting(component, "starting")
		reporter.Beat(component, "running")
	}

	var stopHeartbeat func()
	if reporter != nil && beatInterval > 0 {
		heartbeatCtx, cancel := context.WithCancel(ctx)
		stopHeartbeat = cancel
		go func() {
			ticker := time.NewTicker(beatInterval)
			defer ticker.Stop()
			for {
				select {
				case <-heartbeatCtx.Done():
					return
				case <-ticker.C:
					reporter.Beat(component, "running")
				}
			}
		}()
	}

	err := run(ctx)
	if stopHeartbeat != nil {
		stopHeartbeat()
	}
	if reporter == nil {
		return err
	}
	if err != nil && ctx.Err() == nil {
		reporter.Degrade(component, "component failed", err)
		return err
	}
	reporter.Stopped(component, "stopped")
	return err
}
