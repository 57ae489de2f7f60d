// Package runtime wires the channel ports, session manager, policy
// executor, and idempotency guard into the per-event pipeline, and owns
// the adapters' start/stop lifecycle.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kessler-labs/switchboard/internal/channel"
	"github.com/kessler-labs/switchboard/internal/events"
	"github.com/kessler-labs/switchboard/internal/idempotency"
	"github.com/kessler-labs/switchboard/internal/policy"
	"github.com/kessler-labs/switchboard/internal/sessions"
)

// Config wires an Orchestrator's collaborators.
type Config struct {
	Bus              *events.Bus
	SessionManager   *sessions.Manager
	Guard            *idempotency.Guard // nil disables idempotency
	PolicyFor        func(roomKey string) *policy.Executor
	Processor        ProcessorConfig
	DefaultPrincipal func(evt channel.ChannelEvent) sessions.Principal

	// SessionCleanupInterval paces the default "@every" maintenance
	// schedule when SessionCleanupCron is empty. Zero falls back to 15m.
	SessionCleanupInterval time.Duration
	// SessionCleanupCron is a cron expression (standard 5-field, or
	// "@every <duration>") driving expired-session eviction. Empty uses
	// SessionCleanupInterval instead.
	SessionCleanupCron string
}

// Orchestrator is the runtime's top-level lifecycle owner: RegisterChannel
// before Start, Start to bring every adapter up and begin consuming their
// event streams, Stop to drain in flight pipelines and disconnect, Dispose
// to additionally close the observable streams.
type Orchestrator struct {
	cfg       Config
	processor *Processor
	cleanup   *maintenanceScheduler

	mu        sync.Mutex
	adapters  map[string]channel.Port
	isRunning bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an Orchestrator. PolicyFor is called for every event with the
// event's room key; reusing an Executor across calls is left to the
// caller-supplied function (typically backed by a small cache).
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		processor: NewProcessor(cfg.SessionManager, cfg.Processor),
		adapters:  make(map[string]channel.Port),
	}
}

// RegisterChannel adds an adapter. Only allowed before Start.
func (o *Orchestrator) RegisterChannel(port channel.Port) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.isRunning {
		return fmt.Errorf("cannot register channel %q: orchestrator already running", port.Platform())
	}
	o.adapters[port.Platform()] = port
	return nil
}

// Start initializes stores are assumed already wired via Config, starts
// every registered adapter, and subscribes to their event streams.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.isRunning {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.isRunning = true
	adapters := make([]channel.Port, 0, len(o.adapters))
	for _, p := range o.adapters {
		adapters = append(adapters, p)
	}
	o.mu.Unlock()

	for _, p := range adapters {
		if err := p.Start(o.ctx); err != nil {
			return fmt.Errorf("start adapter %q: %w", p.Platform(), err)
		}
		o.wg.Add(1)
		go o.consume(p)
	}

	if o.cfg.SessionManager != nil {
		sched, err := newMaintenanceScheduler(o.cfg.SessionCleanupCron, o.cfg.SessionCleanupInterval, o.cfg.SessionManager.CleanupExpired)
		if err != nil {
			return fmt.Errorf("build session maintenance schedule: %w", err)
		}
		sched.Start()
		o.mu.Lock()
		o.cleanup = sched
		o.mu.Unlock()
	}

	slog.Info("runtime started", "adapters", len(adapters))
	return nil
}

// consume reads p's event stream until it closes or the orchestrator
// context is cancelled, running the pipeline for each event on its own
// goroutine so one slow pipeline never blocks the adapter's reader.
func (o *Orchestrator) consume(p channel.Port) {
	defer o.wg.Done()

	for {
		select {
		case evt, ok := <-p.Events():
			if !ok {
				return
			}
			o.wg.Add(1)
			go func() {
				defer o.wg.Done()
				o.handle(p, evt)
			}()
		case <-o.ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) handle(p channel.Port, evt channel.ChannelEvent) {
	executor := o.cfg.PolicyFor(policy.RoomKey(evt.Conversation.Platform, evt.Conversation.Tenant, evt.Conversation.Room))

	principal := sessions.Principal{}
	if o.cfg.DefaultPrincipal != nil {
		principal = o.cfg.DefaultPrincipal(evt)
	}

	pl := &pipeline{
		bus:       o.cfg.Bus,
		guard:     o.cfg.Guard,
		executor:  executor,
		processor: o.processor,
		sendFn:    p.Send,
	}
	pl.run(o.ctx, evt, principal)
}

// Stop unsubscribes, stops every adapter, and waits (bounded by ctx) for
// in-flight pipelines to drain.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.isRunning {
		o.mu.Unlock()
		return nil
	}
	adapters := make([]channel.Port, 0, len(o.adapters))
	for _, p := range o.adapters {
		adapters = append(adapters, p)
	}
	sched := o.cleanup
	o.cleanup = nil
	o.isRunning = false
	o.mu.Unlock()

	o.cancel()

	if sched != nil {
		sched.Stop()
	}

	for _, p := range adapters {
		if err := p.Stop(ctx); err != nil {
			slog.Error("stop adapter", "platform", p.Platform(), "error", err)
		}
	}

	drained := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		slog.Warn("runtime stop: grace period elapsed with pipelines still in flight")
	}
	return nil
}

// Dispose stops the orchestrator and releases the event bus.
func (o *Orchestrator) Dispose(ctx context.Context) error {
	if err := o.Stop(ctx); err != nil {
		return err
	}
	o.cfg.Bus.Close()
	return nil
}

// IsRunning reports whether Start has completed without a matching Stop.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.isRunning
}

// ActiveSessionCount reports the number of sessions currently in the
// active state, for liveness reporting. Returns 0 if no SessionManager
// is wired.
func (o *Orchestrator) ActiveSessionCount() int {
	if o.cfg.SessionManager == nil {
		return 0
	}
	active := sessions.StateActive
	list, err := o.cfg.SessionManager.List(0, 0, &active)
	if err != nil {
		return 0
	}
	return len(list)
}

// ConnectedAdapterCount reports how many registered channel adapters
// currently report themselves as running.
func (o *Orchestrator) ConnectedAdapterCount() int {
	o.mu.Lock()
	adapters := make([]channel.Port, 0, len(o.adapters))
	for _, p := range o.adapters {
		adapters = append(adapters, p)
	}
	o.mu.Unlock()

	n := 0
	for _, p := range adapters {
		if p.IsRunning() {
			n++
		}
	}
	return n
}
