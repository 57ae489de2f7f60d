package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/kessler-labs/switchboard/internal/channel"
	"github.com/kessler-labs/switchboard/internal/channel/memadapter"
	"github.com/kessler-labs/switchboard/internal/events"
	"github.com/kessler-labs/switchboard/internal/idempotency"
	"github.com/kessler-labs/switchboard/internal/policy"
	"github.com/kessler-labs/switchboard/internal/sessions"
)

func waitFor(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestOrchestrator_EndToEnd_EchoesViaDirectTool(t *testing.T) {
	bus := events.NewBus(256)
	manager := sessions.NewManager(sessions.NewMemStore(), sessions.Config{MaxHistorySize: 50})
	guard := idempotency.NewGuard(idempotency.NewMemStore(), idempotency.Config{LockTimeout: time.Minute, RecordTTL: time.Hour})
	executor := policy.NewExecutor(policy.Config{})

	adapter := memadapter.New("ws", channel.Capabilities{Text: true})

	orch := New(Config{
		Bus:            bus,
		SessionManager: manager,
		Guard:          guard,
		PolicyFor:      func(string) *policy.Executor { return executor },
		Processor: ProcessorConfig{
			Mode:  ModeDirectTool,
			Tools: &fakeTools{result: "pong"},
		},
	})

	if err := orch.RegisterChannel(adapter); err != nil {
		t.Fatal(err)
	}
	if err := orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer orch.Stop(context.Background())

	adapter.Inject(channel.ChannelEvent{
		EventID:      "evt-1",
		Kind:         channel.KindMessage,
		Conversation: testConv(),
		Identity:     channel.ChannelIdentity{Platform: "ws", ID: "user-1"},
		Text:         "ping",
	})

	waitFor(t, func() bool { return len(adapter.Sent()) == 1 })

	sent := adapter.Sent()
	if sent[0].Text != "pong" {
		t.Errorf("expected echoed tool result 'pong', got %q", sent[0].Text)
	}
}

func TestOrchestrator_RegisterChannel_RejectedWhileRunning(t *testing.T) {
	bus := events.NewBus(16)
	manager := sessions.NewManager(sessions.NewMemStore(), sessions.Config{})
	orch := New(Config{
		Bus:            bus,
		SessionManager: manager,
		PolicyFor:      func(string) *policy.Executor { return policy.NewExecutor(policy.Config{}) },
		Processor:      ProcessorConfig{Mode: ModeCustom, Custom: &fakeCustom{}},
	})

	if err := orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer orch.Stop(context.Background())

	err := orch.RegisterChannel(memadapter.New("ws", channel.Capabilities{}))
	if err == nil {
		t.Error("expected registering a channel after Start to fail")
	}
}

func TestOrchestrator_StopDrainsInFlightPipelines(t *testing.T) {
	bus := events.NewBus(16)
	manager := sessions.NewManager(sessions.NewMemStore(), sessions.Config{})
	orch := New(Config{
		Bus:            bus,
		SessionManager: manager,
		PolicyFor:      func(string) *policy.Executor { return policy.NewExecutor(policy.Config{}) },
		Processor:      ProcessorConfig{Mode: ModeCustom, Custom: &fakeCustom{}},
	})

	adapter := memadapter.New("ws", channel.Capabilities{})
	orch.RegisterChannel(adapter)
	if err := orch.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := orch.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if orch.IsRunning() {
		t.Error("expected orchestrator to report not running after Stop")
	}
}
