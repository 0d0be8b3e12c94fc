package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aslpavel/sweep-go/internal/rpc"
	"github.com/aslpavel/sweep-go/internal/transport"
	"github.com/aslpavel/sweep-go/internal/view"
)

// newTestClient wires a Client to an in-memory net.Pipe instead of a
// real sweeper subprocess, and returns the peer standing in for the
// sweeper side so tests can register handlers and send notifications
// (the teacher's pipeClient pattern, internal/signal/client_test.go).
func newTestClient(t *testing.T) (*Client, *rpc.Peer) {
	t.Helper()
	clientConn, sweeperConn := net.Pipe()
	peer := rpc.NewPeer(clientConn)
	sweeperPeer := rpc.NewPeer(sweeperConn)

	c := &Client{
		cfg:         Config{},
		peer:        peer,
		bridge:      &transport.Bridge{Conn: clientConn},
		logger:      slog.Default(),
		windows:     newWindowState(""),
		binds:       newBindTable(),
		triedFields: make(map[int]bool),
		triedViews:  make(map[int]bool),
		sizeEvent:   rpc.NewEvent[SweepSize](),
		events:      make(chan Event, 64),
		done:        make(chan struct{}),
	}
	go c.notifyLoop()

	t.Cleanup(func() {
		c.Terminate()
		sweeperPeer.Terminate()
	})
	return c, sweeperPeer
}

func ackHandler(_ context.Context, _ json.RawMessage) (any, error) { return nil, nil }

func TestItemIdentityPreservedThroughSelect(t *testing.T) {
	c, sweeper := newTestClient(t)
	sweeper.Handle("items_extend", ackHandler)

	type tagged = view.Tagged[string]
	items := []any{
		tagged{Value: "A", Candidate: &view.Candidate{Extra: map[string]any{"pk": "A"}}},
		tagged{Value: "B", Candidate: &view.Candidate{Extra: map[string]any{"pk": "B"}}},
		tagged{Value: "C", Candidate: &view.Candidate{Extra: map[string]any{"pk": "C"}}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.ItemsExtend(ctx, "", items); err != nil {
		t.Fatalf("ItemsExtend: %v", err)
	}

	if err := sweeper.Notify("select", map[string]any{
		"uid":   "default",
		"items": []map[string]any{{"_sweep_item_index": 1, "pk": "B"}},
	}); err != nil {
		t.Fatalf("notify select: %v", err)
	}

	select {
	case ev := <-c.Events():
		if ev.Select == nil {
			t.Fatalf("expected a select event, got %+v", ev)
		}
		if len(ev.Select.Items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(ev.Select.Items))
		}
		got, ok := ev.Select.Items[0].(tagged)
		if !ok {
			t.Fatalf("expected view.Tagged[string], got %T", ev.Select.Items[0])
		}
		if got.Value != "B" {
			t.Errorf("restored value = %q, want B", got.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for select event")
	}
}

func TestFieldResolverTriedOncePerRef(t *testing.T) {
	c, sweeper := newTestClient(t)
	var calls int32
	sweeper.Handle("field_register", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{"ref": 7}, nil
	})
	c.SetFieldResolver(func(ref int) (*view.Field, error) {
		atomic.AddInt32(&calls, 1)
		f := view.NewField("X")
		return &f, nil
	})

	if err := sweeper.Notify("field_missing", map[string]any{"ref": 7}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := sweeper.Notify("field_missing", map[string]any{"ref": 7}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("resolver called %d times, want 1", got)
	}
}

func TestFieldResolverNilResultDoesNotRetry(t *testing.T) {
	c, sweeper := newTestClient(t)
	var calls int32
	c.SetFieldResolver(func(ref int) (*view.Field, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})

	for i := 0; i < 2; i++ {
		if err := sweeper.Notify("field_missing", map[string]any{"ref": 9}); err != nil {
			t.Fatalf("notify: %v", err)
		}
		time.Sleep(30 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("resolver called %d times, want 1", got)
	}
}

func TestFieldMissingIgnoredForAlreadyRegisteredRef(t *testing.T) {
	c, sweeper := newTestClient(t)
	sweeper.Handle("field_register", func(ctx context.Context, params json.RawMessage) (any, error) {
		return map[string]any{"ref": 11}, nil
	})

	var calls int32
	c.SetFieldResolver(func(ref int) (*view.Field, error) {
		atomic.AddInt32(&calls, 1)
		f := view.NewField("late")
		return &f, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := c.FieldRegister(ctx, view.NewField("early"), nil); err != nil {
		t.Fatalf("FieldRegister: %v", err)
	}

	// field_missing for the ref the caller already registered directly
	// must be ignored: the resolver must not run for it.
	if err := sweeper.Notify("field_missing", map[string]any{"ref": 11}); err != nil {
		t.Fatalf("notify: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("resolver called %d times for an already-registered ref, want 0", got)
	}
}

func TestRenderSuppressSendsReleaseOnError(t *testing.T) {
	c, sweeper := newTestClient(t)
	var mu sync.Mutex
	var seq []bool
	sweeper.Handle("render_suppress", func(ctx context.Context, params json.RawMessage) (any, error) {
		var msg struct {
			Suppress bool `json:"suppress"`
		}
		if err := json.Unmarshal(params, &msg); err != nil {
			return nil, err
		}
		mu.Lock()
		seq = append(seq, msg.Suppress)
		mu.Unlock()
		return nil, nil
	})

	boom := errors.New("boom")
	err := c.RenderSuppress(context.Background(), "", func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("RenderSuppress err = %v, want %v", err, boom)
	}

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(seq) != 2 || seq[0] != true || seq[1] != false {
		t.Errorf("suppress sequence = %v, want [true false]", seq)
	}
}

func TestBindHandlerFiringEmitsSelect(t *testing.T) {
	c, sweeper := newTestClient(t)
	sweeper.Handle("bind", ackHandler)

	called := false
	if err := c.Bind(context.Background(), "", "ctrl-r", "reload", "reload list", func() any {
		called = true
		return "picked"
	}); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if err := sweeper.Notify("bind", map[string]any{"uid": "default", "tag": "reload", "key": "ctrl-r"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case ev := <-c.Events():
		if ev.Select == nil || len(ev.Select.Items) != 1 || ev.Select.Items[0] != "picked" {
			t.Fatalf("expected select with 'picked', got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for select event")
	}
	if !called {
		t.Error("bind handler was not invoked")
	}
}

func TestBindWithoutHandlerEmitsBindEvent(t *testing.T) {
	c, sweeper := newTestClient(t)
	sweeper.Handle("bind", ackHandler)

	if err := sweeper.Notify("bind", map[string]any{"uid": "default", "tag": "unbound", "key": "x"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case ev := <-c.Events():
		if ev.Bind == nil || ev.Bind.Tag != "unbound" {
			t.Fatalf("expected bind event for 'unbound', got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bind event")
	}
}

func TestWindowClosedDropsStore(t *testing.T) {
	c, sweeper := newTestClient(t)
	sweeper.Handle("items_extend", ackHandler)

	if err := c.ItemsExtend(context.Background(), "extra", []any{"one"}); err != nil {
		t.Fatalf("ItemsExtend: %v", err)
	}
	c.windows.mu.Lock()
	_, ok := c.windows.stores["extra"]
	c.windows.mu.Unlock()
	if !ok {
		t.Fatal("expected a store for window 'extra'")
	}

	if err := sweeper.Notify("window_closed", map[string]any{"to": "extra"}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	select {
	case ev := <-c.Events():
		if ev.Window == nil || ev.Window.Kind != WindowClosed {
			t.Fatalf("expected a window-closed event, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for window-closed event")
	}

	c.windows.mu.Lock()
	_, ok = c.windows.stores["extra"]
	c.windows.mu.Unlock()
	if ok {
		t.Error("expected store for 'extra' to be dropped")
	}
}

func TestResizeUpdatesCachedSize(t *testing.T) {
	c, sweeper := newTestClient(t)

	if err := sweeper.Notify("resize", map[string]any{
		"cells":           map[string]any{"height": 40, "width": 120},
		"pixels":          map[string]any{"height": 800, "width": 1200},
		"pixels_per_cell": map[string]any{"height": 20, "width": 10},
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	size, err := c.Size(ctx)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size.Cells.Height != 40 || size.Cells.Width != 120 {
		t.Errorf("cells = %+v, want {40 120}", size.Cells)
	}

	// Drain the corresponding event so it doesn't leak into another test.
	<-c.Events()
}
