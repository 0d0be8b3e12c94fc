package sweep

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aslpavel/sweep-go/internal/metrics"
	"github.com/aslpavel/sweep-go/internal/rpc"
	"github.com/aslpavel/sweep-go/internal/transport"
	"github.com/aslpavel/sweep-go/internal/view"
)

// initialBatchBudget and batchGrowth drive items_extend's adaptive
// pacing: the first batch targets initialBatchBudget of wall-clock
// time, and every later batch's budget grows by batchGrowth (spec.md
// §4.6: "starting at 50 ms and growing 1.25x per batch").
const (
	initialBatchBudget = 50 * time.Millisecond
	batchGrowth        = 1.25
)

// BindHandler is invoked locally when its tag's bind fires. Returning
// a non-nil item is equivalent to a selection event carrying that item
// (spec.md §3's Bind contract).
type BindHandler func() any

// Client is a typed facade over an internal/rpc.Peer driving one
// sweeper subprocess: it shields callers from wire details behind a
// window/item/view model (spec.md §4.6).
type Client struct {
	cfg     Config
	peer    *rpc.Peer
	bridge  *transport.Bridge
	logger  *slog.Logger
	metrics *metrics.Collector

	sessionID uuid.UUID

	windows *windowState
	binds   *bindTable

	mu            sync.Mutex
	fieldResolver FieldResolver
	viewResolver  ViewResolver
	triedFields   map[int]bool
	triedViews    map[int]bool

	sizeMu    sync.Mutex
	size      *SweepSize
	sizeEvent *rpc.Event[SweepSize]

	quickSelectCounter atomic.Int64

	events chan Event
	done   chan struct{}

	terminateOnce sync.Once
	terminateErr  error
}

// bindTable is the local tag -> handler registry consulted on every
// inbound bind notification.
type bindTable struct {
	mu       sync.Mutex
	handlers map[string]BindHandler
}

func newBindTable() *bindTable {
	return &bindTable{handlers: make(map[string]BindHandler)}
}

func (b *bindTable) set(tag string, handler BindHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if handler == nil {
		delete(b.handlers, tag)
		return
	}
	b.handlers[tag] = handler
}

func (b *bindTable) get(tag string) BindHandler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handlers[tag]
}

// Open spawns the sweeper subprocess, establishes the control socket,
// and starts the RPC peer and notification-translation loop. The
// returned Client owns the subprocess and socket until Terminate is
// called.
//
// Unlike the Python original's reusable handle, a Go Client is a fresh
// value per Open call — there is no "already open" state to guard
// against, since re-opening means constructing a new Client (an Open
// Question decision recorded in DESIGN.md).
func Open(ctx context.Context, cfg Config) (*Client, error) {
	logger := cfg.logger()
	sessionID := uuid.New()

	mode := transport.ModeSocketpair
	if cfg.TmpSocket {
		mode = transport.ModeRendezvous
	}
	bridge, err := transport.Spawn(ctx, transport.Config{
		Argv:   cfg.argv(),
		Mode:   mode,
		Logger: logger.With("session", sessionID),
	})
	if err != nil {
		return nil, fmt.Errorf("sweep: spawn sweeper: %w", err)
	}

	peer := rpc.NewPeer(bridge.Conn, rpc.WithLogger(logger), rpc.WithMetrics(cfg.Metrics))

	c := &Client{
		cfg:           cfg,
		peer:          peer,
		bridge:        bridge,
		logger:        logger,
		metrics:       cfg.Metrics,
		sessionID:     sessionID,
		windows:       newWindowState(cfg.WindowUID),
		binds:         newBindTable(),
		fieldResolver: cfg.FieldResolver,
		viewResolver:  cfg.ViewResolver,
		triedFields:   make(map[int]bool),
		triedViews:    make(map[int]bool),
		sizeEvent:     rpc.NewEvent[SweepSize](),
		events:        make(chan Event, 64),
		done:          make(chan struct{}),
	}

	go c.notifyLoop()
	return c, nil
}

// Terminate is idempotent: it cancels the peer (resolving every
// pending call and the notification stream), then closes the control
// socket and awaits the subprocess exit.
func (c *Client) Terminate() error {
	c.terminateOnce.Do(func() {
		close(c.done)
		c.peer.Terminate()
		c.sizeEvent.Cancel()
		c.terminateErr = c.bridge.Close()
	})
	return c.terminateErr
}

// Events returns the async stream of SweepSelect/SweepBind/SweepSize/
// SweepWindow notifications. The channel is closed once the peer
// terminates.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Pid returns the sweeper subprocess id, or 0 if unavailable.
func (c *Client) Pid() int { return c.bridge.Pid() }

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	return c.peer.Call(ctx, method, params)
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// ---- notification translation (spec.md §4.6 "Event translation") ----

func (c *Client) notifyLoop() {
	defer close(c.events)
	for {
		req, ok := c.peer.Notifications.Await()
		if !ok {
			return
		}
		c.handleNotification(req)
	}
}

func (c *Client) handleNotification(req *rpc.Request) {
	switch req.Method {
	case "select":
		c.handleSelect(req.Params)
	case "bind":
		c.handleBind(req.Params)
	case "resize":
		c.handleResize(req.Params)
	case "window_opened":
		c.handleWindow(req.Params, WindowOpened)
	case "window_closed":
		c.handleWindow(req.Params, WindowClosed)
	case "window_switched":
		c.handleWindow(req.Params, WindowSwitched)
	case "field_missing":
		c.handleFieldMissing(req.Params)
	case "view_missing":
		c.handleViewMissing(req.Params)
	default:
		c.logger.Warn("sweep: unrecognized notification", "method", req.Method)
	}
}

func (c *Client) handleSelect(params json.RawMessage) {
	var msg struct {
		UID   string            `json:"uid"`
		Items []json.RawMessage `json:"items"`
	}
	if err := wireJSON.Unmarshal(params, &msg); err != nil {
		c.logger.Warn("sweep: malformed select notification", "error", err)
		return
	}
	uid := windowOrDefault(msg.UID)
	store := c.windows.storeFor(uid)
	items := make([]any, len(msg.Items))
	for i, raw := range msg.Items {
		items[i] = restore(store, raw)
	}
	c.emit(Event{Select: &SweepSelect{WindowUID: uid, Items: items}})
}

func (c *Client) handleBind(params json.RawMessage) {
	var msg struct {
		UID string `json:"uid"`
		Tag string `json:"tag"`
		Key string `json:"key"`
	}
	if err := wireJSON.Unmarshal(params, &msg); err != nil {
		c.logger.Warn("sweep: malformed bind notification", "error", err)
		return
	}
	uid := windowOrDefault(msg.UID)

	if handler := c.binds.get(msg.Tag); handler != nil {
		if item := handler(); item != nil {
			c.emit(Event{Select: &SweepSelect{WindowUID: uid, Items: []any{item}}})
		}
		return
	}
	c.emit(Event{Bind: &SweepBind{WindowUID: uid, Tag: msg.Tag, Key: msg.Key}})
}

func (c *Client) handleResize(params json.RawMessage) {
	var msg struct {
		Cells         json.RawMessage `json:"cells"`
		Pixels        json.RawMessage `json:"pixels"`
		PixelsPerCell json.RawMessage `json:"pixels_per_cell"`
	}
	if err := wireJSON.Unmarshal(params, &msg); err != nil {
		c.logger.Warn("sweep: malformed resize notification", "error", err)
		return
	}
	cells, _ := sizeFromJSON(msg.Cells)
	pixels, _ := sizeFromJSON(msg.Pixels)
	ppc, _ := sizeFromJSON(msg.PixelsPerCell)
	size := SweepSize{Cells: cells, Pixels: pixels, PixelsPerCell: ppc}

	c.sizeMu.Lock()
	c.size = &size
	c.sizeMu.Unlock()
	c.sizeEvent.Fire(size)
	c.emit(Event{Size: &size})
}

func (c *Client) handleWindow(params json.RawMessage, kind SweepWindowKind) {
	var msg struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := wireJSON.Unmarshal(params, &msg); err != nil {
		c.logger.Warn("sweep: malformed window notification", "error", err)
		return
	}
	switch kind {
	case WindowSwitched:
		c.windows.setCurrent(windowOrDefault(msg.To))
	case WindowClosed:
		c.windows.drop(windowOrDefault(msg.To))
	}
	c.emit(Event{Window: &SweepWindow{Kind: kind, From: msg.From, To: msg.To}})
}

func (c *Client) handleFieldMissing(params json.RawMessage) {
	var msg struct {
		Ref int `json:"ref"`
	}
	if err := wireJSON.Unmarshal(params, &msg); err != nil {
		c.logger.Warn("sweep: malformed field_missing notification", "error", err)
		return
	}

	c.mu.Lock()
	resolver := c.fieldResolver
	already := c.triedFields[msg.Ref]
	c.triedFields[msg.Ref] = true
	c.mu.Unlock()
	if already || resolver == nil {
		return
	}

	ref := msg.Ref
	go func() {
		field, err := resolver(ref)
		if err != nil {
			c.logger.Warn("sweep: field resolver failed", "ref", ref, "error", err)
			return
		}
		if field == nil {
			return
		}
		if _, err := c.FieldRegister(context.Background(), *field, &ref); err != nil {
			c.logger.Warn("sweep: field_register failed", "ref", ref, "error", err)
		}
	}()
}

func (c *Client) handleViewMissing(params json.RawMessage) {
	var msg struct {
		Ref int `json:"ref"`
	}
	if err := wireJSON.Unmarshal(params, &msg); err != nil {
		c.logger.Warn("sweep: malformed view_missing notification", "error", err)
		return
	}

	c.mu.Lock()
	resolver := c.viewResolver
	already := c.triedViews[msg.Ref]
	c.triedViews[msg.Ref] = true
	c.mu.Unlock()
	if already || resolver == nil {
		return
	}

	ref := msg.Ref
	go func() {
		v, err := resolver(ref)
		if err != nil {
			c.logger.Warn("sweep: view resolver failed", "ref", ref, "error", err)
			return
		}
		if v == nil {
			return
		}
		if _, err := c.ViewRegister(context.Background(), v, &ref); err != nil {
			c.logger.Warn("sweep: view_register failed", "ref", ref, "error", err)
		}
	}()
}

// resolveUID returns uid, or the client's tracked current window when
// uid is empty (spec.md §3: "uses it wherever no explicit window is
// provided").
func (c *Client) resolveUID(uid string) string {
	if uid != "" {
		return uid
	}
	return c.windows.getCurrent()
}

// ---- Items ----

// ItemsExtend appends items to window uid's store and uploads them to
// the sweeper in adaptively-sized batches (spec.md §4.6).
func (c *Client) ItemsExtend(ctx context.Context, uid string, items []any) error {
	if len(items) == 0 {
		return nil
	}
	uid = c.resolveUID(uid)
	store := c.windows.storeFor(uid)

	budget := initialBatchBudget
	itemsPerMS := 1.0
	pos := 0
	for pos < len(items) {
		chunkSize := int(float64(budget.Milliseconds()) * itemsPerMS)
		if chunkSize < 1 {
			chunkSize = 1
		}
		if pos+chunkSize > len(items) {
			chunkSize = len(items) - pos
		}
		chunk := items[pos : pos+chunkSize]

		wire := make([]any, len(chunk))
		for i, item := range chunk {
			idx := store.append(item)
			wire[i] = stamp(item, idx)
		}

		start := time.Now()
		if _, err := c.call(ctx, "items_extend", map[string]any{"uid": uid, "items": wire}); err != nil {
			return err
		}
		elapsed := time.Since(start)
		if c.metrics != nil {
			c.metrics.ObserveItemsUploaded(uid, len(chunk), elapsed)
		}
		if ms := elapsed.Milliseconds(); ms > 0 {
			itemsPerMS = float64(len(chunk)) / float64(ms)
		}

		pos += chunkSize
		budget = time.Duration(float64(budget) * batchGrowth)
	}
	return nil
}

// ItemUpdate replaces the item at index in window uid's store,
// failing before any wire activity if index is out of range.
func (c *Client) ItemUpdate(ctx context.Context, uid string, index int, item any) error {
	uid = c.resolveUID(uid)
	store := c.windows.storeFor(uid)
	if err := store.update(index, item); err != nil {
		return err
	}
	wire := stamp(item, index)
	_, err := c.call(ctx, "item_update", map[string]any{"uid": uid, "index": index, "item": wire})
	return err
}

// ItemsClear clears the sweeper-side list for uid. The client's store
// for that window remains addressable until the window is closed
// (spec.md §4.6).
func (c *Client) ItemsClear(ctx context.Context, uid string) error {
	uid = c.resolveUID(uid)
	_, err := c.call(ctx, "items_clear", map[string]any{"uid": uid})
	return err
}

// ItemsCurrent returns the item presently under the cursor in window
// uid, restored through the index map.
func (c *Client) ItemsCurrent(ctx context.Context, uid string) (any, error) {
	uid = c.resolveUID(uid)
	raw, err := c.call(ctx, "items_current", map[string]any{"uid": uid})
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return restore(c.windows.storeFor(uid), raw), nil
}

// ItemsMarked returns the set of user-marked items in window uid, in
// marking order, restored through the index map.
func (c *Client) ItemsMarked(ctx context.Context, uid string) ([]any, error) {
	uid = c.resolveUID(uid)
	raw, err := c.call(ctx, "items_marked", map[string]any{"uid": uid})
	if err != nil {
		return nil, err
	}
	var rawItems []json.RawMessage
	if err := wireJSON.Unmarshal(raw, &rawItems); err != nil {
		return nil, fmt.Errorf("sweep: decode items_marked result: %w", err)
	}
	store := c.windows.storeFor(uid)
	out := make([]any, len(rawItems))
	for i, r := range rawItems {
		out[i] = restore(store, r)
	}
	return out, nil
}

// CursorSet moves the cursor to an absolute position in window uid.
func (c *Client) CursorSet(ctx context.Context, uid string, position int) error {
	uid = c.resolveUID(uid)
	_, err := c.call(ctx, "cursor_set", map[string]any{"uid": uid, "position": position})
	return err
}

// ---- Query / Prompt ----

// QuerySet sets the filter text for window uid.
func (c *Client) QuerySet(ctx context.Context, uid, query string) error {
	uid = c.resolveUID(uid)
	_, err := c.call(ctx, "query_set", map[string]any{"uid": uid, "query": query})
	return err
}

// QueryGet returns the current filter text for window uid.
func (c *Client) QueryGet(ctx context.Context, uid string) (string, error) {
	uid = c.resolveUID(uid)
	raw, err := c.call(ctx, "query_get", map[string]any{"uid": uid})
	if err != nil {
		return "", err
	}
	var q string
	if err := wireJSON.Unmarshal(raw, &q); err != nil {
		return "", fmt.Errorf("sweep: decode query_get result: %w", err)
	}
	return q, nil
}

// PromptSet updates the prompt label and/or icon for window uid. Both
// nil is a no-op (spec.md §4.6).
func (c *Client) PromptSet(ctx context.Context, uid string, prompt *string, icon *view.Icon) error {
	if prompt == nil && icon == nil {
		return nil
	}
	uid = c.resolveUID(uid)
	params := map[string]any{"uid": uid}
	if prompt != nil {
		params["prompt"] = *prompt
	}
	if icon != nil {
		params["icon"] = icon
	}
	_, err := c.call(ctx, "prompt_set", params)
	return err
}

// PreviewValue selects the preview pane's display state.
type PreviewValue string

const (
	PreviewShow  PreviewValue = "show"
	PreviewHide  PreviewValue = "hide"
	PreviewReset PreviewValue = "reset"
)

// PreviewSet shows, hides, or resets the current preview pane.
func (c *Client) PreviewSet(ctx context.Context, uid string, value PreviewValue) error {
	uid = c.resolveUID(uid)
	_, err := c.call(ctx, "preview_set", map[string]any{"uid": uid, "value": value})
	return err
}

// FooterSet installs footer as window uid's footer view, or clears it
// when footer is nil.
func (c *Client) FooterSet(ctx context.Context, uid string, footer view.View) error {
	uid = c.resolveUID(uid)
	_, err := c.call(ctx, "footer_set", map[string]any{"uid": uid, "footer": footer})
	return err
}

// ---- Bindings ----

// Bind registers a key chord -> tag mapping for window uid, with an
// optional local handler. An empty tag removes the binding; a
// non-empty tag without a handler surfaces fire events on Events()
// instead (spec.md §4.6).
func (c *Client) Bind(ctx context.Context, uid, key, tag, desc string, handler BindHandler) error {
	uid = c.resolveUID(uid)
	if tag == "" {
		_, err := c.call(ctx, "bind", map[string]any{"uid": uid, "key": key, "tag": tag, "desc": desc})
		return err
	}
	c.binds.set(tag, handler)
	_, err := c.call(ctx, "bind", map[string]any{"uid": uid, "key": key, "tag": tag, "desc": desc})
	return err
}

// ---- Resolvers ----

// FieldRegister uploads field and associates it with ref (or a fresh
// id if ref is nil), returning the id it was registered under. The
// returned ref is marked known, so a later field_missing for it is
// ignored rather than re-invoking the resolver.
func (c *Client) FieldRegister(ctx context.Context, field view.Field, ref *int) (int, error) {
	params := map[string]any{"field": field}
	if ref != nil {
		params["ref"] = *ref
	}
	raw, err := c.call(ctx, "field_register", params)
	if err != nil {
		return 0, err
	}
	var out struct {
		Ref int `json:"ref"`
	}
	if err := wireJSON.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("sweep: decode field_register result: %w", err)
	}
	c.mu.Lock()
	c.triedFields[out.Ref] = true
	c.mu.Unlock()
	return out.Ref, nil
}

// ViewRegister uploads v and associates it with ref (or a fresh id if
// ref is nil), returning the id it was registered under. The returned
// ref is marked known, so a later view_missing for it is ignored
// rather than re-invoking the resolver.
func (c *Client) ViewRegister(ctx context.Context, v view.View, ref *int) (int, error) {
	params := map[string]any{"view": v}
	if ref != nil {
		params["ref"] = *ref
	}
	raw, err := c.call(ctx, "view_register", params)
	if err != nil {
		return 0, err
	}
	var out struct {
		Ref int `json:"ref"`
	}
	if err := wireJSON.Unmarshal(raw, &out); err != nil {
		return 0, fmt.Errorf("sweep: decode view_register result: %w", err)
	}
	c.mu.Lock()
	c.triedViews[out.Ref] = true
	c.mu.Unlock()
	return out.Ref, nil
}

// SetFieldResolver installs the async callback invoked when the
// sweeper emits field_missing for a ref not yet tried.
func (c *Client) SetFieldResolver(fn FieldResolver) {
	c.mu.Lock()
	c.fieldResolver = fn
	c.mu.Unlock()
}

// SetViewResolver installs the async callback invoked when the
// sweeper emits view_missing for a ref not yet tried.
func (c *Client) SetViewResolver(fn ViewResolver) {
	c.mu.Lock()
	c.viewResolver = fn
	c.mu.Unlock()
}

// ---- Windows ----

// WindowSwitch opens or transitions to window uid, returning true if
// it was newly created.
func (c *Client) WindowSwitch(ctx context.Context, uid string, closeCurrent bool) (bool, error) {
	raw, err := c.call(ctx, "window_switch", map[string]any{"uid": uid, "close": closeCurrent})
	if err != nil {
		return false, err
	}
	var created bool
	if err := wireJSON.Unmarshal(raw, &created); err != nil {
		return false, fmt.Errorf("sweep: decode window_switch result: %w", err)
	}
	return created, nil
}

// WindowPop returns to the previous window in the sweeper's window
// stack.
func (c *Client) WindowPop(ctx context.Context) error {
	_, err := c.call(ctx, "window_pop", nil)
	return err
}

// ---- Sub-views ----

// QuickSelectConfig configures an ephemeral quick_select sub-view.
type QuickSelectConfig struct {
	Items      []any
	Prompt     string
	PromptIcon *view.Icon
	KeepOrder  bool
	Theme      string
	Scorer     string
	// WindowUID pins the sub-view's window id. Left empty, a fresh id
	// is auto-allocated from a monotonic counter (spec.md §9's Open
	// Question decision: auto-allocate only when omitted).
	WindowUID string
}

// QuickSelect shows an ephemeral sub-selector and returns the selected
// items, restored through a private index map separate from any
// window's store (spec.md §4.6).
func (c *Client) QuickSelect(ctx context.Context, cfg QuickSelectConfig) ([]any, error) {
	uid := cfg.WindowUID
	if uid == "" {
		uid = fmt.Sprintf("quick-select-%d", c.quickSelectCounter.Add(1))
	}

	store := newItemStore()
	wireItems := make([]any, len(cfg.Items))
	for i, item := range cfg.Items {
		idx := store.append(item)
		wireItems[i] = stampKey(item, idx, quickSelectIndexKey)
	}

	params := map[string]any{
		"uid":        uid,
		"items":      wireItems,
		"keep_order": cfg.KeepOrder,
	}
	if cfg.Prompt != "" {
		params["prompt"] = cfg.Prompt
	}
	if cfg.PromptIcon != nil {
		params["prompt_icon"] = cfg.PromptIcon
	}
	if cfg.Theme != "" {
		params["theme"] = cfg.Theme
	}
	if cfg.Scorer != "" {
		params["scorer"] = cfg.Scorer
	}

	raw, err := c.call(ctx, "quick_select", params)
	if err != nil {
		return nil, err
	}
	var rawItems []json.RawMessage
	if err := wireJSON.Unmarshal(raw, &rawItems); err != nil {
		return nil, fmt.Errorf("sweep: decode quick_select result: %w", err)
	}
	out := make([]any, len(rawItems))
	for i, r := range rawItems {
		out[i] = restoreKey(store, r, quickSelectIndexKey)
	}
	return out, nil
}

// ---- Rendering ----

// RenderSuppress brackets fn with render_suppress(true)/(false) around
// window uid, guaranteeing the release message is sent even if fn
// returns an error (spec.md §4.6, §8 scenario 6).
func (c *Client) RenderSuppress(ctx context.Context, uid string, fn func(ctx context.Context) error) (err error) {
	uid = c.resolveUID(uid)
	if _, err := c.call(ctx, "render_suppress", map[string]any{"uid": uid, "suppress": true}); err != nil {
		return err
	}
	defer func() {
		_, releaseErr := c.call(context.Background(), "render_suppress", map[string]any{"uid": uid, "suppress": false})
		if err == nil {
			err = releaseErr
		}
	}()
	return fn(ctx)
}

// ---- Size ----

// Size awaits the first resize notification if one hasn't arrived yet,
// otherwise returns the cached value immediately.
func (c *Client) Size(ctx context.Context) (SweepSize, error) {
	c.sizeMu.Lock()
	cached := c.size
	c.sizeMu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	ch := make(chan SweepSize, 1)
	go func() {
		if s, ok := c.sizeEvent.Await(); ok {
			ch <- s
		}
	}()

	select {
	case s := <-ch:
		return s, nil
	case <-ctx.Done():
		return SweepSize{}, ctx.Err()
	case <-c.done:
		return SweepSize{}, rpc.ErrPeerTerminated
	}
}
