package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aslpavel/sweep-go/internal/metrics"
)

// ErrPeerTerminated is returned by every public operation once the peer
// has been terminated.
var ErrPeerTerminated = errors.New("rpc: peer terminated")

// InvalidParamsError marks a handler error as an invalid-params
// response rather than an internal error. BindParams returns one of
// these when params can't be decoded into the handler's expected shape
// (spec.md §4.3: "invalid arg shape... maps to invalid-params").
type InvalidParamsError struct {
	Method string
	Err    error
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("invalid params for %s: %v", e.Method, e.Err)
}

func (e *InvalidParamsError) Unwrap() error { return e.Err }

// BindParams decodes raw JSON-RPC params into into, wrapping a type
// mismatch (sent positional where named was expected, or vice versa)
// as an *InvalidParamsError. A nil/empty params with a non-pointer
// zero-value-tolerant target is left untouched.
func BindParams(method string, params []byte, into any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := wireJSON.Unmarshal(params, into); err != nil {
		return &InvalidParamsError{Method: method, Err: err}
	}
	return nil
}

// HandlerFunc serves one inbound method call or notification. Returning
// an *InvalidParamsError yields code -32602; any other error yields
// -32603 with Error() as the data string.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (result any, err error)

// pendingOutcome is delivered exactly once to the channel registered
// for an outstanding Call.
type pendingOutcome struct {
	value json.RawMessage
	err   error
}

// Conn is the byte-stream the peer frames newline-delimited JSON over.
// Any net.Conn (including a Unix-domain socket connection) satisfies it.
type Conn interface {
	io.Reader
	io.Writer
	Close() error
}

// Peer is a full-duplex JSON-RPC 2.0 peer: it can call methods on its
// counterpart, serve methods registered with Handle, and deliver
// inbound notifications to Notifications(). See spec.md §4.3.
type Peer struct {
	conn    Conn
	logger  *slog.Logger
	metrics *metrics.Collector

	nextID atomic.Int64

	mu       sync.Mutex
	pending  map[int64]chan pendingOutcome
	handlers map[string]HandlerFunc
	writeQ   [][]byte
	wake     *Event[struct{}]

	// Notifications fans out every inbound request with a null id
	// (spec.md's "request stream"). Durable subscribers register via
	// On; the Sweep client's iterator calls Await in a loop.
	Notifications *Event[*Request]

	terminateOnce sync.Once
	done          chan struct{}
	wg            sync.WaitGroup
}

// Option configures a Peer at construction time.
type Option func(*Peer)

// WithLogger sets the peer's structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Peer) { p.logger = logger }
}

// WithMetrics attaches a metrics collector. A nil collector (the
// default) disables instrumentation.
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Peer) { p.metrics = m }
}

// NewPeer wraps conn and starts the reader/writer loops. The peer owns
// conn: Terminate closes it.
func NewPeer(conn Conn, opts ...Option) *Peer {
	p := &Peer{
		conn:          conn,
		logger:        slog.Default(),
		pending:       make(map[int64]chan pendingOutcome),
		handlers:      make(map[string]HandlerFunc),
		wake:          NewEvent[struct{}](),
		Notifications: NewEvent[*Request](),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.wg.Add(2)
	go p.writerLoop()
	go p.readerLoop()
	return p
}

// Handle registers fn to serve inbound calls/notifications for method.
// Re-registering a method replaces its handler.
func (p *Peer) Handle(method string, fn HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[method] = fn
}

// Call sends a request and blocks for its response, correlating by id.
// Cancelling ctx returns immediately but leaves the pending slot in
// place — it is resolved (or cancelled) when the response eventually
// arrives or the peer terminates (spec.md §5's cancellation semantics).
func (p *Peer) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	select {
	case <-p.done:
		return nil, ErrPeerTerminated
	default:
	}

	paramsJSON, err := marshalParams(params)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal params for %s: %w", method, err)
	}

	id := p.nextID.Add(1)
	ch := make(chan pendingOutcome, 1)

	p.mu.Lock()
	p.pending[id] = ch
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.SetPendingRequests(p.pendingCount())
	}

	req := &Request{JSONRPC: jsonrpcVersion, ID: NewIntID(id), Method: method, Params: paramsJSON}
	if err := p.submit(req); err != nil {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return nil, err
	}

	stop := p.metrics.StartCall(method)
	select {
	case <-ctx.Done():
		stop(false)
		return nil, ctx.Err()
	case out := <-ch:
		stop(out.err == nil)
		if out.err != nil {
			return nil, out.err
		}
		return out.value, nil
	case <-p.done:
		stop(false)
		return nil, ErrPeerTerminated
	}
}

// Notify sends a notification (no id, no response expected) and
// returns as soon as it is queued.
func (p *Peer) Notify(method string, params any) error {
	select {
	case <-p.done:
		return ErrPeerTerminated
	default:
	}

	paramsJSON, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("rpc: marshal params for %s: %w", method, err)
	}
	return p.submit(&Request{JSONRPC: jsonrpcVersion, Method: method, Params: paramsJSON})
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	return wireJSON.Marshal(params)
}

// submit enqueues an already-built frame and wakes the writer.
func (p *Peer) submit(v any) error {
	data, err := encode(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.writeQ = append(p.writeQ, data)
	p.mu.Unlock()
	p.wake.Fire(struct{}{})
	return nil
}

func (p *Peer) pendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// writerLoop drains the write queue in strict submission order,
// suspending on the wake Event when the queue is empty.
func (p *Peer) writerLoop() {
	defer p.wg.Done()
	w := bufio.NewWriter(p.conn)
	for {
		p.mu.Lock()
		batch := p.writeQ
		p.writeQ = nil
		p.mu.Unlock()

		if len(batch) == 0 {
			select {
			case <-p.done:
				return
			default:
			}

			// Register for the next wake-up before re-checking the
			// queue: a submit racing the empty check above enqueues
			// under p.mu and then fires wake, so if we registered
			// first that Fire's snapshot is guaranteed to include
			// our channel even when it lands in this exact gap (see
			// Event.Listen's doc comment).
			ch, ok := p.wake.Listen()
			if !ok {
				return
			}
			p.mu.Lock()
			pending := len(p.writeQ) > 0
			p.mu.Unlock()
			if pending {
				continue
			}
			if _, ok := <-ch; !ok {
				return
			}
			continue
		}

		for _, msg := range batch {
			if _, err := w.Write(msg); err != nil {
				p.logger.Error("rpc write failed", "error", err)
				p.beginTerminate()
				return
			}
		}
		if err := w.Flush(); err != nil {
			p.logger.Error("rpc flush failed", "error", err)
			p.beginTerminate()
			return
		}
	}
}

// readerLoop reads one framed document at a time until the stream
// closes or the peer terminates.
func (p *Peer) readerLoop() {
	defer p.wg.Done()
	r := bufio.NewReaderSize(p.conn, 1<<20)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			p.dispatchLine(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.logger.Error("rpc read failed", "error", err)
			}
			p.beginTerminate()
			return
		}
	}
}

func (p *Peer) dispatchLine(line []byte) {
	c := classify(line)
	switch {
	case c.request != nil:
		p.dispatchRequest(c.request)
	case c.result != nil:
		p.resolvePending(c.result.ID, c.result.Value, nil)
	case c.errResp != nil:
		if c.errResp.ID.IsZero() {
			p.logger.Error("rpc orphan error from peer", "code", c.errResp.Payload.Code, "message", c.errResp.Payload.Message)
			p.beginTerminate()
			return
		}
		p.resolvePending(c.errResp.ID, nil, c.errResp)
	}
}

func (p *Peer) resolvePending(id ID, value json.RawMessage, rpcErr error) {
	p.mu.Lock()
	ch, ok := p.pending[id.Int64()]
	if ok {
		delete(p.pending, id.Int64())
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	if p.metrics != nil {
		p.metrics.SetPendingRequests(p.pendingCount())
	}
	ch <- pendingOutcome{value: value, err: rpcErr}
}

func (p *Peer) dispatchRequest(req *Request) {
	p.mu.Lock()
	handler, ok := p.handlers[req.Method]
	p.mu.Unlock()

	if req.ID.IsZero() {
		p.Notifications.Fire(req)
		if p.metrics != nil {
			p.metrics.IncEventsDispatched(req.Method)
		}
		if ok {
			go p.runHandler(req, handler, false)
		}
		return
	}

	if !ok {
		_ = p.submit(NewError(req.ID, CodeMethodNotFound, "method not found: "+req.Method, ""))
		return
	}
	go p.runHandler(req, handler, true)
}

func (p *Peer) runHandler(req *Request, handler HandlerFunc, respond bool) {
	ctx := context.Background()
	result, err := handler(ctx, req.Params)
	if !respond {
		if err != nil {
			p.logger.Warn("rpc notification handler failed", "method", req.Method, "error", err)
		}
		return
	}

	if err != nil {
		var ipe *InvalidParamsError
		if errors.As(err, &ipe) {
			_ = p.submit(NewError(req.ID, CodeInvalidParams, "invalid params: "+req.Method, err.Error()))
			return
		}
		_ = p.submit(NewError(req.ID, CodeInternalError, "internal error", err.Error()))
		return
	}

	data, err := wireJSON.Marshal(result)
	if err != nil {
		_ = p.submit(NewError(req.ID, CodeInternalError, "internal error", err.Error()))
		return
	}
	_ = p.submit(&Result{JSONRPC: jsonrpcVersion, ID: req.ID, Value: data})
}

// beginTerminate runs the idempotent cancellation side effects: it
// closes done, resolves every pending call with ErrPeerTerminated,
// cancels the notification stream and writer wake-up, and closes the
// underlying connection (unblocking a blocked reader). It does not
// wait for the reader/writer goroutines — callers running on one of
// those goroutines would deadlock waiting for themselves.
func (p *Peer) beginTerminate() {
	p.terminateOnce.Do(func() {
		close(p.done)

		p.mu.Lock()
		pending := p.pending
		p.pending = make(map[int64]chan pendingOutcome)
		p.mu.Unlock()
		p.metrics.SetPendingRequests(0)
		for _, ch := range pending {
			ch <- pendingOutcome{err: ErrPeerTerminated}
		}

		p.Notifications.Cancel()
		p.wake.Cancel()
		_ = p.conn.Close()
	})
}

// Terminate is idempotent: it cancels every pending call, cancels the
// notification stream, closes the underlying connection, and waits for
// the reader/writer goroutines to exit. After Terminate returns, every
// public operation fails fast with ErrPeerTerminated.
func (p *Peer) Terminate() {
	p.beginTerminate()
	p.wg.Wait()
}

// Done returns a channel closed once Terminate has begun.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}
