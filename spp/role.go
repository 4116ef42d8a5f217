// Package spp manages a single Bluetooth Classic Serial Port Profile link,
// either as the master, which searches for a named peer and connects to it,
// or as the slave, which advertises itself and accepts one connection.
//
// Inbound bytes are moved from the stack's callback context into a bounded
// pipe, and read out by the application. Neither side ever blocks the other.
package spp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/darkhz/btspp/pipe"
	"github.com/darkhz/btspp/stack"
)

// readyPollInterval is how often WaitReady checks the channel.
const readyPollInterval = 50 * time.Millisecond

type roleState interface {
	~uint32
	fmt.Stringer
	Title() string
}

// step is a single stack command of a bring-up or teardown sequence.
type step struct {
	at  string
	msg string
	run func() error
}

// role holds what the master and slave have in common: the lifecycle,
// the connection state, the receive pipe, and the state machine.
type role[S roleState] struct {
	name  string
	stack stack.Stack
	opts  options
	log   *zap.Logger
	stats *Stats

	next func(S, trigger) (S, bool)

	lifecycle sync.Mutex
	allocated bool
	up        atomic.Bool

	conn  atomic.Pointer[ConnectionState]
	pipe  atomic.Pointer[pipe.Pipe]
	state atomic.Uint32

	txMu sync.Mutex
	tx   [stack.MaxPayload]byte
}

func newRole[S roleState](name string, s stack.Stack, next func(S, trigger) (S, bool), opts []Option) *role[S] {
	o := newOptions(opts)

	return &role[S]{
		name:  name,
		stack: s,
		opts:  o,
		log:   o.logger.With(zap.String("role", name)),
		stats: newStats(),
		next:  next,
	}
}

// Up reports whether the role is initialized.
func (r *role[S]) Up() bool {
	return r.up.Load()
}

// Ready reports whether data can be sent over the channel.
func (r *role[S]) Ready() bool {
	conn := r.conn.Load()

	return conn != nil && conn.Ready()
}

// State returns the current state of the role.
func (r *role[S]) State() S {
	return S(r.state.Load())
}

// Connection returns the connection state of the role, or nil if the role
// was never initialized. The same value is returned for the lifetime of the role.
func (r *role[S]) Connection() *ConnectionState {
	return r.conn.Load()
}

// Stats returns the link counters of the role.
func (r *role[S]) Stats() StatsSnapshot {
	return r.stats.Snapshot()
}

// Notifier returns the notifier that the role publishes to.
func (r *role[S]) Notifier() *Notifier {
	return r.opts.notifier
}

// Available returns the number of received bytes waiting to be read.
// It returns pipe.ErrBusy if the pipe is in use by the callback context.
func (r *role[S]) Available() (int, error) {
	p := r.pipe.Load()
	if p == nil {
		return 0, nil
	}

	return p.Available()
}

// ReceiveText reads up to n received bytes as text.
func (r *role[S]) ReceiveText(n int) (string, error) {
	data, err := r.ReceiveBinary(n)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

// ReceiveBinary reads up to n received bytes.
// Every failure to return data matches ErrNoData.
func (r *role[S]) ReceiveBinary(n int) ([]byte, error) {
	p := r.pipe.Load()
	if p == nil {
		return nil, pipe.ErrEmpty
	}

	return p.Read(n)
}

// SendText sends text over the channel as a single write.
func (r *role[S]) SendText(text string) error {
	return r.send([]byte(text))
}

// SendBinary sends data over the channel as a single write.
func (r *role[S]) SendBinary(data []byte) error {
	return r.send(data)
}

// Write sends p as consecutive payloads of at most stack.MaxPayload bytes.
// It returns the number of bytes sent before the first failed payload.
func (r *role[S]) Write(p []byte) (int, error) {
	var n int

	for len(p) > 0 {
		size := min(len(p), stack.MaxPayload)
		if err := r.send(p[:size]); err != nil {
			return n, err
		}

		n += size
		p = p[size:]
	}

	return n, nil
}

// StateTitle returns the human-readable name of the current state.
func (r *role[S]) StateTitle() string {
	return r.State().Title()
}

// Close disconnects the channel if it is ready.
//
// The connection state is cleared as soon as the disconnect command is
// issued, before the stack confirms that the channel closed. Until the
// close event arrives, the stack may still consider the channel open.
// That close event is then ignored.
func (r *role[S]) Close() error {
	conn := r.conn.Load()
	if conn == nil || !conn.Ready() {
		return ErrNotReady
	}

	handle := conn.ConnHandle()
	conn.markClosing(handle)
	err := r.stack.Disconnect(handle)

	conn.clearLink()
	r.fire(triggerClosed, nil)
	r.fire(triggerSettle, nil)

	if err != nil {
		r.log.Warn("Disconnect failed", zap.Uint32("handle", uint32(handle)), zap.Error(err))
		return wrapStackError(err, "disconnect", "Cannot disconnect the channel")
	}

	return nil
}

// WaitReady waits until the channel is ready, or until ctx is done.
func (r *role[S]) WaitReady(ctx context.Context) error {
	if !r.Up() {
		return ErrNotUp
	}

	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for !r.Ready() {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-ticker.C:
			if !r.Up() {
				return ErrNotUp
			}
		}
	}

	return nil
}

// initialize allocates the storage of the role on the first call, and
// resets it on later calls. It then runs the bring-up sequence.
func (r *role[S]) initialize(name, secret string, steps []step) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if r.up.Load() {
		return ErrAlreadyUp
	}

	if !r.allocated {
		r.conn.Store(&ConnectionState{})
		r.pipe.Store(pipe.New(r.opts.pipeSize))
		r.allocated = true
	} else {
		r.pipe.Load().Reset()
	}

	r.conn.Load().reset(name, secret)
	r.fire(triggerStop, nil)

	if err := r.run(steps, true); err != nil {
		return err
	}

	r.up.Store(true)
	r.log.Info("Role is up", zap.String("name", name))

	return nil
}

// deinitialize runs the teardown sequence and clears the link.
// The storage of the role is kept.
func (r *role[S]) deinitialize() error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	if !r.up.Load() {
		return ErrNotUp
	}

	err := r.run([]step{
		{"deinit-spp", "Cannot deinitialize the SPP profile", r.stack.DeinitSPP},
		{"disable-stack", "Cannot disable the Bluetooth stack", r.stack.Disable},
	}, false)

	r.conn.Load().clearLink()
	r.up.Store(false)
	r.fire(triggerStop, nil)
	r.log.Info("Role is down")

	return err
}

// run runs the provided steps in order. If failFast is set, the first
// failure stops the sequence, otherwise every step runs and the first
// failure is returned.
func (r *role[S]) run(steps []step, failFast bool) error {
	var first error

	for _, s := range steps {
		err := s.run()
		if err == nil {
			continue
		}

		r.log.Error(s.msg, zap.String("step", s.at), zap.Error(err))
		if first == nil {
			first = wrapStackError(err, s.at, s.msg)
		}

		if failFast {
			break
		}
	}

	return first
}

func (r *role[S]) send(data []byte) error {
	conn := r.conn.Load()
	if conn == nil || !conn.Ready() {
		return ErrNotReady
	}

	if len(data) > stack.MaxPayload {
		r.stats.rejected.Inc()
		return fmt.Errorf("send %d bytes: %w", len(data), ErrPayloadTooLarge)
	}

	r.txMu.Lock()
	defer r.txMu.Unlock()

	n := copy(r.tx[:], data)
	if err := r.stack.Write(conn.WriteHandle(), r.tx[:n]); err != nil {
		return wrapStackError(err, "write", "Cannot write to the channel")
	}

	r.stats.written.Inc()

	return nil
}

// fire moves the role to the state that t leads to from the current state.
// It reports the resulting state, and whether t was legal. An illegal
// trigger caused by an event is logged, counted, and published.
func (r *role[S]) fire(t trigger, ev stack.Event) (S, bool) {
	for {
		cur := S(r.state.Load())

		next, ok := r.next(cur, t)
		if !ok {
			if ev != nil {
				r.illegal(cur, ev)
			}

			return cur, false
		}

		if !r.state.CompareAndSwap(uint32(cur), uint32(next)) {
			continue
		}

		if cur != next {
			r.log.Info("State changed",
				zap.Stringer("from", cur),
				zap.Stringer("to", next),
			)
			r.opts.notifier.publish(Notification{
				Topic: TopicState,
				Role:  r.name,
				State: next.String(),
			})
		}

		return next, true
	}
}

func (r *role[S]) illegal(cur S, ev stack.Event) {
	r.stats.illegal.Inc()
	r.log.Warn("Illegal event for state",
		zap.Stringer("state", cur),
		zap.Stringer("event", ev.Kind()),
	)
	r.opts.notifier.publish(Notification{
		Topic: TopicIllegal,
		Role:  r.name,
		State: cur.String(),
		Event: ev.Kind(),
	})
}

// deliver moves received bytes into the pipe. Bytes that do not fit, or
// that arrive while the pipe is busy, are dropped.
func (r *role[S]) deliver(data []byte) {
	p := r.pipe.Load()
	if p == nil {
		return
	}

	n, err := p.Write(data)
	r.stats.received.Add(int64(n))

	dropped := len(data) - n
	if dropped == 0 {
		return
	}

	r.drop(dropped, err)
}

func (r *role[S]) drop(count int, err error) {
	r.stats.dropped.Add(int64(count))

	fields := []zap.Field{zap.Int("dropped", count)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	r.log.Warn("Received bytes dropped", fields...)

	r.opts.notifier.publish(Notification{
		Topic:   TopicDropped,
		Role:    r.name,
		Dropped: count,
	})
}

// authenticated records the result of a pairing attempt.
func (r *role[S]) authenticated(ev stack.AuthComplete) {
	conn := r.conn.Load()
	if conn == nil {
		return
	}

	ok := ev.Status == stack.StatusSuccess
	conn.authenticated.Store(ok)

	if ok {
		r.log.Info("Authentication complete", zap.Stringer("address", ev.Address), zap.String("name", ev.Name))
	} else {
		r.log.Warn("Authentication failed", zap.Stringer("address", ev.Address), zap.Stringer("status", ev.Status))
	}

	r.opts.notifier.publish(Notification{
		Topic:   TopicAuth,
		Role:    r.name,
		Address: ev.Address,
		Status:  ev.Status,
	})
}

// congestion records the congestion state carried by an event.
func (r *role[S]) congestion(conn *ConnectionState, congested bool) {
	if conn.congested.Swap(congested) == congested {
		return
	}

	r.log.Debug("Congestion changed", zap.Bool("congested", congested))
	r.opts.notifier.publish(Notification{
		Topic:     TopicCongestion,
		Role:      r.name,
		Congested: congested,
	})
}

// respond answers a PIN request with the configured secret.
func (r *role[S]) respond(ev stack.PinRequest) {
	conn := r.conn.Load()
	if conn == nil {
		return
	}

	if err := (PairingResponder{stack: r.stack, conn: conn}).Respond(ev); err != nil {
		r.log.Warn("Cannot reply to PIN request", zap.Stringer("address", ev.Address), zap.Error(err))
	}
}

func (r *role[S]) logEvent(ev stack.Event) {
	r.log.Debug("Stack event", zap.Stringer("event", ev.Kind()))
}
