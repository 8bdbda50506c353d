// Package session owns the per-light connection lifecycle and the adaptive
// multi-pass batch runner. Each Session exclusively owns its light's radio
// handle and error trail; no state is shared between workers.
package session

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/neewerctl/internal/ble"
	"github.com/dokzlo13/neewerctl/internal/light"
	"github.com/dokzlo13/neewerctl/internal/protocol"
)

// Config tunes the connection lifecycle. Zero values fall back to
// conservative defaults favoring stability over throughput.
type Config struct {
	ConnectTimeout time.Duration
	ConnectRetries int
	WriteRetries   int
	Passes         int
	Parallel       int
	Settle         time.Duration // minimum pause between consecutive writes
	StatusTimeout  time.Duration // wait for each status notify response
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 12 * time.Second
	}
	if c.ConnectRetries < 1 {
		c.ConnectRetries = 1
	}
	if c.WriteRetries < 1 {
		c.WriteRetries = 1
	}
	if c.Passes < 1 {
		c.Passes = 1
	}
	if c.Parallel < 1 {
		c.Parallel = 1
	}
	if c.StatusTimeout <= 0 {
		c.StatusTimeout = time.Second
	}
	return c
}

// Session drives one light through Idle -> Connecting -> Connected ->
// Sending -> Disconnecting -> Done. It is not safe for concurrent use; the
// runner guarantees one worker per session.
type Session struct {
	Light *light.Descriptor

	transport ble.Transport
	cfg       Config
	handle    ble.Handle
	limiter   *rate.Limiter // paces consecutive GATT writes

	state atomic.Int32

	connectAttempts int
	writeAttempts   int
	lastErr         error
}

// New builds a session for one light. The descriptor is read-only from here.
func New(transport ble.Transport, l *light.Descriptor, cfg Config) *Session {
	cfg = cfg.withDefaults()
	var limiter *rate.Limiter
	if cfg.Settle > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.Settle), 1)
	}
	return &Session{
		Light:     l,
		transport: transport,
		cfg:       cfg,
		limiter:   limiter,
	}
}

// State reports the current lifecycle state. Safe to read concurrently.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(state State) {
	s.state.Store(int32(state))
}

// Connected reports whether the session holds a live handle.
func (s *Session) Connected() bool {
	return s.handle != nil
}

// LastErr returns the most recent error on this light's trail.
func (s *Session) LastErr() error {
	return s.lastErr
}

// Attempts returns the cumulative connect and write attempts used so far.
func (s *Session) Attempts() (connect, write int) {
	return s.connectAttempts, s.writeAttempts
}

// Connect runs the staged connect: up to ConnectRetries attempts with a
// short growing backoff. Exhausting retries leaves the session idle; the
// runner decides whether another pass gets to retry.
func (s *Session) Connect(ctx context.Context) error {
	if s.Connected() {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.ConnectRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			s.setState(StateIdle)
			s.lastErr = err
			return err
		}
		s.setState(StateConnecting)
		s.connectAttempts++
		log.Debug().
			Str("mac", s.Light.MAC).
			Str("name", s.Light.DisplayName()).
			Int("attempt", attempt).
			Int("retries", s.cfg.ConnectRetries).
			Msg("Connecting")

		handle, err := s.transport.Connect(ctx, s.Light.MAC, s.cfg.ConnectTimeout)
		if err == nil {
			s.handle = handle
			s.setState(StateConnected)
			return nil
		}
		lastErr = err
		s.lastErr = err
		sleepCtx(ctx, backoff(attempt, 200*time.Millisecond, time.Second))
	}

	s.setState(StateIdle)
	err := &ConnectError{MAC: s.Light.MAC, Attempts: s.cfg.ConnectRetries, Err: lastErr}
	s.lastErr = err
	return err
}

// Send writes a full packet sequence in order. Each packet gets up to
// WriteRetries attempts; the first packet that exhausts them fails the whole
// command for this pass. Partial sequences are never success.
func (s *Session) Send(ctx context.Context, packets []protocol.Packet) error {
	if !s.Connected() {
		s.lastErr = ErrNotConnected
		return ErrNotConnected
	}
	s.setState(StateSending)
	defer func() {
		if s.Connected() {
			s.setState(StateConnected)
		}
	}()

	for i, pkt := range packets {
		if err := s.pace(ctx); err != nil {
			s.lastErr = err
			return err
		}
		if err := s.writePacket(ctx, i, pkt); err != nil {
			s.lastErr = err
			return err
		}
		if pkt.SettleAfter > s.cfg.Settle {
			sleepCtx(ctx, pkt.SettleAfter-s.cfg.Settle)
		}
	}
	return nil
}

func (s *Session) writePacket(ctx context.Context, index int, pkt protocol.Packet) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.WriteRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.handle.Write(ctx, pkt.Data, pkt.WithResponse)
		if err == nil {
			s.writeAttempts += attempt
			return nil
		}
		lastErr = err
		log.Debug().
			Str("mac", s.Light.MAC).
			Int("packet", index).
			Int("attempt", attempt).
			Int("retries", s.cfg.WriteRetries).
			Err(err).
			Msg("Write failed")
		sleepCtx(ctx, backoff(attempt, 100*time.Millisecond, 500*time.Millisecond))
	}
	s.writeAttempts += s.cfg.WriteRetries
	return &WriteError{MAC: s.Light.MAC, Packet: index, Attempts: s.cfg.WriteRetries, Err: lastErr}
}

// pace enforces the settle interval between consecutive writes.
func (s *Session) pace(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// Disconnect releases the radio handle. Runs on every exit path from a
// connected session, success or failure, and is safe to call repeatedly.
func (s *Session) Disconnect() {
	if s.handle == nil {
		return
	}
	s.setState(StateDisconnecting)
	if err := s.handle.Disconnect(); err != nil {
		log.Warn().Str("mac", s.Light.MAC).Err(err).Msg("Disconnect failed")
		s.lastErr = &TransportFault{Op: "disconnect", Err: err}
	} else {
		log.Debug().Str("mac", s.Light.MAC).Str("name", s.Light.DisplayName()).Msg("Disconnected")
	}
	s.handle = nil
	s.setState(StateIdle)
}

// finish marks the session terminal for this run.
func (s *Session) finish() {
	s.setState(StateDone)
}

// QueryStatus runs the notify-based status round-trip: subscribe, write each
// query packet, wait for the matching notify payload type.
func (s *Session) QueryStatus(ctx context.Context) (protocol.Status, error) {
	if !s.Connected() {
		return protocol.Status{}, ErrNotConnected
	}
	if !s.Light.SupportsStatusQuery() {
		return protocol.Status{}, &protocol.UnsupportedCommandError{
			Light:  s.Light.DisplayName(),
			Reason: "status query not supported by this model",
		}
	}
	notifier, ok := s.handle.(ble.Notifier)
	if !ok {
		return protocol.Status{}, &protocol.UnsupportedCommandError{
			Light:  s.Light.DisplayName(),
			Reason: "transport does not support notifications",
		}
	}

	payloads := make(chan []byte, 16)
	if err := notifier.Subscribe(func(data []byte) {
		buf := append([]byte(nil), data...)
		select {
		case payloads <- buf:
		default:
		}
	}); err != nil {
		return protocol.Status{}, &TransportFault{Op: "subscribe", Err: err}
	}

	s.setState(StateSending)
	defer func() {
		if s.Connected() {
			s.setState(StateConnected)
		}
	}()

	power, err := s.queryNotify(ctx, payloads, protocol.PowerStatusQuery(), protocol.NotifyTypePower)
	if err != nil {
		return protocol.Status{}, err
	}
	channel, err := s.queryNotify(ctx, payloads, protocol.ChannelStatusQuery(), protocol.NotifyTypeChannel)
	if err != nil {
		return protocol.Status{}, err
	}
	if power == nil && channel == nil {
		return protocol.Status{}, fmt.Errorf("%s: status query timed out (no notify response)", s.Light.MAC)
	}
	return protocol.ParseStatus(power, channel), nil
}

// queryNotify writes one query packet and waits for a payload of the
// expected type, retrying the write up to WriteRetries times. A nil result
// without error means this particular query went unanswered.
func (s *Session) queryNotify(ctx context.Context, payloads <-chan []byte, query protocol.Packet, expectedType byte) ([]byte, error) {
	for attempt := 1; attempt <= s.cfg.WriteRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.handle.Write(ctx, query.Data, query.WithResponse); err != nil {
			sleepCtx(ctx, backoff(attempt, 100*time.Millisecond, 500*time.Millisecond))
			continue
		}

		deadline := time.NewTimer(s.cfg.StatusTimeout)
		for {
			select {
			case payload := <-payloads:
				if len(payload) > 1 && payload[1] == expectedType {
					deadline.Stop()
					return payload, nil
				}
			case <-deadline.C:
				goto nextAttempt
			case <-ctx.Done():
				deadline.Stop()
				return nil, ctx.Err()
			}
		}
	nextAttempt:
	}
	return nil, nil
}

// backoff grows linearly with the attempt number and saturates at max.
func backoff(attempt int, step, max time.Duration) time.Duration {
	d := time.Duration(attempt) * step
	if d > max {
		return max
	}
	return d
}

// sleepCtx sleeps unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
