package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/neewerctl/internal/ble"
	"github.com/dokzlo13/neewerctl/internal/light"
	"github.com/dokzlo13/neewerctl/internal/protocol"
)

// Target pairs a session with the packet sequence it must deliver.
type Target struct {
	Session *Session
	Packets []protocol.Packet
}

// Result is the per-light outcome of a batch run.
type Result struct {
	MAC             string
	Name            string
	Outcome         Outcome
	ConnectAttempts int
	WriteAttempts   int
	PassesUsed      int
	Status          protocol.Status
	Err             error
}

// Runner executes a batch of targets with bounded concurrency and adaptive
// passes: each pass retries only the lights that have not yet succeeded,
// keeping their connections open between passes when it got that far.
type Runner struct {
	cfg Config
}

func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg.withDefaults()}
}

// NewTargets builds sessions for a set of lights sharing one transport and
// one command map. Lights without packets are skipped.
func NewTargets(transport ble.Transport, lights []*light.Descriptor, packets map[string][]protocol.Packet, cfg Config) []*Target {
	targets := make([]*Target, 0, len(lights))
	for _, l := range lights {
		seq, ok := packets[l.MAC]
		if !ok || len(seq) == 0 {
			continue
		}
		targets = append(targets, &Target{
			Session: New(transport, l, cfg),
			Packets: seq,
		})
	}
	return targets
}

// Send delivers each target's packet sequence, retrying failed lights on
// subsequent passes. When keepOpen is true, successful sessions stay
// connected after the run (serve mode); otherwise every session is released.
func (r *Runner) Send(ctx context.Context, targets []*Target, keepOpen bool) []Result {
	runID := uuid.NewString()
	results := make(map[string]*Result, len(targets))
	for _, t := range targets {
		results[t.Session.Light.MAC] = &Result{
			MAC:     t.Session.Light.MAC,
			Name:    t.Session.Light.DisplayName(),
			Outcome: OutcomeFailed,
		}
	}

	pending := targets
	for pass := 1; pass <= r.cfg.Passes && len(pending) > 0; pass++ {
		if ctx.Err() != nil {
			break
		}
		log.Debug().
			Str("run_id", runID).
			Int("pass", pass).
			Int("passes", r.cfg.Passes).
			Int("pending", len(pending)).
			Msg("Starting delivery pass")

		var mu sync.Mutex
		var failed []*Target
		r.runBounded(ctx, pending, func(ctx context.Context, t *Target) {
			res := results[t.Session.Light.MAC]
			res.PassesUsed = pass
			err := r.deliver(ctx, t)
			res.ConnectAttempts, res.WriteAttempts = t.Session.Attempts()
			if err != nil {
				res.Err = err
				mu.Lock()
				failed = append(failed, t)
				mu.Unlock()
				return
			}
			res.Outcome = OutcomeSuccess
			res.Err = nil
		})
		pending = failed
	}

	for _, t := range targets {
		res := results[t.Session.Light.MAC]
		if res.Outcome == OutcomeSuccess && keepOpen {
			continue
		}
		t.Session.Disconnect()
		t.Session.finish()
	}

	out := make([]Result, 0, len(targets))
	for _, t := range targets {
		res := results[t.Session.Light.MAC]
		if res.Outcome == OutcomeSuccess {
			log.Info().
				Str("run_id", runID).
				Str("mac", res.MAC).
				Str("name", res.Name).
				Int("passes", res.PassesUsed).
				Msg("Command delivered")
		} else {
			log.Warn().
				Str("run_id", runID).
				Str("mac", res.MAC).
				Str("name", res.Name).
				Err(res.Err).
				Msg("Command failed")
		}
		out = append(out, *res)
	}
	return out
}

// Connect opens every session through the bounded worker pool, so one slow
// light cannot serialize bring-up. Serve mode connects its rig this way.
// Results are ordered by MAC; sessions skipped by cancellation appear in
// neither slice.
func (r *Runner) Connect(ctx context.Context, sessions []*Session) (ready []*Session, failed []Result) {
	targets := make([]*Target, len(sessions))
	for i, s := range sessions {
		targets[i] = &Target{Session: s}
	}

	var mu sync.Mutex
	r.runBounded(ctx, targets, func(ctx context.Context, t *Target) {
		err := t.Session.Connect(ctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failed = append(failed, Result{
				MAC:     t.Session.Light.MAC,
				Name:    t.Session.Light.DisplayName(),
				Outcome: OutcomeFailed,
				Err:     err,
			})
			return
		}
		ready = append(ready, t.Session)
	})

	sort.Slice(ready, func(i, j int) bool { return ready[i].Light.MAC < ready[j].Light.MAC })
	sort.Slice(failed, func(i, j int) bool { return failed[i].MAC < failed[j].MAC })
	return ready, failed
}

// deliver connects if needed and sends the full sequence. On a write
// failure the connection stays open so the next pass retries the command
// without reconnecting.
func (r *Runner) deliver(ctx context.Context, t *Target) error {
	if err := t.Session.Connect(ctx); err != nil {
		return err
	}
	return t.Session.Send(ctx, t.Packets)
}

// QueryStatus runs the status round-trip instead of a command delivery.
// Unsupported lights fail immediately and are not retried on later passes.
func (r *Runner) QueryStatus(ctx context.Context, targets []*Target) []Result {
	runID := uuid.NewString()
	results := make(map[string]*Result, len(targets))
	for _, t := range targets {
		results[t.Session.Light.MAC] = &Result{
			MAC:     t.Session.Light.MAC,
			Name:    t.Session.Light.DisplayName(),
			Outcome: OutcomeFailed,
		}
	}

	pending := targets
	for pass := 1; pass <= r.cfg.Passes && len(pending) > 0; pass++ {
		if ctx.Err() != nil {
			break
		}
		var mu sync.Mutex
		var failed []*Target
		r.runBounded(ctx, pending, func(ctx context.Context, t *Target) {
			res := results[t.Session.Light.MAC]
			res.PassesUsed = pass
			status, err := r.queryOne(ctx, t)
			res.ConnectAttempts, res.WriteAttempts = t.Session.Attempts()
			if err != nil {
				res.Err = err
				var unsupported *protocol.UnsupportedCommandError
				if !errors.As(err, &unsupported) {
					mu.Lock()
					failed = append(failed, t)
					mu.Unlock()
				}
				return
			}
			res.Status = status
			res.Outcome = OutcomeSuccess
			res.Err = nil
		})
		pending = failed
	}

	for _, t := range targets {
		t.Session.Disconnect()
		t.Session.finish()
	}

	out := make([]Result, 0, len(targets))
	for _, t := range targets {
		res := results[t.Session.Light.MAC]
		log.Debug().
			Str("run_id", runID).
			Str("mac", res.MAC).
			Str("outcome", res.Outcome.String()).
			Msg("Status query finished")
		out = append(out, *res)
	}
	return out
}

func (r *Runner) queryOne(ctx context.Context, t *Target) (protocol.Status, error) {
	if !t.Session.Light.SupportsStatusQuery() {
		return protocol.Status{}, &protocol.UnsupportedCommandError{
			Light:  t.Session.Light.DisplayName(),
			Reason: "status query not supported by this model",
		}
	}
	if err := t.Session.Connect(ctx); err != nil {
		return protocol.Status{}, err
	}
	return t.Session.QueryStatus(ctx)
}

// DisconnectAll releases every session. Used by serve mode on shutdown.
func (r *Runner) DisconnectAll(targets []*Target) {
	for _, t := range targets {
		t.Session.Disconnect()
	}
}

// runBounded fans work over at most Parallel workers and waits for all.
func (r *Runner) runBounded(ctx context.Context, targets []*Target, fn func(context.Context, *Target)) {
	sem := make(chan struct{}, r.cfg.Parallel)
	var wg sync.WaitGroup
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(t *Target) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(ctx, t)
		}(t)
	}
	wg.Wait()
}
