// Package app ties the pieces together: option merging, discovery, command
// encoding and batch delivery, one flow per top-level CLI mode.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/neewerctl/internal/ble"
	"github.com/dokzlo13/neewerctl/internal/config"
	"github.com/dokzlo13/neewerctl/internal/light"
	"github.com/dokzlo13/neewerctl/internal/protocol"
	"github.com/dokzlo13/neewerctl/internal/selector"
	"github.com/dokzlo13/neewerctl/internal/serve"
	"github.com/dokzlo13/neewerctl/internal/session"
)

// Exit codes: 0 success, 1 nothing found, 2 partial or user-level failure.
const (
	ExitOK       = 0
	ExitNotFound = 1
	ExitFailure  = 2
)

// App is one CLI invocation: merged options, loaded config and a transport.
type App struct {
	Opts      *selector.Options
	Cfg       *config.Config
	Transport ble.Transport
	In        io.Reader
	Out       io.Writer
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}

// Run executes the selected flow and returns the process exit code. Config
// and preset layering happens here so serve mode sees the merged base.
func (a *App) Run(ctx context.Context) (int, error) {
	a.Opts.ApplyDefaults(a.Cfg.Defaults)
	perLight, err := a.Opts.ApplyPreset(a.Cfg)
	if err != nil {
		return ExitFailure, err
	}
	if err := a.validate(); err != nil {
		return ExitFailure, err
	}

	addrs, all, err := selector.Resolve(a.Opts.Light, a.Cfg.Groups)
	if err != nil {
		return ExitFailure, err
	}

	var targets map[string]struct{}
	if !all {
		targets = make(map[string]struct{}, len(addrs))
		for _, mac := range addrs {
			targets[mac] = struct{}{}
		}
	}

	lights, missing, unconfigured, err := a.gatherLights(ctx, targets)
	if err != nil {
		return ExitFailure, err
	}

	if a.Opts.List {
		return a.runList(lights, missing, unconfigured), nil
	}

	if len(lights) == 0 {
		log.Warn().Msg("No target lights discovered")
		return ExitNotFound, nil
	}
	a.reportGaps(missing, unconfigured)

	if a.Opts.Status {
		return a.runStatus(ctx, lights, missing), nil
	}
	if a.Opts.Serve {
		return a.runServe(ctx, lights), nil
	}
	return a.runSend(ctx, lights, perLight, missing)
}

func (a *App) validate() error {
	if a.Opts.On && a.Opts.Off {
		return config.Errorf("--on and --off are mutually exclusive")
	}
	if a.Opts.Status && a.Opts.Serve {
		return config.Errorf("--status and --serve are mutually exclusive")
	}
	if a.Opts.Status && (a.Opts.On || a.Opts.Off) {
		return config.Errorf("--status cannot be combined with --on/--off")
	}
	if a.Opts.Status && !a.Opts.EnableStatusQuery {
		return config.Errorf("--status requires --enable-status-query")
	}
	if !a.Opts.List && a.Opts.Light == "" {
		return config.Errorf("--light is required unless using --list or a preset sets lights")
	}
	return nil
}

func (a *App) sessionConfig() session.Config {
	return session.Config{
		ConnectTimeout: secondsToDuration(a.Opts.ConnectTimeout),
		ConnectRetries: a.Opts.ConnectRetries,
		WriteRetries:   a.Opts.WriteRetries,
		Passes:         a.Opts.Passes,
		Parallel:       a.Opts.Parallel,
		Settle:         time.Duration(a.Opts.SettleMS) * time.Millisecond,
		StatusTimeout:  secondsToDuration(a.Opts.StatusTimeout),
	}
}

func (a *App) encodeOptions() protocol.Options {
	return protocol.Options{PowerWithResponse: !a.Opts.NoResponse}
}

func (a *App) reportGaps(missing, unconfigured []string) {
	if len(unconfigured) > 0 {
		log.Warn().Msg("Some target addresses are missing config metadata; using generic defaults")
		for _, mac := range unconfigured {
			fmt.Fprintf(a.Out, "- %s\n", mac)
		}
	}
	if len(missing) > 0 {
		log.Warn().Msg("Some requested lights were not found")
		for _, mac := range missing {
			fmt.Fprintf(a.Out, "- %s\n", mac)
		}
	}
}

// runSend is the default one-shot flow: encode per light, deliver with
// adaptive passes, report per-light outcomes.
func (a *App) runSend(ctx context.Context, lights []*light.Descriptor, perLight map[string]map[string]any, missing []string) (int, error) {
	macs := make([]string, 0, len(lights))
	for _, l := range lights {
		macs = append(macs, l.MAC)
	}
	commands, err := a.Opts.Commands(macs, perLight)
	if err != nil {
		return ExitFailure, err
	}
	if len(perLight) > 0 {
		log.Info().Str("preset", a.Opts.Preset).Int("lights", len(perLight)).Msg("Preset defines per-light commands")
	} else if base, err := a.Opts.BuildCommand(); err == nil {
		log.Info().Str("command", base.Describe()).Msg("Sending")
	}

	encodeFailures := map[string]error{}
	packets := make(map[string][]protocol.Packet, len(lights))
	for _, l := range lights {
		seq, err := protocol.Encode(l, commands[l.MAC], a.encodeOptions())
		if err != nil {
			encodeFailures[l.MAC] = err
			continue
		}
		packets[l.MAC] = seq
	}

	cfg := a.sessionConfig()
	targets := session.NewTargets(a.Transport, lights, packets, cfg)
	results := session.NewRunner(cfg).Send(ctx, targets, false)

	failed := len(encodeFailures)
	for mac, err := range encodeFailures {
		fmt.Fprintf(a.Out, "- %s :: %v\n", mac, err)
	}
	sent := 0
	for _, res := range results {
		if res.Outcome == session.OutcomeSuccess {
			sent++
			continue
		}
		failed++
		fmt.Fprintf(a.Out, "- %s :: %v\n", res.MAC, res.Err)
	}

	if failed > 0 || len(missing) > 0 {
		log.Warn().Int("sent", sent).Int("failed", failed).Msg("Command finished with errors")
		return ExitFailure, nil
	}
	log.Info().Int("sent", sent).Msg("Command sent successfully")
	return ExitOK, nil
}

func (a *App) runList(lights []*light.Descriptor, missing, unconfigured []string) int {
	printDeviceTable(a.Out, lights)
	if len(missing) > 0 {
		fmt.Fprintln(a.Out, "\nMissing target address(es):")
		for _, mac := range missing {
			fmt.Fprintf(a.Out, "- %s\n", mac)
		}
		return ExitFailure
	}
	if len(unconfigured) > 0 {
		fmt.Fprintln(a.Out, "\nAddress(es) missing config metadata (using generic defaults):")
		for _, mac := range unconfigured {
			fmt.Fprintf(a.Out, "- %s\n", mac)
		}
	}
	if len(lights) == 0 {
		return ExitNotFound
	}
	return ExitOK
}

func (a *App) runStatus(ctx context.Context, lights []*light.Descriptor, missing []string) int {
	cfg := a.sessionConfig()
	targets := make([]*session.Target, 0, len(lights))
	for _, l := range lights {
		targets = append(targets, &session.Target{Session: session.New(a.Transport, l, cfg)})
	}
	results := session.NewRunner(cfg).QueryStatus(ctx, targets)

	printStatusTable(a.Out, lights, results)
	code := ExitOK
	for _, res := range results {
		if res.Outcome != session.OutcomeSuccess {
			code = ExitFailure
			fmt.Fprintf(a.Out, "- %s :: %v\n", res.MAC, res.Err)
		}
	}
	if len(missing) > 0 {
		code = ExitFailure
	}
	return code
}

func (a *App) runServe(ctx context.Context, lights []*light.Descriptor) int {
	cfg := a.sessionConfig()
	sessions := make([]*session.Session, 0, len(lights))
	for _, l := range lights {
		sessions = append(sessions, session.New(a.Transport, l, cfg))
	}
	loop := &serve.Loop{
		Base:   a.Opts,
		Config: a.Cfg,
		Runner: session.NewRunner(cfg),
		Encode: a.encodeOptions(),
		In:     a.In,
		Out:    a.Out,
	}
	return loop.Run(ctx, sessions)
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
