// Package serve implements the interactive mode: connections stay open and
// line-oriented commands from stdin are dispatched to the connected lights.
package serve

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/neewerctl/internal/config"
	"github.com/dokzlo13/neewerctl/internal/protocol"
	"github.com/dokzlo13/neewerctl/internal/selector"
	"github.com/dokzlo13/neewerctl/internal/session"
)

const usage = "Commands: on | off | cct <temp> <bri> [gm] | hsi <hue> <sat> <bri> | " +
	"scene <fx> <bri> | preset <name> | help | exit"

// Loop runs the interactive session over a fixed set of connected lights.
type Loop struct {
	Base   *selector.Options
	Config *config.Config
	Runner *session.Runner
	Encode protocol.Options
	In     io.Reader
	Out    io.Writer
}

// command is one parsed input line, ready to dispatch.
type command struct {
	addrs       []string // nil means every session light
	base        protocol.Command
	overrides   map[string]protocol.Command // per-light preset overrides
	description string
}

// Run connects all sessions, then reads commands until exit/EOF. The return
// value is the process exit code: 0 when everything succeeded, 2 when any
// connect or command delivery failed along the way.
func (l *Loop) Run(ctx context.Context, sessions []*session.Session) int {
	ready, exitCode := l.connectAll(ctx, sessions)
	if len(ready) == 0 {
		return 2
	}
	defer l.disconnectAll(ready)

	names := make([]string, 0, len(ready))
	for _, s := range ready {
		names = append(names, fmt.Sprintf("%s(%s)", s.Light.DisplayName(), s.Light.MAC))
	}
	log.Info().Str("lights", strings.Join(names, ", ")).Msg("Serve mode ready")
	fmt.Fprintln(l.Out, usage)

	scanner := bufio.NewScanner(l.In)
	for {
		fmt.Fprint(l.Out, "neewer> ")
		if !scanner.Scan() {
			break // EOF or read error ends the session
		}
		if ctx.Err() != nil {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit":
			return exitCode
		case "help", "?":
			fmt.Fprintln(l.Out, usage)
			continue
		}

		cmd, err := l.parseLine(line)
		if err != nil {
			fmt.Fprintf(l.Out, "[ERROR] %v\n", err)
			continue
		}
		if !l.dispatch(ctx, ready, cmd) {
			exitCode = 2
		}
	}
	return exitCode
}

func (l *Loop) connectAll(ctx context.Context, sessions []*session.Session) ([]*session.Session, int) {
	ready, failed := l.Runner.Connect(ctx, sessions)
	exitCode := 0
	for _, res := range failed {
		exitCode = 2
		fmt.Fprintf(l.Out, "- %s :: %v\n", res.MAC, res.Err)
	}
	return ready, exitCode
}

func (l *Loop) disconnectAll(sessions []*session.Session) {
	for _, s := range sessions {
		s.Disconnect()
	}
}

// parseLine builds the effective per-light command map for one input line.
// Each line starts from the base options with a clean precedence slate.
func (l *Loop) parseLine(line string) (*command, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return nil, config.Errorf("empty command")
	}

	opts := l.Base.Clone()
	opts.On, opts.Off = false, false
	opts.Preset = ""

	var perLight map[string]map[string]any
	var addrs []string
	description := ""

	switch strings.ToLower(tokens[0]) {
	case "preset":
		if len(tokens) != 2 {
			return nil, config.Errorf("usage: preset <name>")
		}
		opts.Preset = tokens[1]
		var err error
		perLight, err = opts.ApplyPreset(l.Config)
		if err != nil {
			return nil, err
		}
		resolved, all, err := selector.Resolve(opts.Light, l.Config.Groups)
		if err != nil {
			return nil, err
		}
		if !all {
			addrs = resolved
		}
		description = fmt.Sprintf("Preset %q", tokens[1])

	case "on":
		if len(tokens) != 1 {
			return nil, config.Errorf("usage: on")
		}
		opts.On = true

	case "off":
		if len(tokens) != 1 {
			return nil, config.Errorf("usage: off")
		}
		opts.Off = true

	case "cct":
		if len(tokens) != 3 && len(tokens) != 4 {
			return nil, config.Errorf("usage: cct <temp> <bri> [gm]")
		}
		opts.Mode = "CCT"
		opts.Temp = atoiOr(tokens[1], opts.Temp)
		opts.Bri = atoiOr(tokens[2], opts.Bri)
		opts.GM = 0
		if len(tokens) == 4 {
			opts.GM = atoiOr(tokens[3], 0)
		}

	case "hsi":
		if len(tokens) != 4 {
			return nil, config.Errorf("usage: hsi <hue> <sat> <bri>")
		}
		opts.Mode = "HSI"
		opts.Hue = atoiOr(tokens[1], opts.Hue)
		opts.Sat = atoiOr(tokens[2], opts.Sat)
		opts.Bri = atoiOr(tokens[3], opts.Bri)

	case "scene", "anm":
		if len(tokens) != 3 {
			return nil, config.Errorf("usage: scene <effect> <bri>")
		}
		opts.Mode = "SCENE"
		opts.Scene = atoiOr(tokens[1], opts.Scene)
		opts.Bri = atoiOr(tokens[2], opts.Bri)

	default:
		return nil, config.Errorf("unknown command; supported: on, off, cct, hsi, scene, preset, help, exit")
	}

	base, err := opts.BuildCommand()
	if err != nil {
		return nil, err
	}
	if description == "" {
		description = base.Describe()
	}

	overrides := make(map[string]protocol.Command, len(perLight))
	for mac, fields := range perLight {
		cmd, err := opts.CommandFor(fields)
		if err != nil {
			return nil, config.Errorf("per_light[%s]: %v", mac, err)
		}
		overrides[mac] = cmd
	}
	return &command{addrs: addrs, base: base, overrides: overrides, description: description}, nil
}

// dispatch encodes and sends one parsed command to the selected session
// lights. Returns false when any light failed.
func (l *Loop) dispatch(ctx context.Context, sessions []*session.Session, cmd *command) bool {
	selected, missing := selectSessions(sessions, cmd.addrs)
	if len(missing) > 0 {
		fmt.Fprintln(l.Out, "Command references lights not in this session:")
		for _, mac := range missing {
			fmt.Fprintf(l.Out, "- %s\n", mac)
		}
	}
	if len(selected) == 0 {
		return true
	}

	log.Info().Str("command", cmd.description).Int("lights", len(selected)).Msg("Dispatching")

	ok := true
	var targets []*session.Target
	for _, s := range selected {
		lightCmd, found := cmd.overrides[s.Light.MAC]
		if !found {
			lightCmd = cmd.base
		}
		packets, err := protocol.Encode(s.Light, lightCmd, l.Encode)
		if err != nil {
			ok = false
			fmt.Fprintf(l.Out, "- %s :: %v\n", s.Light.MAC, err)
			continue
		}
		targets = append(targets, &session.Target{Session: s, Packets: packets})
	}

	results := l.Runner.Send(ctx, targets, true)
	for _, res := range results {
		if res.Outcome != session.OutcomeSuccess {
			ok = false
			fmt.Fprintf(l.Out, "- %s :: %v\n", res.MAC, res.Err)
		}
	}
	if ok {
		fmt.Fprintf(l.Out, "Command sent to %d light(s).\n", len(targets))
	}
	return ok
}

// selectSessions filters the session set by target addresses. A nil filter
// selects everything.
func selectSessions(sessions []*session.Session, addrs []string) (selected []*session.Session, missing []string) {
	if addrs == nil {
		return sessions, nil
	}
	byMAC := make(map[string]*session.Session, len(sessions))
	for _, s := range sessions {
		byMAC[s.Light.MAC] = s
	}
	sorted := append([]string(nil), addrs...)
	sort.Strings(sorted)
	for _, mac := range sorted {
		if s, ok := byMAC[mac]; ok {
			selected = append(selected, s)
		} else {
			missing = append(missing, mac)
		}
	}
	return selected, missing
}

func atoiOr(s string, fallback int) int {
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return fallback
	}
	return n
}
