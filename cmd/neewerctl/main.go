package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/neewerctl/internal/app"
	"github.com/dokzlo13/neewerctl/internal/ble"
	"github.com/dokzlo13/neewerctl/internal/config"
	"github.com/dokzlo13/neewerctl/internal/selector"
)

const defaultConfigPath = "~/.neewer"

func main() {
	os.Exit(run())
}

func run() int {
	opts := selector.NewOptions()
	var configPath string

	flag.StringVar(&configPath, "config", defaultConfigPath, "Config file path (.json, .yaml, .yml)")
	flag.StringVar(&opts.Preset, "preset", opts.Preset, "Preset name from config file")
	flag.BoolVar(&opts.List, "list", opts.List, "Scan and list detected lights")
	flag.StringVar(&opts.Light, "light", opts.Light, "Comma-separated MAC addresses, ALL/*, or group:<name> from config")
	flag.BoolVar(&opts.SkipDiscovery, "skip-discovery", opts.SkipDiscovery, "Skip BLE scan and connect directly to configured MAC addresses")
	flag.BoolVar(&opts.Status, "status", opts.Status, "Query power/channel status instead of sending a control command")
	flag.BoolVar(&opts.Serve, "serve", opts.Serve, "Keep BLE connections open and accept live commands from stdin")
	flag.BoolVar(&opts.On, "on", opts.On, "Turn light(s) on")
	flag.BoolVar(&opts.Off, "off", opts.Off, "Turn light(s) off")
	flag.StringVar(&opts.Mode, "mode", opts.Mode, "Color mode when not using --on/--off (CCT, HSI, SCENE/ANM)")

	flag.IntVar(&opts.Temp, "temp", opts.Temp, "CCT temperature (56 or 5600)")
	flag.IntVar(&opts.Hue, "hue", opts.Hue, "HSI hue (0-360)")
	flag.IntVar(&opts.Sat, "sat", opts.Sat, "HSI saturation (0-100)")
	flag.IntVar(&opts.Bri, "bri", opts.Bri, "Brightness (0-100)")
	flag.IntVar(&opts.GM, "gm", opts.GM, "GM compensation (-50 to 50); internally shifted by +50")
	flag.IntVar(&opts.Scene, "scene", opts.Scene, "Scene/effect index (1-29)")
	flag.IntVar(&opts.SceneBrightMin, "scene-bright-min", opts.SceneBrightMin, "Extended scene: minimum brightness (0-100)")
	flag.IntVar(&opts.SceneBrightMax, "scene-bright-max", opts.SceneBrightMax, "Extended scene: maximum brightness (0-100)")
	flag.IntVar(&opts.SceneTempMin, "scene-temp-min", opts.SceneTempMin, "Extended scene: minimum CCT (for example 3200 or 32)")
	flag.IntVar(&opts.SceneTempMax, "scene-temp-max", opts.SceneTempMax, "Extended scene: maximum CCT (for example 5600 or 56)")
	flag.IntVar(&opts.SceneHueMin, "scene-hue-min", opts.SceneHueMin, "Extended scene: minimum hue (0-360)")
	flag.IntVar(&opts.SceneHueMax, "scene-hue-max", opts.SceneHueMax, "Extended scene: maximum hue (0-360)")
	flag.IntVar(&opts.SceneSpeed, "scene-speed", opts.SceneSpeed, "Extended scene: speed parameter (1-10)")
	flag.IntVar(&opts.SceneSparks, "scene-sparks", opts.SceneSparks, "Extended scene: sparks parameter (0-10)")
	flag.IntVar(&opts.SceneSpecial, "scene-special", opts.SceneSpecial, "Extended scene: special option parameter (0-10)")

	flag.Float64Var(&opts.ScanTimeout, "scan-timeout", opts.ScanTimeout, "BLE scan timeout in seconds")
	flag.IntVar(&opts.ScanAttempts, "scan-attempts", opts.ScanAttempts, "Max BLE scan rounds")
	flag.Float64Var(&opts.ResolveTimeout, "resolve-timeout", opts.ResolveTimeout, "Short scan timeout used to resolve handles for --skip-discovery")
	flag.Float64Var(&opts.StatusTimeout, "status-timeout", opts.StatusTimeout, "Timeout (seconds) waiting for status-query notify responses")
	flag.Float64Var(&opts.ConnectTimeout, "connect-timeout", opts.ConnectTimeout, "Connect timeout in seconds")
	flag.IntVar(&opts.ConnectRetries, "connect-retries", opts.ConnectRetries, "Connect attempts per light per pass")
	flag.IntVar(&opts.WriteRetries, "write-retries", opts.WriteRetries, "Write attempts per packet")
	flag.IntVar(&opts.Passes, "passes", opts.Passes, "Max adaptive send attempts (retries only failed lights)")
	flag.IntVar(&opts.Parallel, "parallel", opts.Parallel, "Max concurrent connect/write operations")
	flag.IntVar(&opts.SettleMS, "settle-ms", opts.SettleMS, "Delay between BLE writes")
	flag.BoolVar(&opts.NoResponse, "no-response", opts.NoResponse, "Use write-without-response for power commands (faster, less reliable)")
	flag.BoolVar(&opts.EnableStatusQuery, "enable-status-query", opts.EnableStatusQuery, "Enable experimental status query protocol commands")
	flag.BoolVar(&opts.EnableExtendedScene, "enable-extended-scene", opts.EnableExtendedScene, "Enable experimental extended scene payloads on supported models")
	flag.BoolVar(&opts.Debug, "debug", opts.Debug, "Verbose debug output")
	flag.Parse()

	configExplicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			configExplicit = true
			return
		}
		opts.MarkExplicit(f.Name)
	})

	setupLogging(opts.Debug)

	// The default config path is optional; a path the user asked for must
	// exist.
	cfg, err := config.Load(configPath, !configExplicit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		return app.ExitFailure
	}

	ctx := app.SignalContext()
	a := &app.App{
		Opts:      opts,
		Cfg:       cfg,
		Transport: ble.NewAdapter(),
		In:        os.Stdin,
		Out:       os.Stdout,
	}

	code, err := a.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		return app.ExitFailure
	}
	if ctx.Err() != nil {
		log.Warn().Msg("Interrupted by user")
		return 130
	}
	return code
}

func setupLogging(debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
