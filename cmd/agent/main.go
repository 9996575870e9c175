package main

import (
	"context"
	"flag"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/polzovatel/swipe-agent/internal/agent"
	"github.com/polzovatel/swipe-agent/internal/config"
	"github.com/polzovatel/swipe-agent/internal/device"
	"github.com/polzovatel/swipe-agent/internal/oracle"
	"github.com/polzovatel/swipe-agent/internal/remarks"
)

type cliOptions struct {
	configPath  string
	preset      string
	maxProfiles int
	serial      string
	oraclePlan  bool
	debug       bool
}

func main() {
	_ = godotenv.Load()
	opts := parseFlags()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if opts.debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	cfg, err := config.Preset(opts.preset)
	if err != nil {
		log.Fatal().Err(err).Msg("preset")
	}
	if opts.configPath != "" {
		cfg, err = config.Load(opts.configPath, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("config load")
		}
	}
	if opts.maxProfiles > 0 {
		cfg.Workflow.MaxProfiles = opts.maxProfiles
	}
	if opts.serial != "" {
		cfg.Device.Serial = opts.serial
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config invalid")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := oracle.NewClientFromEnv(log.With().Str("comp", "llm").Logger(), cfg.Oracle.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("oracle init")
	}
	analyzer := oracle.NewAnalyzer(client, log.Logger)

	dev, err := device.Connect(ctx, cfg.Device.Addr, cfg.Device.Serial, cfg.Device.ScreenshotDir, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("device init")
	}
	defer dev.Close()

	store, err := remarks.Open(cfg.Remarks.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("remark store init")
	}
	defer store.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var policy agent.Policy
	if opts.oraclePlan {
		policy = agent.NewOraclePolicy(analyzer, cfg.Workflow.MinTargetConfidence, log.Logger)
	} else {
		policy = agent.NewTablePolicy()
	}

	sub := agent.NewSubmitter(dev, analyzer, store, cfg.Workflow, cfg.Remarks, rng, log.Logger)
	recov := agent.NewRecoverer(dev, analyzer, cfg.Workflow, log.Logger)

	orch := agent.NewOrchestrator(cfg, dev, analyzer, policy, sub, recov, store, log.Logger)

	log.Info().
		Str("preset", opts.preset).
		Str("model", client.Name()).
		Int("max_profiles", cfg.Workflow.MaxProfiles).
		Msg("session starting")

	sum, err := orch.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("run finished with error")
	}
	agent.PrintSummary(sum)
}

func parseFlags() cliOptions {
	configPath := flag.String("config", "", "Path to YAML config overlay")
	preset := flag.String("preset", "default", "Config preset: default, fast, conservative")
	maxProfiles := flag.Int("max-profiles", 0, "Override profile quota for this session")
	serial := flag.String("serial", "", "Device serial (default: any connected device)")
	oraclePlan := flag.Bool("oracle-policy", false, "Let the vision model plan unknown screens")
	debug := flag.Bool("debug", false, "Verbose logging")
	flag.Parse()
	return cliOptions{
		configPath:  strings.TrimSpace(*configPath),
		preset:      strings.TrimSpace(*preset),
		maxProfiles: *maxProfiles,
		serial:      strings.TrimSpace(*serial),
		oraclePlan:  *oraclePlan,
		debug:       *debug,
	}
}
