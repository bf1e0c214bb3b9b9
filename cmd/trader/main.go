package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kraken-auto-trader-go/internal/alerts"
	"kraken-auto-trader-go/internal/config"
	"kraken-auto-trader-go/internal/database"
	"kraken-auto-trader-go/internal/kraken"
	"kraken-auto-trader-go/internal/logger"
	"kraken-auto-trader-go/internal/risk"
	"kraken-auto-trader-go/internal/strategy"
	"kraken-auto-trader-go/internal/trader"

	"go.uber.org/zap"
)

const usage = `Usage: trader [-config dir] <command> [flags]

Commands:
  run     start the trading loop
  status  print the engine status and risk state
  stop    ask a running engine to stop after its current cycle
`

func main() {
	configDir := flag.String("config", "./configs", "directory holding config.yml")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	// Load application configuration
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "run":
		err = runCommand(cfg, args)
	case "status":
		err = statusCommand(cfg, os.Stdout)
	case "stop":
		err = trader.WriteStopMarker(cfg.Engine.StopFile())
		if err == nil {
			fmt.Printf("Stop requested; the engine will halt after its current cycle (%s)\n", cfg.Engine.StopFile())
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "trader %s: %v\n", flag.Arg(0), err)
		os.Exit(1)
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func runCommand(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	once := fs.Bool("once", false, "run a single cycle and exit (same as -max-cycles 1)")
	live := fs.Bool("live", false, "place real orders (overrides engine.dry_run)")
	strategies := fs.String("strategies", "", "comma separated strategy keys (default: all enabled)")
	pairs := fs.String("pairs", "", "comma separated pairs overriding the strategies' pairs")
	timeframe := fs.String("timeframe", "", "timeframe override, e.g. 1h")
	interval := fs.Duration("interval", 0, "poll interval override")
	maxCycles := fs.Int("max-cycles", 0, "stop after this many cycles (0 = config value)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	alertManager := alerts.NewFromConfig(cfg.Alerts, log)

	strategyManager, err := strategy.NewManager(cfg.Engine.StrategiesFile, strategy.DefaultRegistry(), log)
	if err != nil {
		return fmt.Errorf("failed to load strategies: %w", err)
	}

	limits, err := risk.MergeLimits(risk.DefaultLimits(), cfg.Risk.Limits)
	if err != nil {
		return fmt.Errorf("invalid risk limits: %w", err)
	}
	riskManager := risk.NewManager(cfg.Risk.StateFile, alertManager, log, risk.WithDefaults(limits))

	// Initialize Kraken REST client
	restClient, err := kraken.NewRestClient(&cfg.Kraken, log)
	if err != nil {
		return err
	}
	serverTime, err := restClient.GetServerTime(context.Background())
	if err != nil {
		return fmt.Errorf("failed to connect to Kraken API: %w", err)
	}
	log.Info("Successfully connected to Kraken API.", zap.Time("server_time", serverTime))

	// Initialize database
	var journal trader.TradeJournal
	if db, err := database.NewDatabase(cfg.Database.DSN); err != nil {
		log.Error("Trade journal unavailable, continuing without it", zap.Error(err))
	} else {
		journal = database.NewJournal(db)
		log.Info("Database connection successful and schema migrated.")
	}

	engine := trader.NewEngine(log, cfg.Engine, restClient, strategyManager, riskManager, alertManager, journal)

	opts := trader.RunOptions{
		Strategies:   splitList(*strategies),
		Pairs:        splitList(strings.ToUpper(*pairs)),
		Timeframe:    *timeframe,
		PollInterval: *interval,
		MaxCycles:    *maxCycles,
	}
	if *live {
		dryRun := false
		opts.DryRun = &dryRun
	}

	if *once {
		opts.MaxCycles = 1
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, finishing current cycle...")
		cancel()
	}()

	var api *trader.APIServer
	if cfg.Server.Port > 0 {
		api = trader.NewAPIServer(engine, alertManager, cfg.Server.Port, log)
		api.Start()
	}

	engine.RunForever(ctx, opts)

	if api != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := api.Stop(shutdownCtx); err != nil {
			log.Warn("API server shutdown failed", zap.Error(err))
		}
	}
	log.Info("Bot has been shut down.")
	if st := engine.Status(); *once && st.LastError != nil {
		return fmt.Errorf("cycle failed: %s", *st.LastError)
	}
	return nil
}
