package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/daccred/library-ledger/config"
	"github.com/daccred/library-ledger/controllers"
	"github.com/daccred/library-ledger/db"
	"github.com/daccred/library-ledger/handlers"
	"github.com/daccred/library-ledger/models"
	"github.com/daccred/library-ledger/server"
)

func main() {
	environment := flag.String("e", "development", "")
	flag.Usage = func() {
		fmt.Println("Usage: server -e {mode}")
		os.Exit(1)
	}
	flag.Parse()
	config.Init(*environment)

	settings, err := config.Decode(config.GetConfig())
	if err != nil {
		logrus.Fatal(err)
	}
	logger := config.NewLogger(settings.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, settings config.Settings, logger *logrus.Logger) error {
	ledgerCfg := handlers.LedgerConfig{
		Difficulty:        settings.Ledger.Difficulty,
		MiningRewardLabel: settings.Ledger.MiningRewardLabel,
		SigningSecret:     settings.Ledger.SigningSecret,
	}
	thresholdKinds := make([]models.Kind, 0, len(settings.Ledger.ThresholdKinds))
	for _, name := range settings.Ledger.ThresholdKinds {
		kind, err := models.ParseKind(name)
		if err != nil {
			return fmt.Errorf("ledger.threshold_kinds: %q: %w", name, err)
		}
		thresholdKinds = append(thresholdKinds, kind)
	}

	ledgerLogger := logger.WithField("service", "ledger")
	ledger := handlers.NewLedger(ledgerCfg, ledgerLogger)

	var sink handlers.BlockSink
	if settings.Archive.Enabled {
		dbConn, err := db.Connect(settings.Archive.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to archive database: %w", err)
		}
		defer dbConn.Close()

		archive := db.NewArchive(dbConn, logger.WithField("service", "archive"))
		ledger, err = openArchivedLedger(ctx, archive, ledgerCfg, ledger, settings.Archive.Timeout, ledgerLogger)
		if err != nil {
			return err
		}
		sink = archive
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := handlers.NewMetrics(reg)

	orchestrator := handlers.NewOrchestrator(ledger, handlers.OrchestratorConfig{
		SigningSecret:      settings.Ledger.SigningSecret,
		RewardAddress:      settings.Ledger.RewardAddress,
		MiningInterval:     settings.Ledger.MiningInterval,
		ValidationInterval: settings.Ledger.ValidationInterval,
		Threshold:          settings.Ledger.Threshold,
		ThresholdKinds:     thresholdKinds,
		SinkTimeout:        settings.Archive.Timeout,
	}, metrics, sink, logger.WithField("service", "orchestrator"))
	if err := orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer orchestrator.Wait()

	var limiter *rate.Limiter
	if settings.HTTP.MineRatePerMinute > 0 {
		burst := settings.HTTP.MineBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(settings.HTTP.MineRatePerMinute)), burst)
	}
	controller := controllers.NewLedgerController(orchestrator, limiter, settings.HTTP.VerifyCacheTTL)
	router := server.NewRouter(controller, server.RouterConfig{
		AllowedOrigins: settings.Server.AllowedOrigins,
		Gatherer:       reg,
	}, logger.WithField("service", "http"))

	port := settings.Server.Port
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	return server.New(port, router, logger.WithField("service", "http")).Run(ctx)
}

// openArchivedLedger restores the chain kept in the archive, or seeds an empty
// archive with the genesis block of fresh.
func openArchivedLedger(ctx context.Context, archive *db.Archive, cfg handlers.LedgerConfig, fresh *handlers.Ledger, timeout time.Duration, logger *logrus.Entry) (*handlers.Ledger, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	blocks, err := archive.LoadBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load archived blocks: %w", err)
	}
	if len(blocks) == 0 {
		if err := archive.SaveBlock(ctx, fresh.LatestBlock()); err != nil {
			return nil, fmt.Errorf("failed to archive genesis block: %w", err)
		}
		logger.Info("Archive empty, started a new chain")
		return fresh, nil
	}
	restored, err := handlers.RestoreLedger(cfg, blocks, logger)
	if err != nil {
		// The archive is evidence; refuse to overwrite it with a new chain.
		return nil, fmt.Errorf("archived chain rejected: %w", err)
	}
	return restored, nil
}
