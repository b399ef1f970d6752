// Command driver runs the batch auction exchange driver: it watches the exchange
// contract for orderbook events, solves each batch by shelling out to a price
// finder, and submits the resulting solution back on chain. Grounded on the
// teacher's crypto-wallet/cmd/wallet-service/main.go (config-then-logger bring-up,
// signal-driven graceful shutdown) and cmd/task-cli/commands/root.go (cobra
// persistent flags bound as config overrides).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gnosis/dex-driver/internal/batchclock"
	"github.com/gnosis/dex-driver/internal/driver"
	"github.com/gnosis/dex-driver/internal/eventlog"
	"github.com/gnosis/dex-driver/internal/exchange"
	"github.com/gnosis/dex-driver/internal/gasoracle"
	"github.com/gnosis/dex-driver/internal/health"
	"github.com/gnosis/dex-driver/internal/metrics"
	"github.com/gnosis/dex-driver/internal/orderbook"
	"github.com/gnosis/dex-driver/internal/pricefinder"
	"github.com/gnosis/dex-driver/internal/scheduler"
	"github.com/gnosis/dex-driver/internal/solution"
	"github.com/gnosis/dex-driver/pkg/config"
	"github.com/gnosis/dex-driver/pkg/logger"
	"github.com/gnosis/dex-driver/pkg/models"
)

var (
	configPath     string
	nodeURLFlag    string
	privateKeyFlag string
	contractAddr   string
	logLevelFlag   string
	eventPageSize  int
)

var rootCmd = &cobra.Command{
	Use:   "driver",
	Short: "Off-chain driver for the batch auction exchange",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: ./config.yaml or ./configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&nodeURLFlag, "node-url", "", "Ethereum JSON-RPC endpoint (overrides config)")
	rootCmd.PersistentFlags().StringVar(&privateKeyFlag, "private-key", "", "hex-encoded signing key (overrides config)")
	rootCmd.PersistentFlags().StringVar(&contractAddr, "contract-address", "", "batch exchange contract address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().IntVar(&eventPageSize, "event-page-size", 5000, "blocks per eth_getLogs page when backfilling")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlagOverrides(cfg)

	log := logger.NewLogger(cfg.Logging)
	defer log.Sync()
	log.Info("starting driver")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutdown signal received")
		cancel()
	}()

	client, err := exchange.Dial(ctx, cfg.Exchange.NodeURL, cfg.Exchange.ContractAddr, cfg.Exchange.PrivateKey, log)
	if err != nil {
		return fmt.Errorf("dial exchange: %w", err)
	}
	defer client.Close()

	evLog, err := eventlog.ReadFromFile(cfg.Persist.EventLogPath)
	if err != nil {
		return fmt.Errorf("read event log: %w", err)
	}
	reader := orderbook.New(evLog)

	currentBatch, tip, err := backfillEvents(ctx, client, evLog, eventPageSize, log)
	if err != nil {
		return fmt.Errorf("backfill events: %w", err)
	}
	logRecoveredState(reader, evLog, currentBatch, tip, log)

	fetcher := gasoracle.NewHTTPFetcher(cfg.GasOracle.URL, 10*time.Second)
	oracle := gasoracle.New(fetcher, cfg.GasOracle.Fallback, log.Logger)
	oracle.Start(ctx, cfg.GasOracle.PollInterval)
	defer oracle.Stop()
	estimator := gasoracle.NewInfallibleEstimator(oracle.Current)

	pf, err := pricefinder.New(pricefinder.Config{
		Command:     cfg.Solver.Command,
		BaseArgs:    cfg.Solver.BaseArgs,
		SolverArg:   fmt.Sprintf("--solver=%s", cfg.Solver.Type),
		InstanceDir: cfg.Solver.InstanceDir,
		ResultDir:   cfg.Solver.ResultDir,
		Fee:         &pricefinder.Fee{Token: models.FeeTokenId, Ratio: cfg.Solver.FeeRatio},
	})
	if err != nil {
		return fmt.Errorf("build price finder: %w", err)
	}

	submitter := solution.New(client, estimator)
	clock := batchclock.New()

	drv := &driver.Driver{
		Reader:      reader,
		PriceFinder: pf,
		Submitter:   submitter,
		Subsidy: driver.SubsidyParams{
			SubsidyFactor: cfg.Subsidy.SubsidyFactor,
			EthPriceInOwl: cfg.Subsidy.EthPriceInOwl,
			GasPerTrade:   cfg.Subsidy.GasPerTrade,
		},
		Log:          log.Logger,
		SolveEndTime: clock.SolveEndTime,
	}

	reporter := health.NewReporter()
	reg := metrics.New()

	sched := &scheduler.Scheduler{
		Clock:  clock,
		Source: client,
		Driver: drv,
		Config: scheduler.Config{
			EarliestSolutionSubmitTime: cfg.Scheduler.EarliestSolutionSubmitTime,
			LatestSolutionSubmitTime:   cfg.Scheduler.LatestSolutionSubmitTime,
		},
		Log:          log.Logger,
		OnReady:      reporter.NotifyReady,
		PollInterval: cfg.Scheduler.PollInterval,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return streamEvents(gctx, client, evLog) })
	g.Go(func() error { return persistEventLog(gctx, evLog, cfg.Persist.EventLogPath, cfg.Persist.FlushInterval) })
	g.Go(func() error { return runHTTPServer(gctx, cfg.Monitoring.HealthAddr, reporter.Handler()) })
	g.Go(func() error { return runHTTPServer(gctx, cfg.Monitoring.MetricsAddr, reg.Handler()) })
	g.Go(func() error {
		if err := sched.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})

	err = g.Wait()
	if writeErr := evLog.WriteToFile(cfg.Persist.EventLogPath); writeErr != nil {
		log.Error("final event log flush failed", zap.Error(writeErr))
	}
	log.Info("driver stopped")
	return err
}

func applyFlagOverrides(cfg *config.Config) {
	if nodeURLFlag != "" {
		cfg.Exchange.NodeURL = nodeURLFlag
	}
	if privateKeyFlag != "" {
		cfg.Exchange.PrivateKey = privateKeyFlag
	}
	if contractAddr != "" {
		cfg.Exchange.ContractAddr = contractAddr
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
}

// backfillEvents catches log up to the chain tip before the scheduler starts, so the
// first solved batch never sees a partially-replayed orderbook. It returns the
// current auction batch and the tip block it backfilled to, for logRecoveredState.
func backfillEvents(ctx context.Context, client *exchange.RPCClient, log *eventlog.Log, pageSize int, l *logger.Logger) (models.BatchId, uint64, error) {
	from := uint64(0)
	if last, ok := log.LastHandledBlock(); ok {
		from = last + 1
	}

	currentBatch, err := client.CurrentAuctionIndex(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("current auction index: %w", err)
	}
	tip, err := client.LastBlockOfBatch(ctx, currentBatch)
	if err != nil {
		return 0, 0, fmt.Errorf("last block of batch: %w", err)
	}

	if from <= tip {
		batches, err := client.PastEvents(ctx, from, tip, pageSize)
		if err != nil {
			return 0, 0, fmt.Errorf("backfill events: %w", err)
		}
		for _, b := range batches {
			log.Append(b.Event, b.BlockNumber, b.BlockHash, b.LogIndex, b.Timestamp)
		}
		l.Info(fmt.Sprintf("backfilled %d events from block %d to %d", len(batches), from, tip))
	}

	return currentBatch, tip, nil
}

// logRecoveredState logs the orderbook reconstructed from the just-backfilled event
// log as observed at the last block the log holds (which can be below the tip), as a
// startup sanity check that the persisted log survived the restart intact.
func logRecoveredState(reader *orderbook.Reader, log *eventlog.Log, currentBatch models.BatchId, tip uint64, l *logger.Logger) {
	last, ok := log.LastHandledBlock()
	if !ok {
		return
	}
	accounts, orders, err := reader.AuctionStateAtBlock(currentBatch, last, currentBatch)
	if err != nil {
		l.Warn(fmt.Sprintf("recovered state check at block %d failed: %v", last, err))
		return
	}
	l.Info(fmt.Sprintf("recovered state at block %d (tip %d): %d balances, %d open orders", last, tip, len(accounts), len(orders)))
}

// streamEvents forwards newly streamed events into log as they arrive, after
// backfillEvents has already caught it up to the tip.
func streamEvents(ctx context.Context, client *exchange.RPCClient, log *eventlog.Log) error {
	stream, errs := client.StreamEvents(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if !ok {
				continue
			}
			return fmt.Errorf("event stream: %w", err)
		case b, ok := <-stream:
			if !ok {
				return nil
			}
			log.Append(b.Event, b.BlockNumber, b.BlockHash, b.LogIndex, b.Timestamp)
		}
	}
}

// persistEventLog flushes log to path on every tick until ctx is cancelled; the final
// flush on shutdown is done by run after the errgroup has finished.
func persistEventLog(ctx context.Context, log *eventlog.Log, path string, interval time.Duration) error {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := log.WriteToFile(path); err != nil {
				return fmt.Errorf("persist event log: %w", err)
			}
		}
	}
}

// runHTTPServer serves handler on addr until ctx is cancelled, then shuts down
// gracefully.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	}
}
