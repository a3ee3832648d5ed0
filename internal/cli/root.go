// Package cli provides the churn command line.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refset/telco-churn-scoring/internal/config"
	"github.com/refset/telco-churn-scoring/internal/kafka"
	"github.com/refset/telco-churn-scoring/internal/logging"
	"github.com/refset/telco-churn-scoring/internal/metrics"
	"github.com/refset/telco-churn-scoring/internal/pipeline"
	"github.com/refset/telco-churn-scoring/internal/storage"
	"github.com/refset/telco-churn-scoring/internal/warehouse"
)

const pushTimeout = 10 * time.Second

// Version is stamped at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

// app carries what every command needs once flags are parsed.
type app struct {
	cfgFile string
	verbose bool

	cfg     *config.Config
	log     *zap.Logger
	store   storage.Store
	metrics *metrics.Metrics
	closers []func()
}

// Execute runs the command line against ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "churn",
		Short: "Score telecom customers for churn risk",
		Long: `churn turns a raw telco customer extract into a churn model and a
scoring table, and serves online predictions.

Examples:
  churn ingest
  churn run
  churn serve --config config.yaml`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) { a.teardown() },
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./config.yaml when present)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newIngestCmd(a),
		newCleanCmd(a),
		newFeaturesCmd(a),
		newTrainCmd(a),
		newScoreCmd(a),
		newRunCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.verbose {
		cfg.Logging.Level = "debug"
	}
	log, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	a.cfg, a.log, a.metrics = cfg, log, metrics.New()
	a.closers = append(a.closers, closeLog)

	switch cfg.Storage.Backend {
	case "postgres":
		s, err := storage.OpenPostgres(cmd.Context(), cfg.Storage.DatabaseURL)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, s.Close)
	default:
		a.store = storage.NewFileStore(cfg.Storage.Dir)
	}
	log.Debug("configured", zap.String("storage", cfg.Storage.Backend))
	return nil
}

func (a *app) teardown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// producer returns a Kafka producer when brokers are configured.
func (a *app) producer() *kafka.Producer {
	if len(a.cfg.Kafka.Brokers) == 0 {
		return nil
	}
	p := kafka.NewProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.ScoresTopic, a.cfg.Kafka.PredictionsTopic, a.log)
	a.closers = append(a.closers, func() {
		if err := p.Close(); err != nil {
			a.log.Warn("close kafka producer", zap.Error(err))
		}
	})
	return p
}

// pipeline wires the configured sinks into a pipeline.
func (a *app) pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	var opts []pipeline.Option
	if p := a.producer(); p != nil {
		opts = append(opts, pipeline.WithPublisher(p))
	}
	if url := a.cfg.Warehouse.DatabaseURL; url != "" {
		w, err := warehouse.Open(ctx, url, a.log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, w.Close)
		opts = append(opts, pipeline.WithWarehouse(w))
	}
	if url := a.cfg.Metrics.PushgatewayURL; url != "" {
		a.closers = append(a.closers, func() { a.pushMetrics(url) })
	}
	opts = append(opts, pipeline.WithMetrics(a.metrics))
	return pipeline.New(a.cfg, a.store, a.log, opts...), nil
}

// pushMetrics reports a finished batch command. A failed push is only logged.
func (a *app) pushMetrics(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
	defer cancel()
	if err := a.metrics.Push(ctx, url, a.cfg.Metrics.Job); err != nil {
		a.log.Warn("push batch metrics", zap.Error(err))
		return
	}
	a.log.Debug("pushed batch metrics", zap.String("job", a.cfg.Metrics.Job))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skips config, logging and storage setup.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		PersistentPostRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "churn version %s\n", Version)
		},
	}
}
