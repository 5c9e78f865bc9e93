package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BaSui01/researchflow/config"
	"github.com/BaSui01/researchflow/internal/server"
	"github.com/BaSui01/researchflow/internal/telemetry"
	"github.com/BaSui01/researchflow/research"
	"github.com/BaSui01/researchflow/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runFlags struct {
	overrides research.RunConfig
	strict    bool
	jsonOut   bool
	quiet     bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [flags] <question>",
		Short: "Research a question and print a cited answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			if f.strict {
				cfg.Research.BranchPolicy = string(workflow.BranchPolicyStrict)
			}
			return runResearch(cmd.Context(), cfg, strings.Join(args, " "), f, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	fl := cmd.Flags()
	fl.IntVarP(&f.overrides.NumberOfInitialQueries, "initial-queries", "n", 0, "Number of initial search queries")
	fl.IntVarP(&f.overrides.MaxResearchLoops, "max-loops", "l", 0, "Maximum research loops")
	fl.StringVar(&f.overrides.QueryGeneratorModel, "query-model", "", "Model that writes search queries")
	fl.StringVar(&f.overrides.ReflectionModel, "reflection-model", "", "Model that reflects on gathered sources")
	fl.StringVar(&f.overrides.AnswerModel, "answer-model", "", "Model that writes the final answer")
	fl.BoolVar(&f.strict, "strict", false, "Fail the run when any search fails")
	fl.BoolVar(&f.jsonOut, "json", false, "Print the result as JSON")
	fl.BoolVarP(&f.quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

// loadConfig loads and validates the configuration. Without a path only
// defaults and the environment apply.
func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path == "" {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.NewLoader().WithConfigPath(path).Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runResearch(ctx context.Context, cfg *config.Config, question string, f runFlags, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()
	logger.Debug("starting researchflow",
		zap.String("version", Version),
		zap.String("git_commit", GitCommit),
	)

	otel, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("telemetry unavailable", zap.Error(err))
	}
	defer shutdownTelemetry(otel, logger)

	a, err := buildApp(cfg, logger, otel.Tracer())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if cfg.Metrics.Enabled {
		sc := server.DefaultConfig()
		sc.Addr = cfg.Metrics.Addr
		srv := server.NewManager(server.NewMetricsHandler(a.registry), sc, logger)
		if err := srv.Start(); err != nil {
			return err
		}
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	emitters := []workflow.StreamEmitter{a.collector.StreamEmitter(research.GraphName)}
	if !f.quiet {
		emitters = append(emitters, progressEmitter(stderr))
	}
	ctx = workflow.WithStreamEmitter(ctx, workflow.MultiEmitter(emitters...))

	res, err := a.agent.Run(ctx, question, f.overrides)
	a.recordCacheStats(logger)
	if err != nil {
		return err
	}

	for _, bf := range res.BranchFailures {
		logger.Warn("search dropped", zap.String("query", bf.Label), zap.Error(bf.Err))
	}
	if f.jsonOut {
		return writeJSON(stdout, res)
	}
	_, err = fmt.Fprint(stdout, renderMarkdown(stdout, answerMarkdown(res)))
	return err
}

func shutdownTelemetry(p *telemetry.Providers, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
}
