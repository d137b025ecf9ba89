// Command authflow runs the insurer authorization batch: it reads the
// flattened intake file, evaluates the configured rule phases per
// patient, drives each referral reference through the insurer portal,
// and writes the outcome report.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/healthforce/authflow/document"
	"github.com/healthforce/authflow/intake"
	"github.com/healthforce/authflow/internal/config"
	"github.com/healthforce/authflow/internal/logger"
	"github.com/healthforce/authflow/portal"
	"github.com/healthforce/authflow/report"
	"github.com/healthforce/authflow/rules"
	"github.com/healthforce/authflow/status"
	"github.com/healthforce/authflow/workflow"

	_ "github.com/lib/pq"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:   "authflow",
		Short: "Insurer portal authorization batch runner",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "authflow.yaml", "path to the configuration file")

	root.AddCommand(runCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the intake file against the insurer portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch()
		},
	}
}

func runBatch() error {
	start := time.Now()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	engine, _, cleanup, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := engine.RequirePhases(workflow.RequiredPhases()...); err != nil {
		return err
	}

	resolver, err := status.NewResolver(cfg.Markers())
	if err != nil {
		return err
	}

	patients, err := intake.ParseFile(cfg.Intake.File, cfg.Intake.Mapping)
	if err != nil {
		return err
	}
	log.Info().Int("patients", len(patients)).Msg("intake parsed")

	client, err := portal.NewClient(portal.Config{
		BaseURL:           cfg.Portal.BaseURL,
		Username:          cfg.Portal.Username,
		Password:          cfg.Portal.Password,
		RequestsPerSecond: cfg.Portal.RequestsPerSecond,
	}, log)
	if err != nil {
		return err
	}

	fetcher := document.NewFetcher(client, cfg.Output.Dir)
	wf := workflow.NewWorkflow(engine, client, resolver, fetcher, document.Validator{}, log)
	proc := workflow.NewProcessor(wf, client, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := proc.Run(ctx, patients)
	if err != nil {
		return err
	}

	reporter := report.NewCSVReporter(filepath.Join(cfg.Output.Dir, cfg.Output.ReportFile))
	if err := reporter.Deliver(ctx, outcome); err != nil {
		return err
	}

	log.Info().Dur("elapsed", time.Since(start)).Msg("batch complete")
	return nil
}

// buildEngine loads the rule set from the configured source and
// compiles it. The returned cleanup closes the database handle when the
// postgres store is in use.
func buildEngine(cfg *config.Config, log zerolog.Logger) (*rules.Engine, *rules.Set, func(), error) {
	cleanup := func() {}

	var store rules.Store
	switch cfg.Rules.Source {
	case config.RulesSourcePostgres:
		db, err := sql.Open("postgres", cfg.Rules.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open rules database: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("failed to ping rules database: %w", err)
		}
		store = rules.NewPostgresStore(db)
		cleanup = func() { db.Close() }
	default:
		store = rules.NewFileStore(cfg.Rules.File)
	}

	set, err := store.LoadRuleSet()
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	engine, err := rules.NewEngine(set, workflow.FactFields(), rules.WithLogger(log))
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	return engine, set, cleanup, nil
}
