// ============================================================================
// BuildTrace CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Provides user-friendly command line interface based on Cobra framework
//
// Command Structure:
//   buildtrace                     # Root command
//   ├── serve                      # Start the HTTP reporting service
//   ├── submit                     # Ingest snapshots from a JSON file
//   │   └── --file, -f            # Specify snapshot JSON file
//   ├── report <job_id>            # One-shot change report to stdout
//   ├── simulate                   # Generate a synthetic job sequence
//   ├── backfill                   # Recompute warehouse rows for a range
//   ├── status                     # View store and warehouse status
//   └── --config, -c               # Config file (all commands)
//
// Configuration Management:
//   Uses YAML format config file (default: configs/default.yaml)
//   Configuration items include:
//   - server: HTTP listen address
//   - store: snapshot store backend (file or sqlite)
//   - warehouse: metrics sink (sqlite, journal, or none)
//   - resolver: predecessor resolution strategy
//
// ============================================================================

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ChuLiYu/buildtrace/internal/metrics"
	"github.com/ChuLiYu/buildtrace/internal/report"
	"github.com/ChuLiYu/buildtrace/internal/resolver"
	"github.com/ChuLiYu/buildtrace/internal/server"
	"github.com/ChuLiYu/buildtrace/internal/service"
	"github.com/ChuLiYu/buildtrace/internal/simulate"
	"github.com/ChuLiYu/buildtrace/internal/store"
	"github.com/ChuLiYu/buildtrace/internal/warehouse"
	"github.com/ChuLiYu/buildtrace/pkg/types"
)

// Config represents the complete system configuration structure
// Maps config file fields through YAML tags
type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Store struct {
		Driver string `yaml:"driver"` // file | sqlite
		Dir    string `yaml:"dir"`    // file driver: snapshot directory
		Path   string `yaml:"path"`   // sqlite driver: database file
	} `yaml:"store"`

	Warehouse struct {
		Sink        string `yaml:"sink"` // sqlite | journal | none
		Path        string `yaml:"path"`
		JournalPath string `yaml:"journal_path"`
	} `yaml:"warehouse"`

	Resolver struct {
		Strategy string `yaml:"strategy"` // latest | decrement
	} `yaml:"resolver"`
}

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "buildtrace",
		Short: "BuildTrace: snapshot diff and change metrics for sequential build jobs",
		Long: `BuildTrace tracks how build artifacts change between sequential jobs:
- Keyed fingerprint snapshots per job
- Added/removed/modified/unchanged classification with move detection
- Change metrics appended to a local analytics warehouse
- Prometheus metrics`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildSubmitCommand())
	rootCmd.AddCommand(buildReportCommand())
	rootCmd.AddCommand(buildSimulateCommand())
	rootCmd.AddCommand(buildBackfillCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

// ============================================================================
// serve
// ============================================================================

func buildServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the BuildTrace HTTP service",
		Long:  "Start the ingestion and reporting HTTP service with Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

func runServer(addrOverride string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}

	logger := slog.Default()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sink, err := openSink(cfg)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
	}

	collector := metrics.NewCollector()
	svc := service.New(st, resolver.ForName(cfg.Resolver.Strategy, st), report.NewBuilder(sink, logger), collector, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: server.New(svc, logger).Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("buildtrace listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-sigChan:
	}

	logger.Info("received shutdown signal, stopping gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(ctx)
}

// ============================================================================
// submit
// ============================================================================

func buildSubmitCommand() *cobra.Command {
	var snapFile string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Ingest snapshots from a JSON file",
		Long:  "Read snapshot submissions from a JSON file and store them locally, same shape as POST /process",
		RunE: func(cmd *cobra.Command, args []string) error {
			if snapFile == "" {
				return fmt.Errorf("snapshot file is required (use --file or -f)")
			}
			return submitSnapshots(snapFile)
		},
	}

	cmd.Flags().StringVarP(&snapFile, "file", "f", "", "JSON file containing snapshot submissions")
	cmd.MarkFlagRequired("file")
	return cmd
}

func submitSnapshots(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snaps []types.Snapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		return fmt.Errorf("failed to parse snapshot file: %w", err)
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	svc, cleanup, err := buildLocalService(cfg, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	stored, err := svc.Ingest(context.Background(), snaps)
	if err != nil {
		return fmt.Errorf("failed to ingest snapshots: %w", err)
	}

	slog.Info("snapshots stored", "count", stored, "file", filePath)
	return nil
}

// ============================================================================
// report
// ============================================================================

func buildReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report <job_id>",
		Short: "Generate a change report for one job",
		Long:  "Diff the job against its resolved predecessor, write the metrics row, and print the report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var jobID int64
			if _, err := fmt.Sscanf(args[0], "%d", &jobID); err != nil || jobID <= 0 {
				return fmt.Errorf("job id must be a positive integer, got %q", args[0])
			}
			return printReport(types.JobID(jobID))
		},
	}
}

func printReport(jobID types.JobID) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sink, err := openSink(cfg)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
	}

	svc, cleanup, err := buildLocalService(cfg, sink)
	if err != nil {
		return err
	}
	defer cleanup()

	rep, err := svc.Report(context.Background(), jobID)
	if err != nil {
		return fmt.Errorf("failed to generate report for job %d: %w", jobID, err)
	}

	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// ============================================================================
// simulate
// ============================================================================

func buildSimulateCommand() *cobra.Command {
	var (
		jobs    int
		objects int
		seed    int64
		outFile string
		ingest  bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Generate a synthetic sequential job sequence",
		Long:  "Generate jobs with random adds, removals, and positional modifications; write them as a /process payload or ingest directly",
		RunE: func(cmd *cobra.Command, args []string) error {
			snaps := simulate.Generate(simulate.Options{
				Jobs:        jobs,
				BaseObjects: objects,
				Seed:        seed,
			})

			if ingest {
				cfg, err := loadConfig(configFile)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}

				svc, cleanup, err := buildLocalService(cfg, nil)
				if err != nil {
					return err
				}
				defer cleanup()

				stored, err := svc.Ingest(context.Background(), snaps)
				if err != nil {
					return fmt.Errorf("failed to ingest simulated jobs: %w", err)
				}
				slog.Info("simulated jobs stored", "count", stored)
				return nil
			}

			out, err := json.MarshalIndent(snaps, "", "  ")
			if err != nil {
				return err
			}
			if outFile == "" {
				fmt.Println(string(out))
				return nil
			}
			if err := os.WriteFile(outFile, out, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outFile, err)
			}
			slog.Info("simulation written", "file", outFile, "jobs", len(snaps))
			return nil
		},
	}

	cmd.Flags().IntVar(&jobs, "jobs", 5, "number of sequential jobs")
	cmd.Flags().IntVar(&objects, "objects", 50, "base object population")
	cmd.Flags().Int64Var(&seed, "seed", 0, "RNG seed (0 = time-based)")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&ingest, "ingest", false, "store generated jobs directly instead of printing")
	return cmd
}

// ============================================================================
// backfill
// ============================================================================

func buildBackfillCommand() *cobra.Command {
	var (
		from    int64
		to      int64
		workers int
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Recompute warehouse rows for a job id range",
		Long:  "Re-run the diff pipeline for every stored job in [from, to] and append fresh metrics rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			sink, err := openSink(cfg)
			if err != nil {
				return err
			}
			if sink == nil {
				return fmt.Errorf("backfill requires a warehouse sink (warehouse.sink is %q)", cfg.Warehouse.Sink)
			}
			defer sink.Close()

			svc, cleanup, err := buildLocalService(cfg, sink)
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := svc.Backfill(context.Background(), types.JobID(from), types.JobID(to), workers)
			if err != nil {
				return fmt.Errorf("backfill failed: %w", err)
			}

			slog.Info("backfill complete",
				"processed", result.Processed,
				"skipped", result.Skipped,
				"failed", len(result.Failed),
			)
			return nil
		},
	}

	cmd.Flags().Int64Var(&from, "from", 1, "first job id")
	cmd.Flags().Int64Var(&to, "to", 0, "last job id (required)")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent workers")
	cmd.MarkFlagRequired("to")
	return cmd
}

// ============================================================================
// status
// ============================================================================

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show store and warehouse status",
		Long:  "Display configuration, stored snapshot range, and warehouse sink status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
}

func showStatus() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("BuildTrace status")
	fmt.Println("=================")
	fmt.Printf("Config file:     %s\n", configFile)
	fmt.Printf("Store driver:    %s\n", cfg.Store.Driver)
	fmt.Printf("Warehouse sink:  %s\n", cfg.Warehouse.Sink)
	fmt.Printf("Resolver:        %s\n", resolverName(cfg))

	st, err := openStore(cfg)
	if err != nil {
		fmt.Printf("Store:           UNAVAILABLE (%v)\n", err)
		return nil
	}
	defer st.Close()

	ids, err := st.JobIDs(context.Background())
	if err != nil {
		fmt.Printf("Store:           UNAVAILABLE (%v)\n", err)
		return nil
	}

	if len(ids) == 0 {
		fmt.Println("Snapshots:       none stored")
		return nil
	}
	fmt.Printf("Snapshots:       %d stored (job %d .. %d)\n", len(ids), ids[0], ids[len(ids)-1])
	return nil
}

func resolverName(cfg *Config) string {
	if cfg.Resolver.Strategy == "latest" {
		return "latest"
	}
	return "decrement"
}

// ============================================================================
// helpers
// ============================================================================

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "file"
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "data/snapshots"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "data/snapshots.db"
	}
	if cfg.Warehouse.Sink == "" {
		cfg.Warehouse.Sink = "sqlite"
	}
	if cfg.Warehouse.Path == "" {
		cfg.Warehouse.Path = "data/warehouse.db"
	}
	if cfg.Warehouse.JournalPath == "" {
		cfg.Warehouse.JournalPath = "data/metrics.journal"
	}
}

func openStore(cfg *Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.OpenSQLite(cfg.Store.Path)
	case "file", "":
		return store.NewFileStore(cfg.Store.Dir)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func openSink(cfg *Config) (warehouse.Sink, error) {
	switch cfg.Warehouse.Sink {
	case "sqlite", "":
		return warehouse.OpenSQLiteSink(cfg.Warehouse.Path)
	case "journal":
		return warehouse.OpenJournal(cfg.Warehouse.JournalPath, warehouse.JournalOptions{})
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown warehouse sink %q", cfg.Warehouse.Sink)
	}
}

// buildLocalService wires a Service against the configured store for
// one-shot commands; no Prometheus collector is registered.
func buildLocalService(cfg *Config, sink warehouse.Sink) (*service.Service, func(), error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	svc := service.New(st, resolver.ForName(cfg.Resolver.Strategy, st), report.NewBuilder(sink, nil), nil, nil)
	return svc, func() { st.Close() }, nil
}
