package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mirrorlake/assetsync/pkg/config"
	"github.com/mirrorlake/assetsync/pkg/export"
	"github.com/mirrorlake/assetsync/pkg/ingest"
	"github.com/mirrorlake/assetsync/pkg/limiter"
	"github.com/mirrorlake/assetsync/pkg/logger"
	"github.com/mirrorlake/assetsync/pkg/observability"
	"github.com/mirrorlake/assetsync/pkg/remote"
	"github.com/mirrorlake/assetsync/pkg/retry"
	"github.com/mirrorlake/assetsync/pkg/store"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "assetsync",
		Short: "assetsync - analytics asset export and synchronization",
		Long: `assetsync exports the assets of an analytics platform account (dashboards,
analyses, datasets, datasources, folders, users, groups) into an object store,
refreshing only what changed and batching shared collections.`,
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("assetsync v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "types",
		Short: "List supported asset types",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Supported asset types:")
			for _, t := range export.Types() {
				fmt.Printf("  - %s\n", t)
			}
		},
	})

	root.AddCommand(newExportCmd())
	root.AddCommand(newIngestionsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newExportCmd() *cobra.Command {
	var configFile, name, metricsAddr string
	var types []string
	var forceRefresh, definitions, permissions, tags bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export account assets to the object store",
		Long: `Export account assets to the object store.

By default every detail category (definitions, permissions, tags) is
refreshed. Passing any of --definitions, --permissions or --tags restricts the
run to the named categories; definition describes are skipped entirely on
permissions/tags-only runs.

Example:
  assetsync export --config assetsync.yaml --types dashboard,dataset --permissions --tags`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts *export.RefreshOptions
			if definitions || permissions || tags {
				opts = &export.RefreshOptions{
					Definitions: definitions,
					Permissions: permissions,
					Tags:        tags,
				}
			}
			return runExport(configFile, name, metricsAddr, types, timeout, export.ProcessContext{
				ForceRefresh:   forceRefresh,
				RefreshOptions: opts,
			})
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&name, "name", "assetsync", "Pipeline instance name")
	cmd.Flags().StringSliceVar(&types, "types", nil, "Asset types to export (default: all registered)")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "Re-fetch every asset regardless of stored timestamps")
	cmd.Flags().BoolVar(&definitions, "definitions", false, "Refresh definitions only (combinable with --permissions/--tags)")
	cmd.Flags().BoolVar(&permissions, "permissions", false, "Refresh permissions only (combinable with --definitions/--tags)")
	cmd.Flags().BoolVar(&tags, "tags", false, "Refresh tags only (combinable with --definitions/--permissions)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to serve Prometheus metrics on (e.g. :9090)")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "Run timeout")

	return cmd
}

func runExport(configFile, name, metricsAddr string, typeNames []string, timeout time.Duration, pctx export.ProcessContext) error {
	cfg, err := setup(configFile, name)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() { _ = observability.Shutdown(context.Background()) }()

	if metricsAddr != "" && cfg.Observability.EnableMetrics {
		go serveMetrics(metricsAddr)
	}

	api, err := remote.NewHTTPAPI(&remote.HTTPConfig{
		BaseURL:        cfg.Remote.BaseURL,
		Token:          cfg.Remote.Token,
		RequestTimeout: cfg.Remote.RequestTimeout,
		EnableHTTP2:    cfg.Remote.EnableHTTP2,
	})
	if err != nil {
		return err
	}

	objStore, err := store.NewS3Store(ctx, store.S3Config{
		Region:         cfg.Storage.Region,
		UploadPartSize: cfg.Storage.UploadPartSize,
		MaxConcurrency: cfg.Concurrency.StoreWrites,
		Compress:       cfg.Storage.Compress,
	})
	if err != nil {
		return err
	}

	types, err := resolveTypes(typeNames)
	if err != nil {
		return err
	}

	coordinator := export.NewCoordinator(cfg, api, objStore)
	result, runErr := coordinator.Run(ctx, types, pctx)
	if result != nil {
		printJSON(result)
	}
	if runErr != nil {
		return runErr
	}
	if result != nil && len(result.TypeErrors) > 0 {
		return fmt.Errorf("%d asset type(s) failed to export", len(result.TypeErrors))
	}
	return nil
}

func newIngestionsCmd() *cobra.Command {
	var configFile, name string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "ingestions",
		Short: "Report refresh history of incremental datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngestions(configFile, name, timeout)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&name, "name", "assetsync", "Pipeline instance name")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "Run timeout")

	return cmd
}

func runIngestions(configFile, name string, timeout time.Duration) error {
	cfg, err := setup(configFile, name)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	api, err := remote.NewHTTPAPI(&remote.HTTPConfig{
		BaseURL:        cfg.Remote.BaseURL,
		Token:          cfg.Remote.Token,
		RequestTimeout: cfg.Remote.RequestTimeout,
		EnableHTTP2:    cfg.Remote.EnableHTTP2,
	})
	if err != nil {
		return err
	}

	raw, _, err := export.Paginate(ctx, remote.AssetTypeDataset, cfg.Concurrency.ProgressLogInterval, func(nextToken string) (*remote.ListPage, error) {
		return api.List(ctx, remote.AssetTypeDataset, nextToken, cfg.Concurrency.PageSize)
	})
	if err != nil {
		return err
	}

	datasets, err := export.MapSummaries(remote.AssetTypeDataset, raw)
	if err != nil {
		return err
	}

	processor := ingest.NewProcessor(api, limiter.New(cfg.Concurrency.AuxOperations), retry.DefaultPolicy())
	summary, err := processor.Collect(ctx, datasets)
	if err != nil {
		return err
	}

	printJSON(summary)
	return nil
}

// resolveTypes maps type names to registered asset types. Empty input selects
// every registered type.
func resolveTypes(names []string) ([]remote.AssetType, error) {
	if len(names) == 0 {
		return nil, nil
	}
	types := make([]remote.AssetType, 0, len(names))
	for _, n := range names {
		t := remote.AssetType(n)
		if !export.Has(t) {
			return nil, fmt.Errorf("unknown asset type %q", n)
		}
		types = append(types, t)
	}
	return types, nil
}

// setup loads configuration and initializes logging and tracing
func setup(configFile, name string) (*config.PipelineConfig, error) {
	cfg, err := config.FromEnv(name, configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: "json",
	}); err != nil {
		return nil, err
	}

	if err := observability.Init(cfg.Observability.EnableTracing); err != nil {
		return nil, err
	}

	return cfg, nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", zap.Error(err))
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		logger.Error("failed to render output", zap.Error(err))
		return
	}
	fmt.Println(string(data))
}
