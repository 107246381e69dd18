package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittofiles/internal/logger"
	"github.com/marmos91/dittofiles/pkg/config"
	"github.com/marmos91/dittofiles/pkg/gc"
	"github.com/marmos91/dittofiles/pkg/server"
	"github.com/marmos91/dittofiles/pkg/service"
)

const usage = `DittoFiles - file upload service

Usage:
  dittofiles <command> [flags]

Commands:
  init    Write a sample configuration file
  start   Start the server
  gc      Run one garbage collection pass and exit

Run "dittofiles <command> -h" for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "init":
		err = runInit(os.Args[2:])
	case "start":
		err = runStart(os.Args[2:])
	case "gc":
		err = runGC(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "", "Path of the config file to write (default: "+config.GetDefaultConfigPath()+")")
	force := fs.Bool("force", false, "Overwrite an existing config file")
	_ = fs.Parse(args)

	path := *configPath
	if path == "" {
		written, err := config.InitConfig(*force)
		if err != nil {
			return err
		}
		path = written
	} else if err := config.InitConfigToPath(path, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration file created at: %s\n", path)
	fmt.Println("Edit it, then run: dittofiles start")
	return nil
}

func runStart(args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logCloser, err := configureLogging(cfg.Logging)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("DittoFiles starting")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		logger.Info("Metrics enabled on port %d", metricsResult.Server.Port())
	}

	objects, err := config.CreateObjectStore(ctx, &cfg.Content, metricsResult.S3)
	if err != nil {
		return fmt.Errorf("failed to create content store: %w", err)
	}

	meta, err := config.CreateMetadataStore(ctx, &cfg.Metadata)
	if err != nil {
		_ = objects.Close()
		return fmt.Errorf("failed to create metadata store: %w", err)
	}

	svc := service.New(meta, objects, cfg.ServiceConfig(), metricsResult.Service)

	srv := server.New(svc, cfg.Server.ShutdownTimeout)
	srv.AddCloser(objects)
	srv.AddCloser(meta)
	srv.SetCollector(gc.NewCollector(meta, objects, cfg.CollectorConfig(), metricsResult.GC))
	if metricsResult.Server != nil {
		srv.SetMetricsServer(metricsResult.Server)
	}

	closeStores := func() {
		_ = meta.Close()
		_ = objects.Close()
	}

	adapters, err := config.CreateAdapters(cfg, metricsResult.HTTP)
	if err != nil {
		closeStores()
		return err
	}
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			closeStores()
			return fmt.Errorf("failed to register %s adapter: %w", a.Protocol(), err)
		}
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("Server stopped gracefully")
	return nil
}

func runGC(args []string) error {
	fs := flag.NewFlagSet("gc", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	dryRun := fs.Bool("dry-run", false, "Log what would be deleted without deleting")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logCloser, err := configureLogging(cfg.Logging)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer func() { _ = logCloser.Close() }()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	objects, err := config.CreateObjectStore(ctx, &cfg.Content, nil)
	if err != nil {
		return fmt.Errorf("failed to create content store: %w", err)
	}
	defer func() { _ = objects.Close() }()

	meta, err := config.CreateMetadataStore(ctx, &cfg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to create metadata store: %w", err)
	}
	defer func() { _ = meta.Close() }()

	gcConfig := cfg.CollectorConfig()
	gcConfig.DryRun = gcConfig.DryRun || *dryRun

	stats, err := gc.NewCollector(meta, objects, gcConfig, nil).RunNow(ctx)
	if err != nil {
		return fmt.Errorf("garbage collection failed: %w", err)
	}

	fmt.Println(stats.Summary())
	return nil
}

// configureLogging applies the logging section. The returned closer is
// non-nil when logs go to a file.
func configureLogging(cfg config.LoggingConfig) (io.Closer, error) {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)

	switch cfg.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
		return nil, nil
	case "stderr":
		logger.SetOutput(os.Stderr)
		return nil, nil
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(f)
		return f, nil
	}
}
