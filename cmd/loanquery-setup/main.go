package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"loanquery/internal/config"
	"loanquery/internal/logger"
	"loanquery/internal/service"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var force, clean bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/loanquery/config.yaml)")
	flag.BoolVar(&force, "force", false, "Rebuild the index even if it matches the dataset")
	flag.BoolVar(&clean, "clean", false, "Remove the index and exit")
	flag.Parse()

	if err := run(cfgPath, force, clean); err != nil {
		logger.Screen("Setup failed: "+err.Error(), logger.Failure)
		os.Exit(1)
	}
}

func run(cfgPath string, force, clean bool) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, closer, err := logger.Configure(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer closer.Close()

	svc, err := service.FromConfig(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if clean {
		if err := svc.ClearIndex(ctx); err != nil {
			return err
		}
		logger.Screen("Removed the index at "+cfg.Index.Dir, logger.Success)
		return nil
	}

	logger.Screen(fmt.Sprintf("Indexing %s into %s (%s embedder, %s store)",
		cfg.Dataset.Path, cfg.Index.Dir, cfg.Embedder.Type, cfg.VectorStore.Type), logger.Info)
	rep, err := svc.BuildIndex(ctx, service.BuildOptions{Force: force})
	if err != nil {
		return err
	}
	for _, f := range rep.Fills {
		logger.Screen(fmt.Sprintf("  filled %d missing %s with %s", f.Missing, f.Column, f.Value), logger.Notice)
	}
	if rep.Skipped {
		logger.Screen(fmt.Sprintf("Index is up to date (%d rows). Use -force to rebuild.", rep.Rows), logger.Success)
		return nil
	}
	logger.Screen(fmt.Sprintf("Indexed %d rows, %d dimensions in %s", rep.Rows, rep.Dimension, rep.Duration.Round(time.Millisecond)), logger.Success)
	return nil
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}
