package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"loanquery/internal/config"
	"loanquery/internal/logger"
	"loanquery/internal/service"
	"loanquery/internal/session"
	"loanquery/internal/tui"
	"loanquery/internal/web"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, addr string
	var useTUI bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/loanquery/config.yaml)")
	flag.StringVar(&addr, "addr", "", "Listen address for the dashboard (overrides server.addr)")
	flag.BoolVar(&useTUI, "tui", false, "Chat in the terminal instead of serving the dashboard")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logFile := cfg.Log.File
	if useTUI && logFile == "" {
		logFile = "loanquery.log"
	}
	lg, closer, err := logger.Configure(cfg.Log.Level, logFile)
	if err != nil {
		log.Fatalf("failed to configure logging: %v", err)
	}
	defer closer.Close()

	svc, err := service.FromConfig(cfg, lg)
	if err != nil {
		log.Fatalf("failed to assemble service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.Open(ctx); err != nil {
		if !service.IsSetupError(err) {
			log.Fatalf("failed to open index: %v", err)
		}
		lg.Warn("index not available, run loanquery-setup", "error", err)
	}

	sessions := session.NewStore(time.Duration(cfg.Session.TTLMinutes)*time.Minute, cfg.Generator.UseMockResponses)

	if useTUI {
		m := tui.New(svc, sessions.New(), tui.Options{})
		if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
			log.Fatal(err)
		}
		return
	}

	logger.Screen(fmt.Sprintf("Loan dataset assistant on http://%s", cfg.Server.Addr), logger.Success)
	if err := web.NewServer(svc, sessions, lg).Run(ctx, cfg.Server.Addr); err != nil {
		log.Fatal(err)
	}
}
