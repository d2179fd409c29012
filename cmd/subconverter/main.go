// Command subconverter serves the subscription-conversion HTTP API, or, with
// -g, runs once in batch mode against generate.ini and exits.
//
// Startup sequence:
//  1. Load configuration (pref.yml/pref.ini, or defaults).
//  2. Initialise logger and metrics.
//  3. Construct the fetcher, scripting engine, and template engine.
//  4. Start the worker pool.
//  5. Either run generate.ini batch mode, or start the HTTP server.
//  6. Block until OS signals SIGINT or SIGTERM, then perform a clean shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subconverter-go/subconverter/config"
	"github.com/subconverter-go/subconverter/fetcher"
	"github.com/subconverter-go/subconverter/logger"
	"github.com/subconverter-go/subconverter/metrics"
	"github.com/subconverter-go/subconverter/script"
	"github.com/subconverter-go/subconverter/server"
	"github.com/subconverter-go/subconverter/template"
	"github.com/subconverter-go/subconverter/worker"
)

func main() {
	configFile := flag.String("config", "", "Path to pref.yml/pref.ini (optional; uses defaults if omitted)")
	generate := flag.Bool("g", false, "Batch mode: read generate.ini, write each artifact, then exit")
	artifact := flag.String("p", "", "With -g, regenerate only this artifact section")
	generateFile := flag.String("generate-file", "generate.ini", "Path to the batch-mode artifact list")
	flag.Parse()

	log := logger.New(logger.LevelInfo)
	log.Info("subconverter starting up")

	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			log.Errorf("failed to load config from %q: %v", *configFile, err)
			os.Exit(1)
		}
		log.Infof("configuration loaded from %q", *configFile)
	} else {
		cfg = config.DefaultConfig()
		log.Info("using default configuration")
	}
	store := config.NewStore(cfg)

	f, err := fetcher.New(cfg.OutboundProxy, cfg.RequestTimeout, cfg.CacheDir, cfg.UserAgent, log)
	if err != nil {
		log.Errorf("failed to construct fetcher: %v", err)
		os.Exit(1)
	}

	var se *script.Engine
	if cfg.EnableScripting {
		se = script.New()
	}
	te := template.New(cfg.TemplateIncludeRoot)
	m := metrics.NewMetrics()

	workerCount := cfg.MaxConcurrentThreads
	if workerCount < 1 {
		workerCount = 1
	}
	wp := worker.NewWorkerPool(workerCount)
	wp.Start()
	log.Infof("worker pool started with %d workers", workerCount)

	srv := server.New(store, f, se, te, m, wp, log)

	if *generate {
		if err := runGenerate(srv, *generateFile, *artifact, log); err != nil {
			log.Errorf("batch generation failed: %v", err)
			wp.Stop()
			os.Exit(1)
		}
		wp.Stop()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		fmt.Println()
		log.Infof("received signal %s; shutting down", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Errorf("server error: %v", err)
		}
	}

	wp.Stop()
	total, success, failed := m.Snapshot()
	log.Infof("final metrics - total: %d | success: %d | failed: %d | rps: %.1f",
		total, success, failed, m.RequestsPerSecond())
	log.Info("subconverter shut down cleanly")
}
