// Command detectd serves the object detection HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/go-detect/annotator"
	"github.com/nvr-ai/go-detect/api"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/detectors"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/pipeline"
	"github.com/nvr-ai/go-detect/tracing"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.Log.Level)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing is optional.
	tp, err := tracing.InitTracer(ctx, cfg.Tracing.Endpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else if tp != nil {
		defer tp.Shutdown(context.Background())
	}

	catalog := models.MiningClasses
	detector, err := detectors.NewONNXDetector(cfg.Detector(catalog.Len()), log)
	fatalOnErr(err, "load detector")
	defer inference.DestroyEnvironment()
	defer detector.Close()

	if cfg.Model.WarmUpRuns > 0 {
		if err := detector.WarmUp(cfg.Model.WarmUpRuns); err != nil {
			log.Warn("detector warmup failed", zap.Error(err))
		}
	}

	a := annotator.New(detector, catalog, cfg.Annotate, log)
	p := pipeline.New(cfg.Pipeline(), catalog, a, log)
	h := api.NewHandler(p, cfg.API(), log)

	// Request contexts are detached from the signal so in-flight requests
	// get the shutdown grace period.
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(h, log),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("detectd listening", zap.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	if err := shutdown(srv, h, cancelRequests, cfg.Server.ShutdownGrace, log); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	log.Info("detectd stopped")
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
