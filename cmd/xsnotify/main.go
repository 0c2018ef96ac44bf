package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"xsnotify/internal/app"
	"xsnotify/internal/bridge"
	"xsnotify/internal/config"
	"xsnotify/internal/history"
	"xsnotify/internal/overlay"
	"xsnotify/internal/runtime/supervisor"
	"xsnotify/internal/source"
	logx "xsnotify/pkg/logx"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		cfgPath      string
		wsURL        string
		pollInterval float64
		sourcePath   string
		logLevel     string
	)
	flag.StringVar(&cfgPath, "config", app.ConfigPath(), "path to config file (json or yaml)")
	flag.StringVar(&wsURL, "ws-url", "", "override XSOverlay websocket URL")
	flag.Float64Var(&pollInterval, "poll-interval", 0, "override polling interval in seconds")
	flag.StringVar(&sourcePath, "source", "-", "notification record stream: '-' for stdin, or a FIFO/file path")
	flag.StringVar(&logLevel, "log-level", "", "override log level (trace/debug/info/warn/error)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, log := logx.New(logx.Config{Level: logLevel, Console: true})
	defer svc.Close()

	store := config.NewStore(cfgPath, log)
	cfg := store.Load()

	// The config's log section drives the sinks; an explicit -log-level flag
	// wins over the configured level.
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	svc.Apply(logx.Config{
		Level:   level,
		Console: true,
		File:    logx.FileConfig{Enabled: cfg.Log.File != "", Path: cfg.Log.File},
	})

	src, cleanup, err := openSource(sourcePath)
	if err != nil {
		log.Error("cannot open notification source", logx.String("source", sourcePath), logx.Err(err))
		return 1
	}
	defer cleanup()

	hist, err := history.Open(cfg.History, log)
	if err != nil {
		log.Warn("history store unavailable, continuing without", logx.Err(err))
	}
	if hist != nil {
		defer hist.Close()
	}

	watcher := config.NewWatcher(cfgPath, log)
	sup := supervisor.New(ctx, log)
	sup.Go("config-watch", watcher.Run)

	br := bridge.New(bridge.Options{
		Store:                store,
		Source:               src,
		Sender:               overlay.NewSender(log),
		History:              hist,
		Log:                  log,
		LogSvc:               svc,
		Changes:              watcher.Changes(),
		EndpointOverride:     wsURL,
		PollIntervalOverride: pollInterval,
	})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	runErr := br.Run(sup.Context())
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	sup.Cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = sup.Wait(waitCtx)
	waitCancel()

	if runErr != nil {
		log.Error("bridge stopped", logx.Err(runErr))
		return 1
	}
	log.Info("bridge stopped")
	return 0
}

func openSource(path string) (source.Source, func(), error) {
	if path == "-" || path == "" {
		return source.NewPipe(os.Stdin), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return source.NewPipe(f), func() { _ = f.Close() }, nil
}
