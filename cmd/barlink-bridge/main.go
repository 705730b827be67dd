// barlink-bridge serves a shared-memory status channel to WebSocket
// clients: webview bars, browser dashboards, anything that cannot map the
// segment directly.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/barkit/barlink/internal/bridge"
	"github.com/barkit/barlink/internal/config"
	"github.com/barkit/barlink/internal/logging"
	"github.com/barkit/barlink/internal/monitoring"
	"github.com/barkit/barlink/shmring"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (otherwise BARLINK_* env)")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		os.Stderr.WriteString("logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	consumer, err := shmring.Attach(cfg.Channel.SegmentName(), cfg.Channel.AttachOptions())
	if err != nil {
		log.Fatal("attach failed", zap.String("segment", cfg.Channel.SegmentName()), zap.Error(err))
	}

	b := bridge.New(cfg.Bridge, consumer, log.Named("bridge"), monitoring.NewMetrics())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Run()
	}()

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
		if err := b.Close(); err != nil {
			log.Warn("shutdown error", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil {
			log.Fatal("bridge error", zap.Error(err))
		}
	}
}
