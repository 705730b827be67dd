// barlink-feed publishes host telemetry snapshots to a shared-memory status
// channel. It is the producer side a window manager would embed; running it
// standalone gives every attached bar live CPU, memory, and battery data.
package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/barkit/barlink/internal/config"
	"github.com/barkit/barlink/internal/logging"
	"github.com/barkit/barlink/internal/monitoring"
	"github.com/barkit/barlink/internal/telemetry"
	"github.com/barkit/barlink/shmring"
	"github.com/barkit/barlink/snapshot"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (otherwise BARLINK_* env)")
	metricsAddr := flag.String("metrics", "", "Prometheus listen address (empty disables)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
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

	if err := run(cfg, *metricsAddr, log); err != nil {
		log.Fatal("feed failed", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func run(cfg *config.Config, metricsAddr string, log *logging.Logger) error {
	ringCfg, err := cfg.Channel.RingConfig()
	if err != nil {
		return err
	}

	name := cfg.Channel.SegmentName()
	producer, err := shmring.NewProducer(name, ringCfg)
	if err != nil {
		return err
	}
	defer producer.Close()
	log.Info("channel created",
		zap.String("segment", name),
		zap.String("wake", cfg.Channel.Wake),
		zap.Uint32("slots", ringCfg.SlotCount))

	metrics := monitoring.NewMetrics()
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, log)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Drain bar commands in the background. A standalone feed has no window
	// manager behind it, so commands are only logged.
	stopCmds := make(chan struct{})
	cmdsDone := make(chan struct{})
	go drainCommands(producer, metrics, log, stopCmds, cmdsDone)

	sampler := telemetry.NewSampler(cfg.Telemetry.Battery, log.Named("telemetry"))
	limiter := rate.NewLimiter(rate.Limit(cfg.Telemetry.MaxPublishRate), 1)
	ticker := time.NewTicker(cfg.Telemetry.Interval)
	defer ticker.Stop()

	var snap snapshot.Snapshot
	snap.Monitor.Num = int32(cfg.Channel.Monitor)

	for {
		select {
		case <-ticker.C:
			if !limiter.Allow() {
				continue
			}
			snap.Timestamp = snapshot.NowMillis()
			snap.System = sampler.Sample()

			start := time.Now()
			err := producer.Publish(&snap)
			metrics.RecordPublish(time.Since(start), err)
			if err != nil {
				log.Error("publish failed", zap.Error(err))
				continue
			}
			log.Debug("published",
				zap.Uint64("seq", producer.Published()),
				zap.Float32("cpu", snap.System.CPUAverage))
		case sig := <-sigCh:
			log.Info("shutting down", zap.String("signal", sig.String()))
			close(stopCmds)
			<-cmdsDone
			return nil
		}
	}
}

// drainCommands logs every command bars send on the reverse channel.
func drainCommands(p *shmring.Producer, metrics *monitoring.Metrics, log *logging.Logger, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		cmd, err := p.WaitCommand(time.Second)
		if err != nil {
			continue
		}
		metrics.CommandsReceived.Inc()
		log.Info("bar command",
			zap.Stringer("kind", cmd.Kind),
			zap.Uint32("arg", cmd.Arg),
			zap.Int32("monitor", cmd.Monitor))
	}
}

func serveMetrics(addr string, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics listening", zap.String("addr", addr))
	srv := &http.Server{Addr: addr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil {
		log.Warn("metrics server stopped", zap.Error(err))
	}
}
