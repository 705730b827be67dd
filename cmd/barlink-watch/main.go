// barlink-watch attaches to a shared-memory status channel and prints each
// snapshot as it arrives. Snapshot data goes to stdout for piping into bar
// generators; logs go to stderr.
//
// With a -send-* flag it instead queues one command for the window manager
// and exits.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/barkit/barlink/internal/config"
	"github.com/barkit/barlink/internal/logging"
	"github.com/barkit/barlink/shmring"
	"github.com/barkit/barlink/snapshot"
)

func main() {
	jsonOut := flag.Bool("json", false, "print snapshots as JSON")
	count := flag.Int("n", 0, "exit after N snapshots (0 = forever)")
	timeout := flag.Duration("timeout", -1, "give up when no snapshot arrives in this window")
	viewTag := flag.Uint("send-view-tag", 0, "send a view-tag command with this mask and exit")
	toggleTag := flag.Uint("send-toggle-tag", 0, "send a toggle-tag command with this mask and exit")
	setLayout := flag.Int("send-layout", -1, "send a set-layout command with this index and exit")
	flag.Parse()

	cfg := config.LoadOrDefault()
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
	defer consumer.Close()

	monitor := int32(cfg.Channel.Monitor)
	var cmd snapshot.Command
	switch {
	case *viewTag != 0:
		cmd = snapshot.ViewTag(uint32(*viewTag), monitor)
	case *toggleTag != 0:
		cmd = snapshot.ToggleTag(uint32(*toggleTag), monitor)
	case *setLayout >= 0:
		cmd = snapshot.SetLayout(uint32(*setLayout), monitor)
	}
	if cmd.Kind != snapshot.CommandNone {
		if err := consumer.SendCommand(cmd); err != nil {
			log.Fatal("command failed", zap.Stringer("kind", cmd.Kind), zap.Error(err))
		}
		log.Info("command sent", zap.Stringer("kind", cmd.Kind), zap.Uint32("arg", cmd.Arg))
		return
	}

	if err := watch(consumer, *jsonOut, *count, *timeout, log); err != nil {
		log.Fatal("watch failed", zap.Error(err))
	}
}

func watch(consumer *shmring.Consumer, jsonOut bool, count int, timeout time.Duration, log *logging.Logger) error {
	seen := 0
	for {
		upd, err := consumer.BlockRead(timeout)
		if err != nil {
			if err == shmring.ErrDisconnected {
				log.Warn("producer gone", zap.Uint64("last_seen", consumer.LastSeen()))
				return nil
			}
			return err
		}
		if upd.Skipped > 0 {
			log.Debug("fell behind", zap.Uint64("skipped", upd.Skipped))
		}

		if err := print(upd, jsonOut); err != nil {
			return err
		}

		seen++
		if count > 0 && seen >= count {
			return nil
		}
	}
}

func print(upd shmring.Update, jsonOut bool) error {
	if jsonOut {
		data, err := sonic.Marshal(upd.Snapshot)
		if err != nil {
			return err
		}
		_, err = fmt.Println(string(data))
		return err
	}

	s := upd.Snapshot
	_, err := fmt.Printf("seq=%d skipped=%d mon=%d layout=%q client=%q cpu=%.1f%% mem=%.1f%% bat=%.0f%% charging=%t\n",
		upd.Seq, upd.Skipped, s.Monitor.Num, s.Monitor.LayoutSymbol, s.Monitor.ClientName,
		s.System.CPUAverage, s.System.MemoryPercent, s.System.BatteryPercent, s.System.Charging)
	return err
}
