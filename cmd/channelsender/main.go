package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"go.uber.org/zap"

	"channelengine/channelengine"
	"channelengine/config"
	"channelengine/report"
	"channelengine/transport"
	"channelengine/utils"
)

func main() {
	conf := flag.String("config", "", "Path to config file")
	reportDir := flag.String("report-dir", ".", "Directory to write the metrics report to")
	label := flag.String("label", "Sender-side", "Label for the metrics report")
	flag.Parse()

	if *conf != "" {
		if err := config.Reload(*conf); err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	log := utils.New(config.GlobalCfg.Log)
	defer log.Sync()

	log.Info("channelsender starting", zap.String("dial", config.GlobalCfg.Dial))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ep, err := transport.Dial(ctx, config.GlobalCfg.Dial, log)
	if err != nil {
		log.Error("dial failed", zap.Error(err))
		os.Exit(1)
	}
	defer ep.Close()

	engine := channelengine.NewEngine(ep, channelengine.WithConfig(windowConfig()), channelengine.WithLogger(log))
	defer engine.Close()

	engine.SetReceiveCallback(func(seqno uint16, ch channelengine.Channel, payload []byte, senderTsMs uint32) {
		log.Info("received", zap.Uint16("seqno", seqno), zap.String("channel", ch.String()))
	})

	go func() {
		if err := ep.Pump(ctx, engine); err != nil && ctx.Err() == nil {
			log.Warn("transport pump stopped", zap.Error(err))
		}
	}()

	go readStdinAndSend(ctx, engine, log)

	<-ctx.Done()
	log.Info("channelsender shutting down")

	rep := engine.GetMetricsReport(*label)
	report.Print(rep)
	if err := report.Write(*reportDir, rep); err != nil {
		log.Warn("failed to write report", zap.Error(err))
	}
}

// readStdinAndSend sends each line from stdin as a reliable payload; lines
// prefixed with "!" go out on the unreliable channel instead.
func readStdinAndSend(ctx context.Context, engine *channelengine.Engine, log *zap.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		reliable := true
		if len(line) > 0 && line[0] == '!' {
			reliable = false
			line = line[1:]
		}
		if err := engine.Send(ctx, []byte(line), reliable); err != nil {
			log.Warn("send failed", zap.Error(err))
			return
		}
	}
}

func windowConfig() channelengine.Config {
	w := config.GlobalCfg.Window
	cfg := channelengine.Config{}
	if w.Size > 0 {
		cfg.WindowSize = w.Size
	}
	if w.RetransmitIntervalMs > 0 {
		cfg.RetransmitInterval = time.Duration(w.RetransmitIntervalMs) * time.Millisecond
	}
	if w.GiveUpThresholdMs > 0 {
		cfg.GiveUpThreshold = time.Duration(w.GiveUpThresholdMs) * time.Millisecond
	}
	if w.RetransmitSweepMs > 0 {
		cfg.RetransmitSweep = time.Duration(w.RetransmitSweepMs) * time.Millisecond
	}
	if w.WindowPollIntervalMs > 0 {
		cfg.WindowPollInterval = time.Duration(w.WindowPollIntervalMs) * time.Millisecond
	}
	return cfg
}
