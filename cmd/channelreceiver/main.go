package main

import (
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
	label := flag.String("label", "Receiver-side", "Label for the metrics report")
	flag.Parse()

	if *conf != "" {
		if err := config.Reload(*conf); err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	log := utils.New(config.GlobalCfg.Log)
	defer log.Sync()

	log.Info("channelreceiver starting", zap.String("listen", config.GlobalCfg.Listen))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ln, err := transport.Listen(config.GlobalCfg.Listen, config.GlobalCfg.CertFile, config.GlobalCfg.KeyFile, log)
	if err != nil {
		log.Error("listen failed", zap.Error(err))
		os.Exit(1)
	}
	defer ln.Close()

	ep, err := ln.Accept(ctx)
	if err != nil {
		log.Error("accept failed", zap.Error(err))
		os.Exit(1)
	}
	defer ep.Close()

	engine := channelengine.NewEngine(ep, channelengine.WithConfig(windowConfig()), channelengine.WithLogger(log))
	defer engine.Close()

	engine.SetReceiveCallback(func(seqno uint16, ch channelengine.Channel, payload []byte, senderTsMs uint32) {
		fmt.Printf("[%s #%d] %s\n", ch, seqno, payload)
	})

	if err := ep.Pump(ctx, engine); err != nil && ctx.Err() == nil {
		log.Warn("transport pump stopped", zap.Error(err))
	}

	log.Info("channelreceiver shutting down")

	rep := engine.GetMetricsReport(*label)
	report.Print(rep)
	if err := report.Write(*reportDir, rep); err != nil {
		log.Warn("failed to write report", zap.Error(err))
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
