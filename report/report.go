// Package report persists Channel Engine metrics reports the way the
// original test harnesses did: one JSON document per label, plus a
// console dump in the same shape as the original implementation's
// print_metrics.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"channelengine/channelengine"
)

// Write persists report as "<dir>/<label>_metrics.json", creating dir if
// necessary. The field names match spec §6 exactly via the json tags on
// channelengine.Report.
func Write(dir string, report channelengine.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	buf, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, report.Label+"_metrics.json")
	return os.WriteFile(path, buf, 0o644)
}

// Print writes a human-readable summary to stdout, mirroring the
// structure of the original implementation's sender/receiver console
// reports.
func Print(report channelengine.Report) {
	fmt.Printf("\n=== PERFORMANCE METRICS [%s] ===\n", report.Label)
	fmt.Printf("Duration:               %.2fs\n", report.Duration)
	fmt.Printf("Total Packets Received: %d\n", report.Overall.PacketsReceived)
	fmt.Printf("Receive Throughput:     %.2f bytes/sec\n", report.Overall.RecvThroughputBps)

	fmt.Println("\n-- Reliable Channel --")
	printChannel(report.Reliable)

	fmt.Println("\n-- Unreliable Channel --")
	printChannel(report.Unreliable)
	fmt.Println("============================================================")
}

func printChannel(c channelengine.ChannelReport) {
	fmt.Printf("Packets Expected:        %d\n", c.PacketsExpected)
	fmt.Printf("Packets Received:        %d\n", c.PacketsReceived)
	fmt.Printf("Packets Lost:            %d\n", c.PacketsLost)
	fmt.Printf("Receive Throughput:      %.2f bytes/sec\n", c.RecvThroughputBps)
	fmt.Printf("Avg One-way Latency:     %.2f ms\n", c.AvgLatencyMs)
	fmt.Printf("Jitter (RFC3550):        %.2f ms\n", c.JitterMs)
	fmt.Printf("Packet Delivery Ratio:   %.2f%%\n", c.DeliveryRatioPct)
	fmt.Printf("Packet Loss Ratio:       %.2f%%\n", c.LossRatioPct)
}
