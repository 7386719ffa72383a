package main

import (
	"context"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// hostTelemetry samples host metrics. Unavailable readings are omitted.
func hostTelemetry(ctx context.Context) map[string]any {
	doc := make(map[string]any, 3)

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		doc["mem_used_percent"] = vm.UsedPercent
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		doc["load1"] = avg.Load1
	}
	if uptime, err := host.UptimeWithContext(ctx); err == nil {
		doc["uptime"] = uptime
	}
	return doc
}
