// Package metrics provides Prometheus run metrics and host resource snapshots.
package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"
)

// HostSnapshot describes the machine the browsers run on.
type HostSnapshot struct {
	DataDisk         *DiskUsage `json:"data_disk,omitempty"`
	LoadAvg          []float64  `json:"load_avg,omitempty"` // 1, 5, 15 min
	CPUPercent       float64    `json:"cpu_percent"`
	Cores            int        `json:"cores"`
	MemoryTotal      uint64     `json:"memory_total"`
	MemoryUsed       uint64     `json:"memory_used"`
	MemoryPercent    float64    `json:"memory_percent"`
	Uptime           int64      `json:"uptime"` // seconds
	BrowserProcesses int        `json:"browser_processes"`
}

// DiskUsage is the usage of the filesystem holding the data directory.
type DiskUsage struct {
	Path        string  `json:"path"`
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"used_percent"`
}

// CollectHost gathers a snapshot in parallel. Individual collectors that fail
// leave their fields empty; only cancellation of ctx is returned as an error.
func CollectHost(ctx context.Context, dataDir string) (*HostSnapshot, error) {
	snap := &HostSnapshot{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		percent, err := cpu.PercentWithContext(gctx, 200*time.Millisecond, false)
		if err == nil && len(percent) > 0 {
			mu.Lock()
			snap.CPUPercent = percent[0]
			mu.Unlock()
		}
		if cores, err := cpu.CountsWithContext(gctx, true); err == nil {
			mu.Lock()
			snap.Cores = cores
			mu.Unlock()
		}
		return gctx.Err()
	})

	g.Go(func() error {
		vm, err := mem.VirtualMemoryWithContext(gctx)
		if err == nil {
			mu.Lock()
			snap.MemoryTotal = vm.Total
			snap.MemoryUsed = vm.Used
			snap.MemoryPercent = vm.UsedPercent
			mu.Unlock()
		}
		return gctx.Err()
	})

	if dataDir != "" {
		g.Go(func() error {
			usage, err := disk.UsageWithContext(gctx, dataDir)
			if err == nil {
				mu.Lock()
				snap.DataDisk = &DiskUsage{
					Path:        dataDir,
					Total:       usage.Total,
					Free:        usage.Free,
					UsedPercent: usage.UsedPercent,
				}
				mu.Unlock()
			}
			return gctx.Err()
		})
	}

	g.Go(func() error {
		if uptime, err := host.UptimeWithContext(gctx); err == nil {
			mu.Lock()
			snap.Uptime = int64(uptime)
			mu.Unlock()
		}
		if avg, err := load.AvgWithContext(gctx); err == nil {
			mu.Lock()
			snap.LoadAvg = []float64{avg.Load1, avg.Load5, avg.Load15}
			mu.Unlock()
		}
		return gctx.Err()
	})

	g.Go(func() error {
		count := countBrowserProcesses(gctx)
		mu.Lock()
		snap.BrowserProcesses = count
		mu.Unlock()
		return gctx.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// countBrowserProcesses counts Chromium processes, including ones leaked by
// runs that crashed before closing their browser.
func countBrowserProcesses(ctx context.Context) int {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0
	}
	count := 0
	for _, p := range procs {
		if ctx.Err() != nil {
			return count
		}
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if isBrowserProcess(name) {
			count++
		}
	}
	return count
}

func isBrowserProcess(name string) bool {
	name = strings.ToLower(name)
	return strings.Contains(name, "chrome") || strings.Contains(name, "chromium") ||
		strings.Contains(name, "headless_shell")
}
