package bot

import (
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is what /status reports about the running process
type ProcessStats struct {
	Uptime     time.Duration
	RSSBytes   uint64
	CPUPercent float64
}

// readProcessStats samples this process via gopsutil
func readProcessStats(started time.Time) (ProcessStats, error) {
	stats := ProcessStats{Uptime: time.Since(started).Round(time.Second)}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return stats, fmt.Errorf("failed to open process: %w", err)
	}
	if mem, err := proc.MemoryInfo(); err == nil {
		stats.RSSBytes = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats, nil
}

func formatBytes(n uint64) string {
	const mb = 1024 * 1024
	if n >= mb {
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	}
	return fmt.Sprintf("%d KB", n/1024)
}
