package proc

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats is a resource sample of the running server.
type ProcessStats struct {
	PID        int
	CPUPercent float64
	RSSBytes   uint64
	Threads    int32
	Uptime     time.Duration
}

func SampleProcess(pid int) (ProcessStats, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return ProcessStats{}, err
	}

	stats := ProcessStats{PID: pid}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		stats.RSSBytes = mem.RSS
	}
	if n, err := p.NumThreads(); err == nil {
		stats.Threads = n
	}
	if created, err := p.CreateTime(); err == nil {
		stats.Uptime = time.Since(time.UnixMilli(created))
	}
	return stats, nil
}
