package system

import (
	"fmt"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats is a point-in-time resource snapshot for the export report.
type Stats struct {
	CPUPercent   float64
	RSSBytes     uint64
	SystemUsed   float64 // percent of physical memory in use
	NumGoroutine int
}

func (s Stats) String() string {
	return fmt.Sprintf("cpu=%.1f%% rss=%.1fMiB mem=%.1f%% goroutines=%d",
		s.CPUPercent, float64(s.RSSBytes)/(1<<20), s.SystemUsed, s.NumGoroutine)
}

// CurrentStats samples the current process. Missing counters stay zero.
func CurrentStats() Stats {
	st := Stats{NumGoroutine: runtime.NumGoroutine()}

	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := p.CPUPercent(); err == nil {
			st.CPUPercent = cpu
		}
		if info, err := p.MemoryInfo(); err == nil && info != nil {
			st.RSSBytes = info.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		st.SystemUsed = vm.UsedPercent
	}
	return st
}
