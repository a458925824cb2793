package system

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// Stats is a snapshot of the host and of this process.
type Stats struct {
	LogicalCPUs  int
	RSSBytes     uint64
	AvailableMem uint64
}

// Snapshot never fails: fields gopsutil cannot read stay at their fallback.
func Snapshot() Stats {
	s := Stats{LogicalCPUs: runtime.NumCPU()}
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		s.LogicalCPUs = n
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil {
			s.RSSBytes = mi.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.AvailableMem = vm.Available
	}
	return s
}

// LoaderWorkers sizes the image-loading pool: one worker per logical CPU,
// halved when less than 1 GiB of memory is free, never below one.
func LoaderWorkers(s Stats) int {
	n := s.LogicalCPUs
	if s.AvailableMem > 0 && s.AvailableMem < 1<<30 {
		n /= 2
	}
	if n < 1 {
		n = 1
	}
	return n
}
