package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/ivlev/reelcomposer/internal/system"
)

// Stats describe a finished run.
type Stats struct {
	Scenes       int
	Duration     float64
	Ticks        int // frames composed
	Frames       int // frames in the stream after pacing
	Duplicated   int
	Dropped      int
	LoadTime     time.Duration
	RecordTime   time.Duration
	FinalizeTime time.Duration
	TotalTime    time.Duration
	Host         system.Stats
}

// EffectiveFPS is composed frames per second of recording wall time.
func (s Stats) EffectiveFPS() float64 {
	if s.RecordTime <= 0 {
		return 0
	}
	return float64(s.Ticks) / s.RecordTime.Seconds()
}

func (s Stats) Report(build string) string {
	return fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Scenes: %d | Duration: %.2fs\n"+
			"Total Time: %.2fs\n"+
			"Loading: %.2fs\n"+
			"Recording: %.2fs\n"+
			"Finalizing: %.2fs\n"+
			"Frames: %d composed, %d written (%d duplicated, %d dropped)\n"+
			"Effective FPS: %.2f\n"+
			"RSS: %.1f MiB | CPUs: %d\n"+
			"----------------------------\n",
		build, s.Scenes, s.Duration, s.TotalTime.Seconds(), s.LoadTime.Seconds(),
		s.RecordTime.Seconds(), s.FinalizeTime.Seconds(),
		s.Ticks, s.Frames, s.Duplicated, s.Dropped,
		s.EffectiveFPS(), float64(s.Host.RSSBytes)/(1<<20), s.Host.LogicalCPUs,
	)
}

func (s Stats) LogLine(build, output string) string {
	return fmt.Sprintf("[%s] Build: %s | Output: %s | Scenes: %d | Total: %.2fs | Load: %.2fs | Record: %.2fs | Frames: %d | FPS: %.2f\n",
		time.Now().Format("2006-01-02 15:04:05"),
		build, output, s.Scenes, s.TotalTime.Seconds(), s.LoadTime.Seconds(),
		s.RecordTime.Seconds(), s.Frames, s.EffectiveFPS(),
	)
}

func (d *Driver) report(s Stats) {
	fmt.Print(s.Report(d.opts.BuildVersion))

	path := d.opts.BenchmarkLog
	if path == "" {
		path = "benchmark.log"
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		d.log.Warnf("[!] cannot write %s: %v", path, err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(s.LogLine(d.opts.BuildVersion, d.opts.Output)); err != nil {
		d.log.Warnf("[!] cannot write %s: %v", path, err)
	}
}
