package metrics

import (
	"fmt"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

var (
	residentMemory = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "consolr",
			Subsystem: "server",
			Name:      "resident_memory_bytes",
			Help:      "Resident set size of the server process.",
		}, []string{"name"},
	)
	cpuPercent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "consolr",
			Subsystem: "server",
			Name:      "cpu_percent",
			Help:      "CPU usage percentage of the server process.",
		}, []string{"name"},
	)
	numThreads = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "consolr",
			Subsystem: "server",
			Name:      "num_threads",
			Help:      "Number of OS threads of the server process.",
		}, []string{"name"},
	)
)

// Resources is one sample of the server's resource usage.
type Resources struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// Sample reads CPU and memory usage of pid.
func Sample(pid int) (Resources, error) {
	if pid <= 0 {
		return Resources{}, fmt.Errorf("invalid pid %d", pid)
	}
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return Resources{}, fmt.Errorf("failed to create process handle: %w", err)
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return Resources{}, fmt.Errorf("failed to get memory info: %w", err)
	}
	r := Resources{
		PID:       int32(pid),
		MemoryRSS: memInfo.RSS,
		MemoryVMS: memInfo.VMS,
		MemoryMB:  float64(memInfo.RSS) / 1024 / 1024,
		Timestamp: time.Now(),
	}
	// CPU and thread counts are best effort
	if v, err := proc.CPUPercent(); err == nil {
		r.CPUPercent = v
	}
	if v, err := proc.NumThreads(); err == nil {
		r.NumThreads = v
	}
	if runtime.GOOS != "windows" {
		if v, err := proc.NumFDs(); err == nil {
			r.NumFDs = v
		}
	}
	return r, nil
}

// SetResources publishes a sample for name.
func SetResources(name string, r Resources) {
	if regOK.Load() {
		residentMemory.WithLabelValues(name).Set(float64(r.MemoryRSS))
		cpuPercent.WithLabelValues(name).Set(r.CPUPercent)
		numThreads.WithLabelValues(name).Set(float64(r.NumThreads))
	}
}

// ClearResources drops the resource gauges once the server is gone.
func ClearResources(name string) {
	residentMemory.DeleteLabelValues(name)
	cpuPercent.DeleteLabelValues(name)
	numThreads.DeleteLabelValues(name)
}
