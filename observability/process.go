package observability

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/process"
)

// ProcessUsage is the footprint of the running client process.
type ProcessUsage struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float32 `json:"memory_percent"`
}

// SampleProcess reads the CPU and memory usage of the current process.
func SampleProcess() (ProcessUsage, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return ProcessUsage{}, fmt.Errorf("error while retrieving process: %w", err)
	}
	cpu, err := p.CPUPercent()
	if err != nil {
		return ProcessUsage{}, fmt.Errorf("error while finding process cpu usage: %w", err)
	}
	ram, err := p.MemoryPercent()
	if err != nil {
		return ProcessUsage{}, fmt.Errorf("error while finding process ram usage: %w", err)
	}
	return ProcessUsage{CPUPercent: cpu, MemoryPercent: ram}, nil
}
