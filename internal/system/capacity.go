package system

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Capacity is a snapshot of host resources.
type Capacity struct {
	AvailableMemory uint64
	TotalMemory     uint64
	UsedPercent     float64
	CPUs            int
}

// HostCapacity reads the current memory and CPU situation.
func HostCapacity() (Capacity, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Capacity{}, fmt.Errorf("read memory stats: %w", err)
	}
	cpus, err := cpu.Counts(true)
	if err != nil || cpus < 1 {
		cpus = 1
	}
	return Capacity{
		AvailableMemory: vm.Available,
		TotalMemory:     vm.Total,
		UsedPercent:     vm.UsedPercent,
		CPUs:            cpus,
	}, nil
}

// FitsMemory reports whether need bytes fit within share of available memory.
func (c Capacity) FitsMemory(need uint64, share float64) bool {
	if share <= 0 || share > 1 {
		share = 1
	}
	return float64(need) <= float64(c.AvailableMemory)*share
}
