package status

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/multierr"
)

// HostStats is a sample of the board's health.
type HostStats struct {
	Uptime     time.Duration
	MemPercent float64
	Load1      float64
}

// CollectHost samples uptime, memory and load. Fields that cannot be read
// are left zero and their errors combined.
func CollectHost() (*HostStats, error) {
	var errs error
	hs := &HostStats{}

	if up, err := host.Uptime(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("uptime: %w", err))
	} else {
		hs.Uptime = time.Duration(up) * time.Second
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("memory: %w", err))
	} else {
		hs.MemPercent = vm.UsedPercent
	}

	if avg, err := load.Avg(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("load: %w", err))
	} else {
		hs.Load1 = avg.Load1
	}

	return hs, errs
}

// Fields returns the stats as heartbeat status fields.
func (h *HostStats) Fields() map[string]any {
	if h == nil {
		return nil
	}
	return map[string]any{
		"host_uptime_seconds": int64(h.Uptime.Seconds()),
		"mem_used_percent":    h.MemPercent,
		"load_1":              h.Load1,
	}
}
