package observability

import (
	"context"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Host describes the machine a sweep ran on. Running times in the data file
// are only comparable between sweeps on similar hosts.
type Host struct {
	Hostname    string  `json:"hostname,omitempty"`
	OS          string  `json:"os"`
	Platform    string  `json:"platform,omitempty"`
	Kernel      string  `json:"kernel,omitempty"`
	Arch        string  `json:"arch"`
	CPUModel    string  `json:"cpu_model,omitempty"`
	LogicalCPUs int     `json:"logical_cpus"`
	MemoryTotal uint64  `json:"memory_total_bytes,omitempty"`
	Load1       float64 `json:"load1"`
	Load5       float64 `json:"load5"`
	Load15      float64 `json:"load15"`
	GoVersion   string  `json:"go_version"`
}

// CollectHost gathers host facts. Facts the platform does not expose are
// left zero; only a canceled context is an error.
func CollectHost(ctx context.Context) (Host, error) {
	h := Host{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		LogicalCPUs: runtime.NumCPU(),
		GoVersion:   runtime.Version(),
	}
	if info, err := host.InfoWithContext(ctx); err == nil {
		h.Hostname = info.Hostname
		h.Platform = info.Platform
		h.Kernel = info.KernelVersion
	}
	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		h.LogicalCPUs = n
	}
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		h.CPUModel = infos[0].ModelName
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.MemoryTotal = vm.Total
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		h.Load1, h.Load5, h.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	return h, ctx.Err()
}

// Fields renders the facts as log fields
func (h Host) Fields() []zap.Field {
	return []zap.Field{
		zap.String("hostname", h.Hostname),
		zap.String("cpu_model", h.CPUModel),
		zap.Int("logical_cpus", h.LogicalCPUs),
		zap.Uint64("memory_total_bytes", h.MemoryTotal),
		zap.Float64("load1", h.Load1),
	}
}
