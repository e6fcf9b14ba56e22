package system

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/haven-automation/haven-hub/pkg/version"
)

// Info is a point-in-time snapshot of the host the hub runs on
type Info struct {
	Hostname      string  `json:"hostname"`
	OS            string  `json:"os"`
	Platform      string  `json:"platform"`
	KernelVersion string  `json:"kernel_version"`
	Arch          string  `json:"arch"`
	Version       string  `json:"version"`
	GoVersion     string  `json:"go_version"`
	UptimeSeconds float64 `json:"uptime_seconds"`

	CPUPercent    float64 `json:"cpu_percent"`
	LoadAvg1      float64 `json:"load_avg_1"`
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryPercent float64 `json:"memory_percent"`
	DiskTotal     uint64  `json:"disk_total"`
	DiskUsed      uint64  `json:"disk_used"`
	DiskPercent   float64 `json:"disk_percent"`
}

// Service reports host metrics for the health and system endpoints
type Service struct {
	startTime time.Time
	logger    *logrus.Logger
}

// NewService creates a system service
func NewService(logger *logrus.Logger) *Service {
	return &Service{
		startTime: time.Now(),
		logger:    logger,
	}
}

// Uptime returns how long the hub process has been running
func (s *Service) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// GetInfo collects a host snapshot. Individual readings that fail degrade
// the snapshot rather than failing it.
func (s *Service) GetInfo(ctx context.Context) *Info {
	info := &Info{
		Arch:          runtime.GOARCH,
		Version:       version.GetVersion(),
		GoVersion:     runtime.Version(),
		UptimeSeconds: s.Uptime().Seconds(),
	}

	if hostInfo, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = hostInfo.Hostname
		info.OS = hostInfo.OS
		info.Platform = hostInfo.Platform
		info.KernelVersion = hostInfo.KernelVersion
	} else {
		s.logger.WithError(err).Debug("Failed to read host info")
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		info.CPUPercent = percents[0]
	}
	if loadAvg, err := load.AvgWithContext(ctx); err == nil {
		info.LoadAvg1 = loadAvg.Load1
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryUsed = vm.Used
		info.MemoryPercent = vm.UsedPercent
	}
	if usage, err := disk.UsageWithContext(ctx, "/"); err == nil {
		info.DiskTotal = usage.Total
		info.DiskUsed = usage.Used
		info.DiskPercent = usage.UsedPercent
	}

	return info
}
