// Package telemetry gathers host facts for the status endpoint.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	gnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/sensors"
	"golang.org/x/sync/errgroup"

	"songapi/internal/infra"
)

const (
	defaultCPUSample = 200 * time.Millisecond
	bytesPerGB       = 1e9
)

// Source abstracts gopsutil so the collector can be exercised without a real host.
type Source interface {
	Host(ctx context.Context) (*host.InfoStat, error)
	CPU(ctx context.Context) ([]cpu.InfoStat, error)
	CPUCount(ctx context.Context) (int, error)
	CPUPercent(ctx context.Context, sample time.Duration) ([]float64, error)
	Temperatures(ctx context.Context) ([]sensors.TemperatureStat, error)
	Memory(ctx context.Context) (*mem.VirtualMemoryStat, error)
	Disk(ctx context.Context, path string) (*disk.UsageStat, error)
	Interfaces(ctx context.Context) (gnet.InterfaceStatList, error)
	LinkSpeed(iface string) (int, bool)
}

// Options configures the collector.
type Options struct {
	DiskPath  string
	CPUSample time.Duration
	Source    Source
	Logger    *infra.Logger
}

// Collector builds a SystemSnapshot. Probes run in parallel; a failed probe
// leaves its fields zero and is reported in the returned error.
type Collector struct {
	diskPath  string
	cpuSample time.Duration
	source    Source
	logger    *infra.Logger
}

func NewCollector(opts Options) *Collector {
	diskPath := opts.DiskPath
	if diskPath == "" {
		diskPath = "/"
	}
	sample := opts.CPUSample
	if sample <= 0 {
		sample = defaultCPUSample
	}
	source := opts.Source
	if source == nil {
		source = HostSource{}
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Collector{diskPath: diskPath, cpuSample: sample, source: source, logger: logger}
}

// Collect probes the host. The snapshot is usable even when err is non-nil.
func (c *Collector) Collect(ctx context.Context) (SystemSnapshot, error) {
	snap := SystemSnapshot{
		Platform:          runtime.GOOS,
		Arch:              runtime.GOARCH,
		NetworkInterfaces: []NetworkInterface{},
	}
	if hostname, err := os.Hostname(); err == nil {
		snap.Hostname = hostname
	}

	// Each goroutine owns a disjoint set of fields.
	var g errgroup.Group
	g.Go(func() error {
		info, err := c.source.Host(ctx)
		if err != nil {
			return fmt.Errorf("telemetry: host: %w", err)
		}
		if info.Hostname != "" {
			snap.Hostname = info.Hostname
		}
		snap.OSDistro = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
		snap.Release = info.KernelVersion
		snap.UptimeOSSeconds = info.Uptime
		snap.RunningProcesses = info.Procs
		return nil
	})
	g.Go(func() error {
		infos, err := c.source.CPU(ctx)
		if err != nil {
			return fmt.Errorf("telemetry: cpu info: %w", err)
		}
		if len(infos) > 0 {
			snap.CPUModel = strings.TrimSpace(infos[0].ModelName)
			snap.CPUSpeedGHz = round2(infos[0].Mhz / 1000)
		}
		cores, err := c.source.CPUCount(ctx)
		if err != nil {
			return fmt.Errorf("telemetry: cpu count: %w", err)
		}
		snap.Cores = cores
		return nil
	})
	g.Go(func() error {
		load, err := c.source.CPUPercent(ctx, c.cpuSample)
		if err != nil {
			return fmt.Errorf("telemetry: cpu load: %w", err)
		}
		if len(load) > 0 {
			v := round2(load[0])
			snap.CPULoadPercent = &v
		}
		return nil
	})
	g.Go(func() error {
		temps, err := c.source.Temperatures(ctx)
		if err != nil || len(temps) == 0 {
			// Most containers expose no sensors.
			return nil
		}
		v := round2(maxTemperature(temps))
		snap.CPUTemperatureC = &v
		return nil
	})
	g.Go(func() error {
		vm, err := c.source.Memory(ctx)
		if err != nil {
			return fmt.Errorf("telemetry: memory: %w", err)
		}
		snap.RAMTotalGB = gigabytes(vm.Total)
		snap.RAMUsedGB = gigabytes(vm.Total - vm.Available)
		snap.RAMFreeGB = gigabytes(vm.Available)
		return nil
	})
	g.Go(func() error {
		usage, err := c.source.Disk(ctx, c.diskPath)
		if err != nil {
			return fmt.Errorf("telemetry: disk %s: %w", c.diskPath, err)
		}
		snap.DiskTotalGB = gigabytes(usage.Total)
		snap.DiskUsedGB = gigabytes(usage.Used)
		snap.DiskFreeGB = gigabytes(usage.Free)
		return nil
	})
	g.Go(func() error {
		ifaces, err := c.source.Interfaces(ctx)
		if err != nil {
			return fmt.Errorf("telemetry: interfaces: %w", err)
		}
		snap.NetworkInterfaces = c.interfaces(ifaces)
		return nil
	})
	err := g.Wait()
	if err != nil {
		c.logger.Warn().Err(err).Msg("telemetry: partial snapshot")
	}
	return snap, err
}

func (c *Collector) interfaces(list gnet.InterfaceStatList) []NetworkInterface {
	out := make([]NetworkInterface, 0, len(list))
	for _, iface := range list {
		entry := NetworkInterface{Iface: iface.Name, MAC: iface.HardwareAddr}
		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(addr.Addr)
			}
			if ip != nil && ip.To4() != nil {
				entry.IP4 = ip.String()
				break
			}
		}
		if speed, ok := c.source.LinkSpeed(iface.Name); ok {
			entry.Speed = &speed
		}
		out = append(out, entry)
	}
	return out
}

func maxTemperature(temps []sensors.TemperatureStat) float64 {
	best := math.Inf(-1)
	for _, t := range temps {
		if t.Temperature > best {
			best = t.Temperature
		}
	}
	return best
}

func gigabytes(b uint64) float64 {
	return round2(float64(b) / bytesPerGB)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// HostSource reads the local machine through gopsutil.
type HostSource struct{}

func (HostSource) Host(ctx context.Context) (*host.InfoStat, error) {
	return host.InfoWithContext(ctx)
}

func (HostSource) CPU(ctx context.Context) ([]cpu.InfoStat, error) {
	return cpu.InfoWithContext(ctx)
}

func (HostSource) CPUCount(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, true)
}

func (HostSource) CPUPercent(ctx context.Context, sample time.Duration) ([]float64, error) {
	return cpu.PercentWithContext(ctx, sample, false)
}

func (HostSource) Temperatures(ctx context.Context) ([]sensors.TemperatureStat, error) {
	return sensors.TemperaturesWithContext(ctx)
}

func (HostSource) Memory(ctx context.Context) (*mem.VirtualMemoryStat, error) {
	return mem.VirtualMemoryWithContext(ctx)
}

func (HostSource) Disk(ctx context.Context, path string) (*disk.UsageStat, error) {
	return disk.UsageWithContext(ctx, path)
}

func (HostSource) Interfaces(ctx context.Context) (gnet.InterfaceStatList, error) {
	return gnet.InterfacesWithContext(ctx)
}

// LinkSpeed reads the negotiated speed from sysfs; gopsutil does not expose it.
func (HostSource) LinkSpeed(iface string) (int, bool) {
	raw, err := os.ReadFile(filepath.Join("/sys/class/net", iface, "speed"))
	if err != nil {
		return 0, false
	}
	speed, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || speed <= 0 {
		return 0, false
	}
	return speed, true
}
