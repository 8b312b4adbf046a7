package collector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/dreschagin/session-telemetry/internal/application/port"
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/process"
)

// hostInfoFunc and processFunc are swapped in tests.
type (
	hostInfoFunc func(ctx context.Context) (*host.InfoStat, error)
	processFunc  func(ctx context.Context) (processInfo, error)
)

type processInfo struct {
	name      string
	exe       string
	createdMs int64
}

// DeviceCollector описывает хост и текущий процесс через gopsutil.
// Реализует интерфейс port.DeviceCollector
type DeviceCollector struct {
	pkg        entity.Package
	isDebug    bool
	hostInfo   hostInfoFunc
	processNow processFunc
}

var _ port.DeviceCollector = (*DeviceCollector)(nil)

// NewDeviceCollector создает collector; pkg описывает сборку приложения
func NewDeviceCollector(pkg entity.Package, isDebug bool) *DeviceCollector {
	if pkg.Identifier == "" {
		pkg = buildPackage()
	}
	return &DeviceCollector{
		pkg:        pkg,
		isDebug:    isDebug,
		hostInfo:   host.InfoWithContext,
		processNow: currentProcess,
	}
}

// CollectDevice собирает описание устройства
func (c *DeviceCollector) CollectDevice(ctx context.Context) (entity.Device, error) {
	info, err := c.hostInfo(ctx)
	if err != nil {
		return entity.Device{}, fmt.Errorf("failed to read host info: %w", err)
	}

	machine := info.KernelArch
	if machine == "" {
		machine = runtime.GOARCH
	}

	platform := info.Platform
	if platform == "" {
		platform = info.OS
	}

	return entity.Device{
		Identifier: info.HostID,
		Machine:    machine,
		Model:      modelOf(info),
		Make:       info.PlatformFamily,
		Platform: entity.Platform{
			Name:        platform,
			VersionCode: info.KernelVersion,
			VersionName: info.PlatformVersion,
		},
		Name:             info.Hostname,
		LocaleIdentifier: localeIdentifier(),
	}, nil
}

// CollectExecutable собирает описание текущего процесса
func (c *DeviceCollector) CollectExecutable(ctx context.Context) (entity.Executable, error) {
	proc, err := c.processNow(ctx)
	if err != nil {
		return entity.Executable{}, fmt.Errorf("failed to read process info: %w", err)
	}

	startTime := valueobject.Now()
	if proc.createdMs > 0 {
		startTime = valueobject.TimestampFromMillis(proc.createdMs)
	}

	name := proc.name
	if name == "" {
		name = filepath.Base(proc.exe)
	}

	return entity.Executable{
		Name:      name,
		Package:   c.pkg,
		StartTime: startTime,
		Path:      proc.exe,
		IsDebug:   c.isDebug,
	}, nil
}

func currentProcess(ctx context.Context) (processInfo, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return processInfo{}, err
	}

	info := processInfo{}
	if info.name, err = p.NameWithContext(ctx); err != nil {
		return processInfo{}, err
	}
	// Путь и время старта доступны не на всех платформах
	if exe, err := p.ExeWithContext(ctx); err == nil {
		info.exe = exe
	} else if exe, err := os.Executable(); err == nil {
		info.exe = exe
	}
	if created, err := p.CreateTimeWithContext(ctx); err == nil {
		info.createdMs = created
	}
	return info, nil
}

func modelOf(info *host.InfoStat) string {
	if info.VirtualizationSystem != "" && info.VirtualizationRole == "guest" {
		return info.VirtualizationSystem
	}
	return info.KernelArch
}

func localeIdentifier() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		value := os.Getenv(key)
		if value == "" || value == "C" || value == "POSIX" {
			continue
		}
		if i := strings.IndexAny(value, ".@"); i >= 0 {
			value = value[:i]
		}
		return value
	}
	return ""
}

func buildPackage() entity.Package {
	pkg := entity.Package{}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return pkg
	}
	pkg.Identifier = info.Main.Path
	pkg.Name = filepath.Base(info.Main.Path)
	pkg.VersionName = info.Main.Version
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			pkg.VersionCode = setting.Value
		}
	}
	return pkg
}

