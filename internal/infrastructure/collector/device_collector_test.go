package collector

import (
	"context"
	"errors"
	"testing"

	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/shirou/gopsutil/v3/host"
)

func TestDeviceCollector_CollectDevice(t *testing.T) {
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_MESSAGES", "")
	t.Setenv("LANG", "en_US.UTF-8")

	c := NewDeviceCollector(entity.Package{Identifier: "com.example.agent"}, false)
	c.hostInfo = func(ctx context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{
			Hostname:        "build-01",
			OS:              "linux",
			Platform:        "ubuntu",
			PlatformFamily:  "debian",
			PlatformVersion: "24.04",
			KernelVersion:   "6.8.0",
			KernelArch:      "x86_64",
			HostID:          "host-id",
		}, nil
	}

	device, err := c.CollectDevice(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := entity.Device{
		Identifier: "host-id",
		Machine:    "x86_64",
		Model:      "x86_64",
		Make:       "debian",
		Platform: entity.Platform{
			Name:        "ubuntu",
			VersionCode: "6.8.0",
			VersionName: "24.04",
		},
		Name:             "build-01",
		LocaleIdentifier: "en_US",
	}
	if device != want {
		t.Errorf("CollectDevice() = %+v, want %+v", device, want)
	}
}

func TestDeviceCollector_CollectDeviceError(t *testing.T) {
	c := NewDeviceCollector(entity.Package{Identifier: "x"}, false)
	c.hostInfo = func(ctx context.Context) (*host.InfoStat, error) {
		return nil, errors.New("permission denied")
	}

	if _, err := c.CollectDevice(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestDeviceCollector_CollectExecutable(t *testing.T) {
	tests := []struct {
		name     string
		proc     processInfo
		wantName string
		wantMs   int64
	}{
		{
			name:     "full info",
			proc:     processInfo{name: "agent", exe: "/usr/bin/agent", createdMs: 1700000000000},
			wantName: "agent",
			wantMs:   1700000000000,
		},
		{
			name:     "name from path",
			proc:     processInfo{exe: "/opt/bin/telemetry-agent", createdMs: 42},
			wantName: "telemetry-agent",
			wantMs:   42,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkg := entity.Package{Identifier: "com.example.agent", VersionName: "1.2.0"}
			c := NewDeviceCollector(pkg, true)
			c.processNow = func(ctx context.Context) (processInfo, error) {
				return tt.proc, nil
			}

			exe, err := c.CollectExecutable(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if exe.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", exe.Name, tt.wantName)
			}
			if exe.StartTime.Millis() != tt.wantMs {
				t.Errorf("StartTime = %d, want %d", exe.StartTime.Millis(), tt.wantMs)
			}
			if exe.Package != pkg || !exe.IsDebug {
				t.Errorf("unexpected package/debug: %+v %v", exe.Package, exe.IsDebug)
			}
		})
	}
}

func TestDeviceCollector_RealProcess(t *testing.T) {
	c := NewDeviceCollector(entity.Package{Identifier: "test"}, false)

	exe, err := c.CollectExecutable(context.Background())
	if err != nil {
		t.Skipf("process info unavailable: %v", err)
	}
	if exe.Name == "" {
		t.Error("expected process name")
	}
}
