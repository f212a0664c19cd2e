// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"peakbeat/internal/domain"

	"github.com/gordonklaus/portaudio"
)

func setupPortAudio(t *testing.T) {
	t.Helper()
	if err := Initialize(); err != nil {
		t.Fatalf("Failed to initialize PortAudio: %v", err)
	}
	t.Cleanup(func() {
		if err := Terminate(); err != nil {
			t.Fatalf("Failed to terminate PortAudio: %v", err)
		}
	})
}

// fakeHost replaces the PortAudio device queries for the duration of a test.
func fakeHost(t *testing.T, devices []*portaudio.DeviceInfo, defaultIdx int) {
	t.Helper()
	origDevices, origDefault := paDevicesFunc, paLibDefaultOutputDeviceFunc
	t.Cleanup(func() {
		paDevicesFunc, paLibDefaultOutputDeviceFunc = origDevices, origDefault
	})
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return devices, nil }
	paLibDefaultOutputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		if defaultIdx < 0 {
			return nil, fmt.Errorf("no default output")
		}
		return devices[defaultIdx], nil
	}
}

func testHostDevices() []*portaudio.DeviceInfo {
	api := &portaudio.HostApiInfo{Name: "Core Audio"}
	return []*portaudio.DeviceInfo{
		{Name: "Built-in Microphone", MaxInputChannels: 2, DefaultSampleRate: 48000, HostApi: api},
		{Name: "Built-in Output", MaxOutputChannels: 2, DefaultSampleRate: 44100, HostApi: api},
		{Name: "USB Interface", MaxInputChannels: 2, MaxOutputChannels: 4, DefaultSampleRate: 96000, HostApi: api},
	}
}

func TestHostDevices(t *testing.T) {
	setupPortAudio(t)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) == 0 {
		t.Skip("No audio devices found on system")
	}
	for i, d := range devices {
		if d.ID != i {
			t.Errorf("Device ID mismatch: got %d, want %d", d.ID, i)
		}
		if d.Name == "" {
			t.Errorf("Device %d has empty name", i)
		}
		if d.DefaultSampleRate <= 0 {
			t.Errorf("Device %d has invalid sample rate: %f", i, d.DefaultSampleRate)
		}
	}
}

func TestHostDevices_paDevicesError(t *testing.T) {
	orig := paDevicesFunc
	defer func() { paDevicesFunc = orig }()
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("mock error")
	}

	_, err := HostDevices()
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestHostDevicesMarksDefaultOutput(t *testing.T) {
	fakeHost(t, testHostDevices(), 1)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	for _, d := range devices {
		if d.IsDefaultOutput != (d.ID == 1) {
			t.Errorf("device %d IsDefaultOutput = %v", d.ID, d.IsDefaultOutput)
		}
		if d.HostAPI != "Core Audio" {
			t.Errorf("device %d HostAPI = %q", d.ID, d.HostAPI)
		}
	}
}

func TestOutputDevicesFiltersInputOnly(t *testing.T) {
	fakeHost(t, testHostDevices(), 1)

	devices, err := OutputDevices()
	if err != nil {
		t.Fatalf("OutputDevices error: %v", err)
	}
	if len(devices) != 2 || devices[0].ID != 1 || devices[1].ID != 2 {
		t.Errorf("OutputDevices = %+v, want IDs 1 and 2", devices)
	}
}

func TestOutputDevice(t *testing.T) {
	fakeHost(t, testHostDevices(), 1)

	t.Run("Default", func(t *testing.T) {
		dev, err := OutputDevice(DefaultDeviceID)
		if err != nil {
			t.Fatalf("OutputDevice(default) error: %v", err)
		}
		if dev.Name != "Built-in Output" {
			t.Errorf("default device = %q", dev.Name)
		}
	})

	t.Run("Valid output device", func(t *testing.T) {
		dev, err := OutputDevice(2)
		if err != nil {
			t.Fatalf("OutputDevice(2) error: %v", err)
		}
		if dev.Name != "USB Interface" {
			t.Errorf("device = %q", dev.Name)
		}
	})

	tests := []struct {
		name   string
		id     int
		substr string
	}{
		{"Negative ID", -2, "invalid device ID"},
		{"Too high ID", 13, "invalid device ID"},
		{"Input-only device", 0, "does not support output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OutputDevice(tt.id)
			if err == nil {
				t.Fatalf("Expected error for ID %d", tt.id)
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("Error = %q, want substring %q", err.Error(), tt.substr)
			}
			if !errorsIsUnavailable(err) {
				t.Errorf("Error = %v, want ErrDeviceUnavailable", err)
			}
		})
	}
}

func TestOutputDevice_noDefault(t *testing.T) {
	fakeHost(t, testHostDevices(), -1)

	_, err := OutputDevice(DefaultDeviceID)
	if !errorsIsUnavailable(err) {
		t.Errorf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestListDevices(t *testing.T) {
	fakeHost(t, testHostDevices(), 1)

	var buf bytes.Buffer
	if err := ListDevices(&buf); err != nil {
		t.Fatalf("ListDevices error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"[1] Built-in Output [default]", "[2] USB Interface", "Output channels: 4"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Microphone") {
		t.Errorf("input-only device listed:\n%s", out)
	}
}

func TestErrorInitialize(t *testing.T) {
	orig := paLibInitialize
	defer func() { paLibInitialize = orig }()

	paLibInitialize = func() error { return nil }
	if err := Initialize(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibInitialize = func() error { return fmt.Errorf("mock init error") }
	if err := Initialize(); err == nil || !strings.Contains(err.Error(), "mock init error") {
		t.Errorf("expected mock init error, got %v", err)
	}
}

func TestErrorTerminate(t *testing.T) {
	orig := paLibTerminate
	defer func() { paLibTerminate = orig }()

	paLibTerminate = func() error { return nil }
	if err := Terminate(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibTerminate = func() error { return fmt.Errorf("mock term error") }
	if err := Terminate(); err == nil || !strings.Contains(err.Error(), "mock term error") {
		t.Errorf("expected mock term error, got %v", err)
	}
}

func TestNilDevices(t *testing.T) {
	orig := paLibDevicesFunc
	defer func() { paLibDevicesFunc = orig }()
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, nil
	}

	devices, err := paDevices()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if devices == nil {
		t.Errorf("expected empty slice, got nil")
	}
	if len(devices) != 0 {
		t.Errorf("expected length 0, got %d", len(devices))
	}
}

func errorsIsUnavailable(err error) bool {
	return errors.Is(err, domain.ErrDeviceUnavailable)
}
