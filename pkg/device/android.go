// Package device talks to Android devices through the adb command line.
package device

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes a command and returns its stdout. Tests replace it.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ADB runs adb commands against one device.
type ADB struct {
	path    string
	serial  string
	timeout time.Duration
	run     Runner
}

// DeviceInfo is one line of `adb devices -l`.
type DeviceInfo struct {
	Serial     string `json:"serial" yaml:"serial"`
	State      string `json:"state" yaml:"state"`
	Model      string `json:"model,omitempty" yaml:"model,omitempty"`
	Product    string `json:"product,omitempty" yaml:"product,omitempty"`
	IsEmulator bool   `json:"emulator" yaml:"emulator"`
}

// NoDevicesError is returned when adb lists no usable device.
type NoDevicesError struct {
	// Listed is every device adb reported, including offline or unauthorized ones.
	Listed []DeviceInfo
}

func (e *NoDevicesError) Error() string {
	if len(e.Listed) == 0 {
		return "no Android devices connected"
	}
	states := make([]string, len(e.Listed))
	for i, d := range e.Listed {
		states[i] = d.Serial + " (" + d.State + ")"
	}
	return "no Android device in 'device' state: " + strings.Join(states, ", ")
}

// NewADB creates a client. An empty path means "adb" from PATH; a zero
// timeout means no per-command limit.
func NewADB(path, serial string, timeout time.Duration) *ADB {
	if path == "" {
		path = "adb"
	}
	return &ADB{path: path, serial: serial, timeout: timeout, run: execRunner}
}

// WithRunner replaces the command runner.
func (a *ADB) WithRunner(r Runner) *ADB {
	a.run = r
	return a
}

// Serial returns the target device serial.
func (a *ADB) Serial() string {
	return a.serial
}

// SetSerial retargets the client.
func (a *ADB) SetSerial(serial string) {
	a.serial = serial
}

// Command runs adb with args against the target device.
func (a *ADB) Command(ctx context.Context, args ...string) ([]byte, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if a.serial != "" {
		cmdArgs = append(cmdArgs, "-s", a.serial)
	}
	cmdArgs = append(cmdArgs, args...)
	return a.exec(ctx, cmdArgs...)
}

// Shell runs a shell command on the device.
func (a *ADB) Shell(ctx context.Context, args ...string) (string, error) {
	out, err := a.Command(ctx, append([]string{"shell"}, args...)...)
	return string(out), err
}

// ExecOut runs a command on the device and returns its raw stdout.
func (a *ADB) ExecOut(ctx context.Context, args ...string) ([]byte, error) {
	return a.Command(ctx, append([]string{"exec-out"}, args...)...)
}

// State returns the device state ("device", "offline", "unauthorized").
func (a *ADB) State(ctx context.Context) (string, error) {
	out, err := a.Command(ctx, "get-state")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Devices lists every device adb knows about.
func (a *ADB) Devices(ctx context.Context) ([]DeviceInfo, error) {
	out, err := a.exec(ctx, "devices", "-l")
	if err != nil {
		return nil, err
	}
	return ParseDevices(string(out)), nil
}

// FirstAvailable returns the serial of the first device in "device" state.
func (a *ADB) FirstAvailable(ctx context.Context) (string, error) {
	devices, err := a.Devices(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range devices {
		if d.State == "device" {
			return d.Serial, nil
		}
	}
	return "", &NoDevicesError{Listed: devices}
}

// ParseDevices parses `adb devices [-l]` output.
func ParseDevices(out string) []DeviceInfo {
	var devices []DeviceInfo
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		d := DeviceInfo{
			Serial:     parts[0],
			State:      parts[1],
			IsEmulator: strings.HasPrefix(parts[0], "emulator-"),
		}
		for _, kv := range parts[2:] {
			key, value, ok := strings.Cut(kv, ":")
			if !ok {
				continue
			}
			switch key {
			case "model":
				d.Model = value
			case "product":
				d.Product = value
			}
		}
		devices = append(devices, d)
	}
	return devices
}

func (a *ADB) exec(ctx context.Context, args ...string) ([]byte, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	out, err := a.run(ctx, a.path, args...)
	if err != nil {
		return nil, fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg == "" {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", err, msg)
	}
	return stdout.Bytes(), nil
}
